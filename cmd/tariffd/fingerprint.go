package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/scenariocache/cache"
)

var (
	fpTariff   string
	fpPartners []string
	fpFilter   []string
	fpMode     string
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the scenario id for a set of inputs",
	Long:  "Prints the fingerprint the service would file a scenario under. Useful for inspecting the document store by hand.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := cache.NewScenario(fpTariff, fpPartners, fpFilter, fpMode)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cache.Fingerprint(s))
		return err
	},
}

func init() {
	fingerprintCmd.Flags().StringVar(&fpTariff, "tariff", "", "tariff percent, e.g. 15 or 12.5")
	fingerprintCmd.Flags().StringSliceVar(&fpPartners, "partners", nil, "target partners, comma separated")
	fingerprintCmd.Flags().StringSliceVar(&fpFilter, "sector-filter", nil, "sector filter, comma separated")
	fingerprintCmd.Flags().StringVar(&fpMode, "mode", cache.ModeDeterministic, "model mode")
	_ = fingerprintCmd.MarkFlagRequired("tariff")
	_ = fingerprintCmd.MarkFlagRequired("partners")
	rootCmd.AddCommand(fingerprintCmd)
}
