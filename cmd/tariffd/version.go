package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build and engine versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "tariffd %s (engine version %s)\n", version, cfg.Engine.Version)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
