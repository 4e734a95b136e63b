package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonwraymond/scenariocache/config"
	"github.com/jonwraymond/scenariocache/observe"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  observe.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tariffd",
	Short: "Tariff scenario cache coordination service",
	Long: "Serves chat context for tariff scenarios, computing risk results on a miss " +
		"and caching them in a remote document store keyed by scenario fingerprint.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		l, err := observe.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logger = l
		zap.ReplaceGlobals(observe.Zap(l))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./tariffd.yaml)")
}
