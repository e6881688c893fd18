package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/config"
	"github.com/rl1809/inventory-sync/internal/logger"
)

var (
	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "inventory-sync",
	Short: "Keeps store inventory consistent with the central ledger",
	Long: `inventory-sync serves inventory mutations over HTTP and gRPC, applies
change events from store systems, and periodically reconciles every store
against the central warehouse.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory holding the .env file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

// loadConfig reads configuration and builds the logger every subcommand shares.
func loadConfig() (*config.Config, *zap.Logger) {
	cfg, err := config.Load(configDir)
	if err != nil {
		fatal("load config", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fatal("build logger", err)
	}
	return cfg, log
}
