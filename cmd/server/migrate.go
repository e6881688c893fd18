package main

import (
	"context"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL schema for inventory, stores, sync runs and conflicts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()
		defer log.Sync()

		ctx := context.Background()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			fatal("start", err)
		}
		defer a.Close()

		if err := a.migrate(ctx); err != nil {
			fatal("migrate", err)
		}
		log.Info("migration complete")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
