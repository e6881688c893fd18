package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [store-id]",
	Short: "Run one reconciliation pass and exit",
	Long: `Reconciles a single store when store-id is given, otherwise every active
store. Conflicts are recorded with the configured strategy.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()
		defer log.Sync()

		ctx := context.Background()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			fatal("start", err)
		}
		defer a.Close()

		var run *domain.SyncRun
		if len(args) == 1 {
			run = a.reconciler.SyncStore(ctx, args[0])
		} else {
			run, err = a.reconciler.SyncAllStores(ctx)
			if err != nil {
				fatal("sync", err)
			}
		}
		a.reconciler.Wait()

		fmt.Printf("Run:        %s\n", run.ID)
		fmt.Printf("Scope:      %s\n", run.Scope)
		fmt.Printf("Status:     %s\n", run.Status)
		fmt.Printf("Processed:  %d\n", run.ItemsProcessed)
		fmt.Printf("Succeeded:  %d\n", run.SuccessCount)
		fmt.Printf("Failed:     %d\n", run.FailureCount)
		fmt.Printf("Conflicts:  %d\n", run.ConflictCount)
		if run.ErrorMessage != "" {
			fmt.Printf("Error:      %s\n", run.ErrorMessage)
		}

		if run.Status == domain.SyncStatusFailed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
