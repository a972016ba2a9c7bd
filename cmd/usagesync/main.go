package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"UsageSync/internal/app"
	"UsageSync/internal/config"
	"UsageSync/internal/logging"
)

var (
	syncMode        string
	syncConcurrency string
	syncWorkers     int
)

var rootCmd = &cobra.Command{
	Use:           "usagesync",
	Short:         "Backfill daily portal usage into the metrics store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and store missing per-day usage for every tracked asset",
	Long: `Run one sync pass over the configured lookback window.

Examples:
  usagesync sync                                    # Incremental run using config defaults
  usagesync sync --mode full-backfill               # Deep backfill, paced sequentially
  usagesync sync --concurrency concurrent --workers 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			report, err := a.RunSync(ctx, app.SyncOverrides{
				Mode:        syncMode,
				Concurrency: syncConcurrency,
				Workers:     syncWorkers,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.FormatSyncSummary(report))
			return nil
		})
	},
}

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Refresh the catalog of tracked assets from the portal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			report, err := a.RunHarvest(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "harvested %d items: %d upserted, %d failed, %d archived\n",
				report.Seen, report.Upserted, report.Failed, report.Archived)
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog and usage tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			return a.Migrate(ctx)
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Harvest and run incremental syncs on the configured interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			return a.Schedule(ctx)
		})
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncMode, "mode", "", "Run mode: full-backfill or incremental")
	syncCmd.Flags().StringVar(&syncConcurrency, "concurrency", "", "Scheduling: auto, concurrent or throttled-sequential")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0, "Concurrent asset tasks (concurrent mode only)")

	rootCmd.AddCommand(syncCmd, harvestCmd, migrateCmd, scheduleCmd)
}

func withApplication(ctx context.Context, fn func(context.Context, *app.Application) error) error {
	cfg := config.Load()
	if syncMode != "" {
		cfg.Sync.Mode = syncMode
	}
	if syncConcurrency != "" {
		cfg.Sync.Concurrency = syncConcurrency
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	return fn(ctx, a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
