package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/cobra"

	"mailvault/internal/backup"
	"mailvault/internal/config"
	"mailvault/internal/store"
)

// defaultCronSpec runs four times a day, matching the provider change feed
// cadence the incremental plan is tuned for.
const defaultCronSpec = "0 0,6,12,18 * * *"

func newSchedCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var cronSpec string
	var inputDir string
	var maxTriggers int

	cmd := &cobra.Command{
		Use:   "sched",
		Short: "Run backups for all active tenants on a cron schedule",
		Long: `Waits for each cron trigger, then runs one backup per active tenant in
sequence. Item streams are read from <input-dir>/<tenant_id>.ndjson; a
tenant without a stream file is skipped for that trigger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := cronexpr.Parse(cronSpec)
			if err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", cronSpec, err)
			}
			if inputDir == "" {
				return fmt.Errorf("--input-dir is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default().With("component", "sched")
			logger.Info("scheduler started", "cron", cronSpec, "input_dir", inputDir)

			triggers := 0
			for {
				next := expr.Next(time.Now())
				if next.IsZero() {
					return fmt.Errorf("cron expression %q never fires", cronSpec)
				}
				logger.Info("next trigger", "at", next)

				select {
				case <-ctx.Done():
					logger.Info("scheduler stopped")
					return nil
				case <-time.After(time.Until(next)):
				}

				if err := runAllScopes(ctx, cfg, inputDir, logger); err != nil {
					if errors.Is(err, context.Canceled) {
						logger.Info("scheduler stopped")
						return nil
					}
					logger.Error("trigger failed", "error", err)
				}

				triggers++
				if maxTriggers > 0 && triggers >= maxTriggers {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", defaultCronSpec, "cron expression for backup triggers")
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "directory with per-tenant NDJSON item streams")
	cmd.Flags().IntVar(&maxTriggers, "max-triggers", 0, "stop after N triggers (0 = run forever)")
	return cmd
}

// runAllScopes runs one backup per active tenant. A failed scope does not
// stop the remaining scopes; the first error is reported after all ran.
func runAllScopes(ctx context.Context, cfg *config.Config, inputDir string, logger *slog.Logger) error {
	return withStore(cfg, func(st *store.Store) error {
		cas, err := openBlobStore(cfg)
		if err != nil {
			return err
		}

		tenants, err := st.ListTenants(ctx, true)
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		if len(tenants) == 0 {
			logger.Warn("no active tenants registered")
			return nil
		}

		var firstErr error
		for _, tenant := range tenants {
			if err := ctx.Err(); err != nil {
				return err
			}

			streamPath := filepath.Join(inputDir, tenant.TenantID+".ndjson")
			input, err := os.Open(streamPath)
			if err != nil {
				if os.IsNotExist(err) {
					logger.Info("no item stream for tenant, skipping", "tenant", tenant.TenantID, "path", streamPath)
					continue
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			coord := backup.NewCoordinator(st, cas,
				backup.NewStreamFetcher(input), coordinatorOptions(cfg), logger)
			result, runErr := coord.RunScope(ctx, tenant.TenantID)
			input.Close()

			if runErr != nil {
				logger.Error("scope run failed", "tenant", tenant.TenantID, "snapshot_id", result.SnapshotID, "error", runErr)
				if firstErr == nil {
					firstErr = runErr
				}
				continue
			}
			logger.Info("scope run complete", "tenant", tenant.TenantID,
				"snapshot_id", result.SnapshotID, "items", result.ItemsProcessed, "skipped", result.ItemsSkipped)
		}
		return firstErr
	})
}
