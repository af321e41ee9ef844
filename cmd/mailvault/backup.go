package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mailvault/internal/backup"
	"mailvault/internal/config"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

func newBackupCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run mailbox backup ingestion",
	}
	cmd.AddCommand(newBackupRunCmd(cfg, jsonOutput))
	return cmd
}

func newBackupRunCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "run [scope]",
		Short: "Ingest one item stream into a new snapshot",
		Long: `Reads newline-delimited JSON item records produced by a mail-fetch
process and records them as one snapshot for the given tenant scope
(default: all tenants). Use --input - to read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := models.ScopeAll
			if len(args) == 1 {
				scope = models.NormalizeScope(args[0])
			}
			if inputPath == "" {
				return fmt.Errorf("--input is required")
			}

			input, err := openInput(inputPath)
			if err != nil {
				return err
			}
			defer input.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStore(cfg, func(st *store.Store) error {
				cas, err := openBlobStore(cfg)
				if err != nil {
					return err
				}

				coord := backup.NewCoordinator(st, cas,
					backup.NewStreamFetcher(input), coordinatorOptions(cfg), slog.Default())

				result, runErr := coord.RunScope(ctx, scope)
				if result.SnapshotID != 0 {
					if *jsonOutput {
						if err := writeJSON(result); err != nil {
							return err
						}
					} else if err := writePlain("snapshot #%d %s: %d recorded, %d skipped\n",
						result.SnapshotID, result.Status, result.ItemsProcessed, result.ItemsSkipped); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "NDJSON item stream ('-' for stdin)")
	return cmd
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func coordinatorOptions(cfg *config.Config) backup.Options {
	return backup.Options{
		Workers:              cfg.Backup.Workers,
		FailureRateThreshold: cfg.Backup.FailureRateThreshold,
		MaxPutAttempts:       cfg.Backup.MaxPutAttempts,
	}
}
