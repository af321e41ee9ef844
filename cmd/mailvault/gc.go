package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mailvault/internal/backup"
	"mailvault/internal/config"
	"mailvault/internal/store"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var graceHours int
	var batchSize int

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Reclaim unreferenced blobs past the grace window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if graceHours <= 0 {
				graceHours = cfg.Backup.GCGraceHours
			}
			if batchSize <= 0 {
				batchSize = cfg.Backup.GCBatchSize
			}

			return withStore(cfg, func(st *store.Store) error {
				cas, err := openBlobStore(cfg)
				if err != nil {
					return err
				}

				result, err := backup.SweepBlobs(cmd.Context(), st, cas, backup.GCOptions{
					GraceWindow: time.Duration(graceHours) * time.Hour,
					BatchSize:   batchSize,
				}, slog.Default().With("component", "gc"))
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(result)
				}
				return writePlain("swept %d of %d candidate blobs, reclaimed %d bytes\n",
					result.Deleted, result.Scanned, result.BytesReclaimed)
			})
		},
	}

	cmd.Flags().IntVar(&graceHours, "grace-hours", 0, "grace window in hours (default: config backup.gc_grace_hours)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "maximum blobs per sweep (default: config backup.gc_batch_size)")
	return cmd
}
