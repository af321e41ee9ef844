package main

import (
	"github.com/spf13/cobra"

	"mailvault/internal/config"
	"mailvault/internal/store"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show catalog and blob store info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				ctx := cmd.Context()

				stats, err := st.GetBlobStats(ctx)
				if err != nil {
					return err
				}
				tenants, err := st.ListTenants(ctx, false)
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(map[string]any{
						"version":        version,
						"db_path":        cfg.DBPath,
						"blob_root":      cfg.BlobRoot,
						"schema_version": store.SchemaVersion(),
						"tenant_count":   len(tenants),
						"blob_stats":     stats,
					})
				}

				_ = writePlain("version: %s\n", version)
				_ = writePlain("db_path: %s\n", cfg.DBPath)
				_ = writePlain("blob_root: %s\n", cfg.BlobRoot)
				_ = writePlain("schema_version: %d\n", store.SchemaVersion())
				_ = writePlain("tenants: %d\n", len(tenants))
				_ = writePlain("blobs: %d (%d bytes stored, %d bytes logical, %d references)\n",
					stats.BlobCount, stats.TotalBytes, stats.LogicalBytes, stats.ReferenceCount)
				return nil
			})
		},
	}
	return cmd
}
