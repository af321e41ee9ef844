package main

import (
	"github.com/spf13/cobra"

	"mailvault/internal/api"
	"mailvault/internal/config"
)

func newStatusCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the dashboard server and show storage stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(cfg.APIURL)
			ctx := cmd.Context()

			if err := client.Ping(ctx); err != nil {
				return err
			}
			info, err := client.GetInfo(ctx)
			if err != nil {
				return err
			}
			stats, err := client.GetStats(ctx)
			if err != nil {
				return err
			}

			if *jsonOutput {
				return writeJSON(map[string]any{
					"server": cfg.APIURL,
					"info":   info,
					"stats":  stats,
				})
			}

			_ = writePlain("server: %s (version %s, schema %d)\n", cfg.APIURL, info.Version, info.SchemaVersion)
			_ = writePlain("blobs: %d (%d bytes stored)\n", stats.BlobCount, stats.TotalBytes)
			_ = writePlain("references: %d (%d bytes logical)\n", stats.ReferenceCount, stats.LogicalBytes)
			return nil
		},
	}
}
