package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mailvault/internal/config"
	"mailvault/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var pretty bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "mailvault",
		Short: "Mailvault is a deduplicating mailbox backup store for Microsoft 365 tenants",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if pretty {
				outputFormatter = format.JSONFormatter{Indent: "  "}
			}
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newStatusCmd(cfg, &jsonOutput),
		newBackupCmd(cfg, &jsonOutput),
		newSchedCmd(cfg, &jsonOutput),
		newSnapshotsCmd(cfg, &jsonOutput),
		newTenantCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newExportCmd(cfg),
		newRestoreCmd(),
		newAdminUserCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
	)

	return cmd
}
