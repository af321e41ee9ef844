package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Restore a snapshot back to the provider (not implemented)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(os.Stderr, "restore-to-provider is not implemented")
			fmt.Fprintln(os.Stderr, "use 'mailvault snapshots candidates' to pick a restore point and")
			fmt.Fprintln(os.Stderr, "'mailvault export' to produce an archive for manual recovery")
			os.Exit(2)
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
