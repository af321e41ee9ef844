package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mailvault/internal/config"
	"mailvault/internal/store"
)

func newSnapshotsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect recorded snapshots",
	}
	cmd.AddCommand(
		newSnapshotsListCmd(cfg, jsonOutput),
		newSnapshotsShowCmd(cfg, jsonOutput),
		newSnapshotsItemsCmd(cfg, jsonOutput),
		newSnapshotsCandidatesCmd(cfg, jsonOutput),
		newSnapshotsPlanCmd(cfg, jsonOutput),
		newSnapshotsFailCmd(cfg),
	)
	return cmd
}

func newSnapshotsListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var scope string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				snapshots, err := st.ListSnapshots(cmd.Context(), scope, limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(snapshots)
				}
				if len(snapshots) == 0 {
					return writePlain("no snapshots recorded\n")
				}
				return writeSnapshotList(snapshots)
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "filter by tenant scope")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum snapshots to list")
	return cmd
}

func newSnapshotsShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one snapshot",
		Args:  requireExactlyArgs(1, "snapshot id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(st *store.Store) error {
				snapshot, err := st.GetSnapshot(cmd.Context(), id)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(snapshot)
				}
				return writeSnapshotDetail(snapshot)
			})
		},
	}
}

func newSnapshotsItemsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "items <id>",
		Short: "List the items recorded in one snapshot",
		Args:  requireExactlyArgs(1, "snapshot id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(st *store.Store) error {
				items, err := st.ListSnapshotItems(cmd.Context(), id)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(items)
				}
				for _, item := range items {
					if err := writePlain("%s %s\n", item.Digest, item.Identity.String()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newSnapshotsCandidatesCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var scope string
	var limit int

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List completed snapshots usable as restore points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				snapshots, err := st.ListRestoreCandidates(cmd.Context(), scope, limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(snapshots)
				}
				if len(snapshots) == 0 {
					return writePlain("no restore candidates for scope %q\n", scope)
				}
				return writeSnapshotList(snapshots)
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "tenant scope (empty = all)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum candidates to list")
	return cmd
}

func newSnapshotsPlanCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "plan <since-id>",
		Short: "Compute the incremental fetch plan since a base snapshot",
		Args:  requireExactlyArgs(1, "base snapshot id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceID, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(st *store.Store) error {
				identities, err := st.ComputeIncrementalPlan(cmd.Context(), scope, sinceID)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(identities)
				}
				if len(identities) == 0 {
					return writePlain("nothing to re-fetch since snapshot #%d\n", sinceID)
				}
				for _, identity := range identities {
					if err := writePlain("%s\n", identity.String()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "tenant scope (empty = all)")
	return cmd
}

// newSnapshotsFailCmd marks a running snapshot as failed. A run killed without
// cleanup leaves its snapshot in running and blocks new runs for the scope;
// this is the operator's way to clear it once the process is confirmed dead.
func newSnapshotsFailCmd(cfg *config.Config) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a stuck running snapshot as failed",
		Args:  requireExactlyArgs(1, "snapshot id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(st *store.Store) error {
				if err := st.FailSnapshot(cmd.Context(), id, reason); err != nil {
					return err
				}
				return writePlain("snapshot #%d marked failed\n", id)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "aborted by operator", "failure reason to record")
	return cmd
}

func parseSnapshotID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid snapshot id %q", raw)
	}
	return id, nil
}
