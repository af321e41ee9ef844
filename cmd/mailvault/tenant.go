package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mailvault/internal/config"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

func newTenantCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage the tenant registry",
	}
	cmd.AddCommand(
		newTenantAddCmd(cfg, jsonOutput),
		newTenantListCmd(cfg, jsonOutput),
		newTenantRemoveCmd(cfg, jsonOutput),
		newTenantImportCmd(cfg, jsonOutput),
	)
	return cmd
}

func newTenantAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var name string
	var clientID string

	cmd := &cobra.Command{
		Use:   "add <tenant-id>",
		Short: "Register one tenant",
		Args:  requireExactlyArgs(1, "tenant id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := strings.TrimSpace(args[0])
			if tenantID == "" {
				return fmt.Errorf("tenant id is required")
			}

			return withStore(cfg, func(st *store.Store) error {
				tenant := &models.Tenant{
					TenantID: tenantID,
					Name:     name,
					ClientID: clientID,
					Active:   true,
				}
				if err := st.UpsertTenant(cmd.Context(), tenant); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(tenant)
				}
				return writePlain("registered tenant %s\n", tenant.TenantID)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default: tenant id)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "application client id")
	return cmd
}

func newTenantListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				tenants, err := st.ListTenants(cmd.Context(), !all)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(tenants)
				}
				if len(tenants) == 0 {
					return writePlain("no tenants registered\n")
				}
				for _, tenant := range tenants {
					status := "active"
					if !tenant.Active {
						status = "inactive"
					}
					if err := writePlain("%s\t%s\t%s\n", tenant.TenantID, tenant.Name, status); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include deactivated tenants")
	return cmd
}

func newTenantRemoveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <tenant-id>",
		Aliases: []string{"rm"},
		Short:   "Deactivate one tenant",
		Long: `Deactivates a tenant so the scheduler stops backing it up. Existing
snapshots and blobs are kept.`,
		Args: requireExactlyArgs(1, "tenant id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				if err := st.DeactivateTenant(cmd.Context(), args[0]); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"tenant_id": args[0], "active": false})
				}
				return writePlain("deactivated tenant %s\n", args[0])
			})
		},
	}
}

func newTenantImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Sync the tenant registry from a tenants.yaml file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = cfg.TenantsPath
			}
			entries, err := config.LoadTenants(path)
			if err != nil {
				return err
			}

			return withStore(cfg, func(st *store.Store) error {
				for _, entry := range entries {
					tenant := &models.Tenant{
						TenantID: entry.TenantID,
						Name:     entry.Name,
						ClientID: entry.ClientID,
						Active:   true,
					}
					if err := st.UpsertTenant(cmd.Context(), tenant); err != nil {
						return fmt.Errorf("import tenant %s: %w", entry.TenantID, err)
					}
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"imported": len(entries)})
				}
				return writePlain("imported %d tenants from %s\n", len(entries), path)
			})
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "tenants file (default: tenants_path from config)")
	return cmd
}
