package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mailvault/internal/models"
)

const tenantColumns = "tenant_id, name, client_id, is_active, created_at, updated_at"

// UpsertTenant registers or reactivates one tenant. Tenants are a
// namespacing boundary only; credentials for the Graph fetcher live in the
// tenants file, not here.
func (s *Store) UpsertTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	tenant.TenantID = strings.TrimSpace(tenant.TenantID)
	tenant.Name = strings.TrimSpace(tenant.Name)
	if tenant.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if tenant.Name == "" {
		tenant.Name = tenant.TenantID
	}

	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now
	tenant.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, name, client_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			name = excluded.name,
			client_id = excluded.client_id,
			is_active = 1,
			updated_at = excluded.updated_at
	`, tenant.TenantID, tenant.Name, nullIfEmpty(strings.TrimSpace(tenant.ClientID)),
		formatTime(tenant.CreatedAt), formatTime(tenant.UpdatedAt))
	return err
}

// GetTenant returns one tenant by id, or ErrNotFound.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id = ?`, tenantID)
	tenant, err := scanTenant(row)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	return tenant, nil
}

// ListTenants returns tenants ordered by name. With activeOnly, deactivated
// tenants are omitted.
func (s *Store) ListTenants(ctx context.Context, activeOnly bool) ([]models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := []models.Tenant{}
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		if tenant != nil {
			tenants = append(tenants, *tenant)
		}
	}
	return tenants, rows.Err()
}

// DeactivateTenant soft-deletes a tenant. Its entries, snapshots, and blobs
// stay untouched; only future runs skip it.
func (s *Store) DeactivateTenant(ctx context.Context, tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET is_active = 0, updated_at = ? WHERE tenant_id = ?
	`, formatTime(time.Now()), tenantID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	return nil
}

func scanTenant(scanner interface {
	Scan(dest ...any) error
}) (*models.Tenant, error) {
	tenant := models.Tenant{}
	var clientID sql.NullString
	var active int
	var createdAt, updatedAt string

	err := scanner.Scan(&tenant.TenantID, &tenant.Name, &clientID, &active, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	tenant.ClientID = clientID.String
	tenant.Active = active != 0
	if tenant.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tenant.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &tenant, nil
}
