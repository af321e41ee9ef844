package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mailvault/internal/models"
)

const entryColumns = "tenant_id, mailbox_id, item_id, kind, digest, size_bytes, provider_modified_at, first_seen_at, last_seen_at, tombstoned_at"

// UpsertOutcome classifies one index update.
type UpsertOutcome string

const (
	UpsertCreated   UpsertOutcome = "created"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// UpsertResult reports what an index upsert did. OldDigest is set only for
// UpsertUpdated, so the caller can release the superseded reference.
type UpsertResult struct {
	Outcome   UpsertOutcome
	OldDigest string
}

// UpsertEntry records the current digest for one identity. Unchanged content
// only refreshes last_seen_at; changed content swaps the digest and reports
// the old one. A tombstoned entry seen again is revived. The caller owns the
// matching blob retain/release calls.
func (s *Store) UpsertEntry(ctx context.Context, identity models.Identity, digest string, sizeBytes int64, providerModified time.Time) (result UpsertResult, err error) {
	if err := identity.Validate(); err != nil {
		return UpsertResult{}, err
	}
	if digest == "" {
		return UpsertResult{}, fmt.Errorf("digest is required")
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := scanEntry(tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE tenant_id = ? AND mailbox_id = ? AND item_id = ? AND kind = ?
	`, identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind)))
	if err != nil {
		return UpsertResult{}, err
	}

	switch {
	case existing == nil:
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO entries (tenant_id, mailbox_id, item_id, kind, digest, size_bytes, provider_modified_at, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind),
			digest, sizeBytes, nullTimeValue(providerModified), formatTime(now), formatTime(now)); err != nil {
			return UpsertResult{}, err
		}
		result = UpsertResult{Outcome: UpsertCreated}

	case existing.Digest == digest && existing.Live():
		if _, err = tx.ExecContext(ctx, `
			UPDATE entries SET last_seen_at = ?, provider_modified_at = ?
			WHERE tenant_id = ? AND mailbox_id = ? AND item_id = ? AND kind = ?
		`, formatTime(now), nullTimeValue(providerModified),
			identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind)); err != nil {
			return UpsertResult{}, err
		}
		result = UpsertResult{Outcome: UpsertUnchanged}

	default:
		// Changed content, or a tombstoned identity that reappeared.
		if _, err = tx.ExecContext(ctx, `
			UPDATE entries SET digest = ?, size_bytes = ?, provider_modified_at = ?, last_seen_at = ?, tombstoned_at = NULL
			WHERE tenant_id = ? AND mailbox_id = ? AND item_id = ? AND kind = ?
		`, digest, sizeBytes, nullTimeValue(providerModified), formatTime(now),
			identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind)); err != nil {
			return UpsertResult{}, err
		}
		result = UpsertResult{Outcome: UpsertUpdated}
		if existing.Digest != digest {
			result.OldDigest = existing.Digest
		}
	}

	return result, tx.Commit()
}

// TombstoneEntry marks an identity as gone upstream. History is preserved:
// the row stays, its digest keeps its reference, snapshots stay valid.
// Tombstoning an unknown identity is ErrNotFound; tombstoning twice is a
// no-op.
func (s *Store) TombstoneEntry(ctx context.Context, identity models.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET tombstoned_at = ?
		WHERE tenant_id = ? AND mailbox_id = ? AND item_id = ? AND kind = ? AND tombstoned_at IS NULL
	`, formatTime(time.Now()), identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.LookupEntry(ctx, identity); err != nil {
		return err
	}
	return nil
}

// LookupEntry returns the current entry for an identity, or ErrNotFound.
func (s *Store) LookupEntry(ctx context.Context, identity models.Identity) (*models.Entry, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	entry, err := scanEntry(s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE tenant_id = ? AND mailbox_id = ? AND item_id = ? AND kind = ?
	`, identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind)))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, identity)
	}
	return entry, nil
}

// ListEntriesForSnapshot returns entries for a scope that were live at asOf,
// or tombstoned after it, ordered by identity so snapshot construction is
// deterministic.
func (s *Store) ListEntriesForSnapshot(ctx context.Context, scope string, asOf time.Time) ([]models.Entry, error) {
	scope = models.NormalizeScope(scope)

	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE (tombstoned_at IS NULL OR tombstoned_at > ?)`
	args := []any{formatTime(asOf)}
	if scope != models.ScopeAll {
		query += " AND tenant_id = ?"
		args = append(args, scope)
	}
	query += " ORDER BY tenant_id, mailbox_id, item_id, kind"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface {
	Scan(dest ...any) error
}) (*models.Entry, error) {
	entry := models.Entry{}
	var kind string
	var providerModified, tombstonedAt sql.NullString
	var firstSeen, lastSeen string

	err := scanner.Scan(
		&entry.Identity.TenantID,
		&entry.Identity.MailboxID,
		&entry.Identity.ItemID,
		&kind,
		&entry.Digest,
		&entry.SizeBytes,
		&providerModified,
		&firstSeen,
		&lastSeen,
		&tombstonedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	entry.Identity.Kind = models.ItemKind(kind)

	if providerModified.Valid {
		parsed, err := parseTime(providerModified.String)
		if err != nil {
			return nil, err
		}
		entry.ProviderModifiedAt = parsed
	}
	if entry.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if entry.LastSeenAt, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	if tombstonedAt.Valid {
		parsed, err := parseTime(tombstonedAt.String)
		if err != nil {
			return nil, err
		}
		entry.TombstonedAt = &parsed
	}

	return &entry, nil
}

func nullTimeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
