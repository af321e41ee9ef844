package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mailvault/internal/models"
)

const snapshotColumns = "id, scope, status, started_at, finished_at, items_recorded, items_skipped, failure_reason"

// BeginSnapshot opens a running snapshot for a tenant scope. At most one
// snapshot per scope may be running; a second begin fails with
// ErrAlreadyRunning (enforced by a partial unique index, so concurrent
// pipelines for the same scope cannot interleave).
func (s *Store) BeginSnapshot(ctx context.Context, scope string) (int64, error) {
	scope = models.NormalizeScope(scope)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (scope, status, started_at) VALUES (?, ?, ?)
	`, scope, string(models.SnapshotRunning), formatTime(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: scope %s", ErrAlreadyRunning, scope)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// RecordSnapshotItem appends one (identity, digest) pair to a running
// snapshot. Retrying the same pair is a no-op; the same identity with a
// different digest in one snapshot is ErrInvalidState.
func (s *Store) RecordSnapshotItem(ctx context.Context, snapshotID int64, identity models.Identity, digest string) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	if digest == "" {
		return fmt.Errorf("digest is required")
	}

	snapshot, err := s.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if snapshot.Status != models.SnapshotRunning {
		return fmt.Errorf("%w: snapshot %d is %s, not running", ErrInvalidState, snapshotID, snapshot.Status)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshot_items (snapshot_id, tenant_id, mailbox_id, item_id, kind, digest)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snapshotID, identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind), digest)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected > 0 {
		_, err = s.db.ExecContext(ctx, "UPDATE snapshots SET items_recorded = items_recorded + 1 WHERE id = ?", snapshotID)
		return err
	}

	// Duplicate record: a retry of the identical pair is fine, a digest
	// mismatch means two writers disagree about one item in one run.
	var recorded string
	err = s.db.QueryRowContext(ctx, `
		SELECT digest FROM snapshot_items
		WHERE snapshot_id = ? AND tenant_id = ? AND mailbox_id = ? AND item_id = ? AND kind = ?
	`, snapshotID, identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind)).Scan(&recorded)
	if err != nil {
		return err
	}
	if recorded != digest {
		return fmt.Errorf("%w: snapshot %d already records %s with digest %s", ErrInvalidState, snapshotID, identity, recorded)
	}
	return nil
}

// RecordSnapshotSkip records an item that failed during a run. Skips are
// persisted, not just logged, so ComputeIncrementalPlan retries them later.
func (s *Store) RecordSnapshotSkip(ctx context.Context, snapshotID int64, identity models.Identity, reason string) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshot_skips (snapshot_id, tenant_id, mailbox_id, item_id, kind, reason, skipped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snapshotID, identity.TenantID, identity.MailboxID, identity.ItemID, string(identity.Kind),
		strings.TrimSpace(reason), formatTime(time.Now()))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		_, err = s.db.ExecContext(ctx, "UPDATE snapshots SET items_skipped = items_skipped + 1 WHERE id = ?", snapshotID)
	}
	return err
}

// CompleteSnapshot transitions Running to Complete.
func (s *Store) CompleteSnapshot(ctx context.Context, snapshotID int64) error {
	return s.finishSnapshot(ctx, snapshotID, models.SnapshotComplete, "")
}

// FailSnapshot transitions Running to Failed, keeping partial records for
// diagnostics. A failed snapshot is never resumed; retry starts a fresh id.
func (s *Store) FailSnapshot(ctx context.Context, snapshotID int64, reason string) error {
	return s.finishSnapshot(ctx, snapshotID, models.SnapshotFailed, strings.TrimSpace(reason))
}

func (s *Store) finishSnapshot(ctx context.Context, snapshotID int64, status models.SnapshotStatus, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET status = ?, finished_at = ?, failure_reason = ?
		WHERE id = ? AND status = ?
	`, string(status), formatTime(time.Now()), nullIfEmpty(reason), snapshotID, string(models.SnapshotRunning))
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

	snapshot, err := s.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: snapshot %d is %s, cannot transition to %s", ErrInvalidState, snapshotID, snapshot.Status, status)
}

// GetSnapshot returns one snapshot by id, or ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, snapshotID int64) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, snapshotID)
	snapshot, err := scanSnapshot(row)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("%w: snapshot %d", ErrNotFound, snapshotID)
	}
	return snapshot, nil
}

// ListRestoreCandidates returns completed snapshots covering a scope, most
// recent first. All-tenant snapshots also cover every single-tenant scope.
func (s *Store) ListRestoreCandidates(ctx context.Context, scope string, limit int) ([]models.Snapshot, error) {
	scope = models.NormalizeScope(scope)

	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE status = ?`
	args := []any{string(models.SnapshotComplete)}
	if scope != models.ScopeAll {
		query += " AND (scope = ? OR scope = ?)"
		args = append(args, scope, models.ScopeAll)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.querySnapshots(ctx, query, args...)
}

// ListSnapshots returns snapshots for a scope in any status, most recent
// first. Used by the dashboard and CLI listings.
func (s *Store) ListSnapshots(ctx context.Context, scope string, limit int) ([]models.Snapshot, error) {
	scope = models.NormalizeScope(scope)

	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	args := []any{}
	if scope != models.ScopeAll {
		query += " WHERE (scope = ? OR scope = ?)"
		args = append(args, scope, models.ScopeAll)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.querySnapshots(ctx, query, args...)
}

// ListSnapshotItems returns the recorded (identity, digest) pairs of one
// snapshot, ordered by identity.
func (s *Store) ListSnapshotItems(ctx context.Context, snapshotID int64) ([]models.SnapshotItem, error) {
	if _, err := s.GetSnapshot(ctx, snapshotID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, tenant_id, mailbox_id, item_id, kind, digest
		FROM snapshot_items
		WHERE snapshot_id = ?
		ORDER BY tenant_id, mailbox_id, item_id, kind
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.SnapshotItem{}
	for rows.Next() {
		var item models.SnapshotItem
		var kind string
		if err := rows.Scan(&item.SnapshotID, &item.Identity.TenantID, &item.Identity.MailboxID,
			&item.Identity.ItemID, &kind, &item.Digest); err != nil {
			return nil, err
		}
		item.Identity.Kind = models.ItemKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ComputeIncrementalPlan returns the identities a new run for the scope
// should re-fetch, given a completed base snapshot: entries the provider
// modified at or after the base started, entries no run has seen since the
// base started, entries tombstoned since the base started (so a restored
// item is revived and a confirmed deletion sticks), and everything skipped
// by runs after the base. Identities tombstoned before the base stay out.
// Best-effort by design; content-digest dedup absorbs over-selection.
func (s *Store) ComputeIncrementalPlan(ctx context.Context, scope string, sinceSnapshotID int64) ([]models.Identity, error) {
	scope = models.NormalizeScope(scope)

	since, err := s.GetSnapshot(ctx, sinceSnapshotID)
	if err != nil {
		return nil, err
	}
	base := formatTime(since.StartedAt)

	query := `
		SELECT tenant_id, mailbox_id, item_id, kind FROM entries
		WHERE (
		    (tombstoned_at IS NULL
		     AND (provider_modified_at IS NULL OR provider_modified_at >= ? OR last_seen_at < ?))
		    OR tombstoned_at >= ?
		)`
	args := []any{base, base, base}
	if scope != models.ScopeAll {
		query += " AND tenant_id = ?"
		args = append(args, scope)
	}
	query += `
		UNION
		SELECT sk.tenant_id, sk.mailbox_id, sk.item_id, sk.kind
		FROM snapshot_skips sk
		JOIN snapshots sn ON sn.id = sk.snapshot_id
		WHERE sk.snapshot_id >= ?`
	args = append(args, sinceSnapshotID)
	if scope != models.ScopeAll {
		query += " AND sn.scope IN (?, ?)"
		args = append(args, scope, models.ScopeAll)
	}
	query += " ORDER BY tenant_id, mailbox_id, item_id, kind"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := []models.Identity{}
	for rows.Next() {
		var identity models.Identity
		var kind string
		if err := rows.Scan(&identity.TenantID, &identity.MailboxID, &identity.ItemID, &kind); err != nil {
			return nil, err
		}
		identity.Kind = models.ItemKind(kind)
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...any) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []models.Snapshot{}
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			snapshots = append(snapshots, *snapshot)
		}
	}
	return snapshots, rows.Err()
}

func scanSnapshot(scanner interface {
	Scan(dest ...any) error
}) (*models.Snapshot, error) {
	snapshot := models.Snapshot{}
	var status, startedAt string
	var finishedAt, failureReason sql.NullString

	err := scanner.Scan(&snapshot.ID, &snapshot.Scope, &status, &startedAt, &finishedAt,
		&snapshot.ItemsRecorded, &snapshot.ItemsSkipped, &failureReason)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	snapshot.Status = models.SnapshotStatus(status)
	if snapshot.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		parsed, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		snapshot.FinishedAt = &parsed
	}
	snapshot.FailureReason = failureReason.String

	return &snapshot, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
