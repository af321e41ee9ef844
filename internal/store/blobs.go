package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mailvault/internal/models"
)

const blobColumns = "digest, size_bytes, blob_key, ref_count, created_at, released_at"

// RetainBlob records one logical reference to a digest. The first reference
// for a digest inserts its catalog row with ref_count 1 and reports
// wasNew=true; later references increment the count atomically. Physical
// byte storage is the blobstore's job and must happen before the first
// retain for the digest.
func (s *Store) RetainBlob(ctx context.Context, digest string, sizeBytes int64, blobKey string) (wasNew bool, err error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if digest == "" {
		return false, fmt.Errorf("digest is required")
	}
	if sizeBytes < 0 {
		return false, fmt.Errorf("size_bytes must be >= 0")
	}
	if strings.TrimSpace(blobKey) == "" {
		return false, fmt.Errorf("blob_key is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE blobs SET ref_count = ref_count + 1, released_at = NULL WHERE digest = ?
	`, digest)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if affected == 0 {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO blobs (digest, size_bytes, blob_key, ref_count, created_at)
			VALUES (?, ?, ?, 1, ?)
		`, digest, sizeBytes, blobKey, formatTime(time.Now())); err != nil {
			return false, err
		}
		wasNew = true
	}

	return wasNew, tx.Commit()
}

// ReleaseBlob decrements one reference. When the count reaches zero the blob
// becomes eligible for deferred reclamation; the row and bytes stay in place
// until a sweep decides otherwise. Releasing an unknown digest is
// ErrNotFound; releasing below zero is ErrInvalidState.
func (s *Store) ReleaseBlob(ctx context.Context, digest string) error {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if digest == "" {
		return fmt.Errorf("digest is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE blobs
		SET ref_count = ref_count - 1,
		    released_at = CASE WHEN ref_count = 1 THEN ? ELSE released_at END
		WHERE digest = ? AND ref_count > 0
	`, formatTime(time.Now()), digest)
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

	blob, err := s.GetBlob(ctx, digest)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: release of unreferenced blob %s", ErrInvalidState, blob.Digest)
}

// GetBlob returns the catalog row for a digest, or ErrNotFound.
func (s *Store) GetBlob(ctx context.Context, digest string) (*models.Blob, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE digest = ?`, digest)
	blob, err := scanBlob(row)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: blob %s", ErrNotFound, digest)
	}
	return blob, nil
}

// ListReclaimableBlobs returns zero-reference blobs released before the
// cutoff that no snapshot still references. The grace window keeps blobs a
// just-failed run may want again; snapshot membership keeps historical
// snapshots resolvable.
func (s *Store) ListReclaimableBlobs(ctx context.Context, releasedBefore time.Time, limit int) ([]models.Blob, error) {
	query := `
		SELECT ` + blobColumnsPrefixed("b") + `
		FROM blobs b
		WHERE b.ref_count = 0
		  AND b.released_at IS NOT NULL
		  AND b.released_at < ?
		  AND NOT EXISTS (SELECT 1 FROM snapshot_items si WHERE si.digest = b.digest)
		ORDER BY b.released_at ASC`
	args := []any{formatTime(releasedBefore)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	return blobs, rows.Err()
}

// DeleteBlob removes one catalog row, but only while it is still
// unreferenced and past the reclamation cutoff. A retain that lands between
// listing and deletion clears released_at, so the delete loses and reports
// false; the caller must then leave the payload alone.
func (s *Store) DeleteBlob(ctx context.Context, digest string, releasedBefore time.Time) (bool, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM blobs
		WHERE digest = ?
		  AND ref_count = 0
		  AND released_at IS NOT NULL
		  AND released_at < ?
	`, digest, formatTime(releasedBefore))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// BlobStats summarizes catalog-wide dedup effect.
type BlobStats struct {
	BlobCount      int64 `json:"blob_count"`
	TotalBytes     int64 `json:"total_bytes"`
	ReferenceCount int64 `json:"reference_count"`
	LogicalBytes   int64 `json:"logical_bytes"`
}

// GetBlobStats reports physical vs logical storage usage.
func (s *Store) GetBlobStats(ctx context.Context) (BlobStats, error) {
	var stats BlobStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(size_bytes), 0),
		       COALESCE(SUM(ref_count), 0),
		       COALESCE(SUM(size_bytes * ref_count), 0)
		FROM blobs
	`).Scan(&stats.BlobCount, &stats.TotalBytes, &stats.ReferenceCount, &stats.LogicalBytes)
	return stats, err
}

func blobColumnsPrefixed(alias string) string {
	cols := strings.Split(blobColumns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var createdAt string
	var releasedAt sql.NullString

	err := scanner.Scan(&blob.Digest, &blob.SizeBytes, &blob.BlobKey, &blob.RefCount, &createdAt, &releasedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	if releasedAt.Valid {
		parsedReleased, err := parseTime(releasedAt.String)
		if err != nil {
			return nil, err
		}
		blob.ReleasedAt = &parsedReleased
	}

	return &blob, nil
}
