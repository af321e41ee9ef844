package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailvault/internal/blobstore"
	"mailvault/internal/store"
)

// GCOptions tunes one reclamation sweep.
type GCOptions struct {
	// GraceWindow keeps released blobs around for this long before they may
	// be physically deleted.
	GraceWindow time.Duration

	// BatchSize bounds how many blobs one sweep considers.
	BatchSize int
}

func (o GCOptions) normalized() GCOptions {
	if o.GraceWindow <= 0 {
		o.GraceWindow = 72 * time.Hour
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	return o
}

// GCResult summarizes one sweep.
type GCResult struct {
	Scanned        int   `json:"scanned"`
	Deleted        int   `json:"deleted"`
	BytesReclaimed int64 `json:"bytes_reclaimed"`
}

// SweepBlobs deletes blobs that have been unreferenced for at least the grace
// window and are not held by any recorded snapshot. The catalog row is
// removed first with a conditional delete, so an ingestion run that retained
// the digest after it was listed wins the race and keeps both row and
// payload. A crash after the row delete leaves an orphan payload, which the
// next put of the same content simply reuses.
func SweepBlobs(ctx context.Context, st store.ContentCatalog, cas blobstore.BlobStore, opts GCOptions, logger *slog.Logger) (GCResult, error) {
	opts = opts.normalized()
	if logger == nil {
		logger = slog.Default()
	}

	cutoff := time.Now().Add(-opts.GraceWindow)
	candidates, err := st.ListReclaimableBlobs(ctx, cutoff, opts.BatchSize)
	if err != nil {
		return GCResult{}, fmt.Errorf("list reclaimable blobs: %w", err)
	}

	result := GCResult{Scanned: len(candidates)}
	for _, blob := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		deleted, err := st.DeleteBlob(ctx, blob.Digest, cutoff)
		if err != nil {
			return result, fmt.Errorf("delete blob row %s: %w", blob.Digest, err)
		}
		if !deleted {
			logger.Info("blob regained a reference, skipping", "digest", blob.Digest)
			continue
		}
		if err := cas.Delete(ctx, blob.Digest); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			logger.Warn("blob payload delete failed", "digest", blob.Digest, "error", err)
		}
		result.Deleted++
		result.BytesReclaimed += blob.SizeBytes
	}

	if result.Deleted > 0 {
		logger.Info("blob sweep complete", "scanned", result.Scanned, "deleted", result.Deleted, "bytes_reclaimed", result.BytesReclaimed)
	}
	return result, nil
}
