package store

import (
	"context"
	"time"

	"mailvault/internal/models"
)

// ContentCatalog is the blob-side contract the ingestion pipeline depends
// on: reference counting over globally deduplicated digests.
type ContentCatalog interface {
	RetainBlob(ctx context.Context, digest string, sizeBytes int64, blobKey string) (bool, error)
	ReleaseBlob(ctx context.Context, digest string) error
	GetBlob(ctx context.Context, digest string) (*models.Blob, error)
	ListReclaimableBlobs(ctx context.Context, releasedBefore time.Time, limit int) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, digest string, releasedBefore time.Time) (bool, error)
}

// ObjectIndex is the logical-identity contract: current digest per item.
type ObjectIndex interface {
	UpsertEntry(ctx context.Context, identity models.Identity, digest string, sizeBytes int64, providerModified time.Time) (UpsertResult, error)
	TombstoneEntry(ctx context.Context, identity models.Identity) error
	LookupEntry(ctx context.Context, identity models.Identity) (*models.Entry, error)
	ListEntriesForSnapshot(ctx context.Context, scope string, asOf time.Time) ([]models.Entry, error)
}

// SnapshotManager is the point-in-time view contract.
type SnapshotManager interface {
	BeginSnapshot(ctx context.Context, scope string) (int64, error)
	RecordSnapshotItem(ctx context.Context, snapshotID int64, identity models.Identity, digest string) error
	RecordSnapshotSkip(ctx context.Context, snapshotID int64, identity models.Identity, reason string) error
	CompleteSnapshot(ctx context.Context, snapshotID int64) error
	FailSnapshot(ctx context.Context, snapshotID int64, reason string) error
	GetSnapshot(ctx context.Context, snapshotID int64) (*models.Snapshot, error)
	ComputeIncrementalPlan(ctx context.Context, scope string, sinceSnapshotID int64) ([]models.Identity, error)
	ListRestoreCandidates(ctx context.Context, scope string, limit int) ([]models.Snapshot, error)
}

// BackupStore is everything one ingestion run needs.
type BackupStore interface {
	ContentCatalog
	ObjectIndex
	SnapshotManager
}

// ReadStore is the read-only surface exposed to the dashboard server.
type ReadStore interface {
	GetBlob(ctx context.Context, digest string) (*models.Blob, error)
	GetBlobStats(ctx context.Context) (BlobStats, error)
	LookupEntry(ctx context.Context, identity models.Identity) (*models.Entry, error)
	GetSnapshot(ctx context.Context, snapshotID int64) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, scope string, limit int) ([]models.Snapshot, error)
	ListSnapshotItems(ctx context.Context, snapshotID int64) ([]models.SnapshotItem, error)
	ListRestoreCandidates(ctx context.Context, scope string, limit int) ([]models.Snapshot, error)
	ListTenants(ctx context.Context, activeOnly bool) ([]models.Tenant, error)
	GetAdminUser(ctx context.Context, username string) (*AdminUser, error)
	ListAdminUsers(ctx context.Context) ([]AdminUser, error)
}

var (
	_ BackupStore = (*Store)(nil)
	_ ReadStore   = (*Store)(nil)
)
