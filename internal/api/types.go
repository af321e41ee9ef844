package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	Version       string `json:"version"`
	SchemaVersion int    `json:"schema_version"`
}

// SnapshotResponse is the wire form of one snapshot.
type SnapshotResponse struct {
	ID            int64      `json:"id"`
	Scope         string     `json:"scope"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ItemsRecorded int64      `json:"items_recorded"`
	ItemsSkipped  int64      `json:"items_skipped"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

// SnapshotItemResponse is one recorded item within a snapshot.
type SnapshotItemResponse struct {
	TenantID  string `json:"tenant_id"`
	MailboxID string `json:"mailbox_id"`
	ItemID    string `json:"item_id"`
	Kind      string `json:"kind"`
	Digest    string `json:"digest"`
}

// EntryResponse is the wire form of one object-index entry.
type EntryResponse struct {
	TenantID           string     `json:"tenant_id"`
	MailboxID          string     `json:"mailbox_id"`
	ItemID             string     `json:"item_id"`
	Kind               string     `json:"kind"`
	Digest             string     `json:"digest"`
	SizeBytes          int64      `json:"size_bytes"`
	ProviderModifiedAt time.Time  `json:"provider_modified_at"`
	FirstSeenAt        time.Time  `json:"first_seen_at"`
	LastSeenAt         time.Time  `json:"last_seen_at"`
	TombstonedAt       *time.Time `json:"tombstoned_at,omitempty"`
}

// BlobResponse is the wire form of one catalog blob row.
type BlobResponse struct {
	Digest     string     `json:"digest"`
	SizeBytes  int64      `json:"size_bytes"`
	BlobKey    string     `json:"blob_key"`
	RefCount   int64      `json:"ref_count"`
	CreatedAt  time.Time  `json:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// TenantResponse is the wire form of one registered tenant.
type TenantResponse struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	ClientID string `json:"client_id"`
	Active   bool   `json:"active"`
}

// StatsResponse summarizes catalog usage for the dashboard.
type StatsResponse struct {
	BlobCount      int64 `json:"blob_count"`
	TotalBytes     int64 `json:"total_bytes"`
	ReferenceCount int64 `json:"reference_count"`
	LogicalBytes   int64 `json:"logical_bytes"`
}
