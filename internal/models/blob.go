package models

import "time"

// Blob is one globally deduplicated content object, keyed by digest.
// RefCount counts live index entries resolving to the digest; completed
// snapshots may keep the bytes alive after RefCount reaches zero.
type Blob struct {
	Digest     string     `json:"digest"`
	SizeBytes  int64      `json:"size_bytes"`
	BlobKey    string     `json:"blob_key"`
	RefCount   int64      `json:"ref_count"`
	CreatedAt  time.Time  `json:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}
