package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// ErrNotFound reports that no blob with the requested digest is stored.
var ErrNotFound = errors.New("blob not found")

// ErrWriteFailure wraps medium-level faults during Put. Writes are
// all-or-nothing per blob; a failed Put leaves no partial object behind.
var ErrWriteFailure = errors.New("blob write failure")

// PutResult describes one persisted blob payload.
type PutResult struct {
	Digest    string
	SizeBytes int64
	BlobKey   string
	WasNew    bool
}

// BlobStore is the physical byte-storage abstraction. Implementations must
// tolerate concurrent Put calls with identical content: first writers
// converge on a single stored copy.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (PutResult, error)
	Open(ctx context.Context, digest string) (io.ReadCloser, error)
	Delete(ctx context.Context, digest string) error
}

// DigestBytes computes the content digest of raw bytes. It is exposed
// independently of Put so callers can detect unchanged content without
// touching storage.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
