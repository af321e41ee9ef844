package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const casAlgorithmPrefix = "sha256"

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LocalCAS stores blob bytes in a local content-addressed tree keyed by
// digest: sha256/ab/cd/<digest>. The tree is shared by every tenant; two
// mailboxes with identical content land on the same file.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// KeyForDigest returns the relative storage key for a digest.
func KeyForDigest(digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest)
}

// Put streams bytes into a temp file, computes the digest, and renames the
// file into place. Concurrent writers of identical bytes converge on one
// stored copy; WasNew is false for the losers. Medium faults are wrapped
// with ErrWriteFailure so callers can retry with backoff.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (PutResult, error) {
	var zero PutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "put-*")
	if err != nil {
		return zero, writeFailure(err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return zero, writeFailure(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, writeFailure(err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	key := KeyForDigest(digest)
	dst := filepath.Join(c.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, writeFailure(err)
	}

	result := PutResult{Digest: digest, SizeBytes: n, BlobKey: key}

	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmpPath)
		return result, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		cleanup()
		return zero, writeFailure(err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		// A concurrent writer may have renamed first; identical content, so
		// the existing file wins.
		if _, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(tmpPath)
			return result, nil
		}
		cleanup()
		return zero, writeFailure(err)
	}

	result.WasNew = true
	return result, nil
}

// PutBytes stores an in-memory payload.
func (c *LocalCAS) PutBytes(ctx context.Context, data []byte) (PutResult, error) {
	return c.Put(ctx, strings.NewReader(string(data)))
}

// Open returns a reader for the blob with the given digest.
func (c *LocalCAS) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathForDigest(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a blob object. Missing files are ignored so sweeps are
// idempotent.
func (c *LocalCAS) Delete(ctx context.Context, digest string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathForDigest(digest)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (c *LocalCAS) pathForDigest(digest string) (string, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if !ValidDigest(digest) {
		return "", fmt.Errorf("invalid digest %q", digest)
	}
	return filepath.Join(c.root, filepath.FromSlash(KeyForDigest(digest))), nil
}

// ValidDigest reports whether digest is a lowercase hex sha256 digest.
func ValidDigest(digest string) bool {
	return digestPattern.MatchString(digest)
}

func writeFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrWriteFailure, err)
}

var _ BlobStore = (*LocalCAS)(nil)
