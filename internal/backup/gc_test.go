package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"mailvault/internal/blobstore"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

func TestSweepBlobsReclaimsReleased(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	put, err := cas.PutBytes(ctx, []byte("orphaned payload"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := st.RetainBlob(ctx, put.Digest, put.SizeBytes, put.BlobKey); err != nil {
		t.Fatalf("retain: %v", err)
	}
	if err := st.ReleaseBlob(ctx, put.Digest); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Inside the grace window nothing is touched.
	result, err := SweepBlobs(ctx, st, cas, GCOptions{GraceWindow: time.Hour}, logger)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Deleted != 0 {
		t.Fatalf("deleted = %d inside grace window", result.Deleted)
	}

	time.Sleep(10 * time.Millisecond)
	result, err = SweepBlobs(ctx, st, cas, GCOptions{GraceWindow: time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Deleted != 1 || result.BytesReclaimed != put.SizeBytes {
		t.Fatalf("result = %+v, want one blob of %d bytes", result, put.SizeBytes)
	}

	if _, err := st.GetBlob(ctx, put.Digest); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("blob row err = %v, want ErrNotFound", err)
	}
	if _, err := cas.Open(ctx, put.Digest); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("blob payload err = %v, want ErrNotFound", err)
	}
}

func TestSweepBlobsKeepsSnapshotHeld(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	put, err := cas.PutBytes(ctx, []byte("recorded then released"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := st.RetainBlob(ctx, put.Digest, put.SizeBytes, put.BlobKey); err != nil {
		t.Fatalf("retain: %v", err)
	}

	identity := models.Identity{TenantID: "contoso", MailboxID: "a@contoso", ItemID: "msg-1", Kind: models.ItemKindMessage}
	snapID, err := st.BeginSnapshot(ctx, "contoso")
	if err != nil {
		t.Fatalf("begin snapshot: %v", err)
	}
	if err := st.RecordSnapshotItem(ctx, snapID, identity, put.Digest); err != nil {
		t.Fatalf("record item: %v", err)
	}
	if err := st.CompleteSnapshot(ctx, snapID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := st.ReleaseBlob(ctx, put.Digest); err != nil {
		t.Fatalf("release: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	result, err := SweepBlobs(ctx, st, cas, GCOptions{GraceWindow: time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Deleted != 0 {
		t.Fatalf("deleted = %d, snapshot-held blob must survive", result.Deleted)
	}
	if _, err := st.GetBlob(ctx, put.Digest); err != nil {
		t.Fatalf("blob row gone: %v", err)
	}
}

// retainAfterListCatalog re-retains every listed digest before returning,
// standing in for an ingestion run that re-ingests the content between the
// sweep's listing and its deletes.
type retainAfterListCatalog struct {
	*store.Store
}

func (c *retainAfterListCatalog) ListReclaimableBlobs(ctx context.Context, releasedBefore time.Time, limit int) ([]models.Blob, error) {
	blobs, err := c.Store.ListReclaimableBlobs(ctx, releasedBefore, limit)
	if err != nil {
		return nil, err
	}
	for _, blob := range blobs {
		if _, err := c.Store.RetainBlob(ctx, blob.Digest, blob.SizeBytes, blob.BlobKey); err != nil {
			return nil, err
		}
	}
	return blobs, nil
}

func TestSweepBlobsLosesRaceToConcurrentRetain(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	put, err := cas.PutBytes(ctx, []byte("released then re-ingested"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := st.RetainBlob(ctx, put.Digest, put.SizeBytes, put.BlobKey); err != nil {
		t.Fatalf("retain: %v", err)
	}
	if err := st.ReleaseBlob(ctx, put.Digest); err != nil {
		t.Fatalf("release: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	result, err := SweepBlobs(ctx, &retainAfterListCatalog{st}, cas, GCOptions{GraceWindow: time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Scanned != 1 || result.Deleted != 0 {
		t.Fatalf("result = %+v, want the re-retained blob skipped", result)
	}

	blob, err := st.GetBlob(ctx, put.Digest)
	if err != nil {
		t.Fatalf("blob row gone after losing race: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("ref_count = %d, want 1", blob.RefCount)
	}
	rc, err := cas.Open(ctx, put.Digest)
	if err != nil {
		t.Fatalf("payload gone after losing race: %v", err)
	}
	rc.Close()
}
