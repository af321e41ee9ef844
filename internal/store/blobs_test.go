package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mailvault/internal/models"
)

func testDigest(seed string) string {
	if len(seed) > 64 {
		seed = seed[:64]
	}
	return seed + strings.Repeat("0", 64-len(seed))
}

func TestRetainBlobCountsReferencesOnce(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	digest := testDigest("aa")

	wasNew, err := st.RetainBlob(ctx, digest, 10, "sha256/aa/00/"+digest)
	if err != nil {
		t.Fatalf("first retain: %v", err)
	}
	if !wasNew {
		t.Fatal("expected first retain to report new blob")
	}

	// Second logical reference to identical content from another identity.
	wasNew, err = st.RetainBlob(ctx, digest, 10, "sha256/aa/00/"+digest)
	if err != nil {
		t.Fatalf("second retain: %v", err)
	}
	if wasNew {
		t.Fatal("expected second retain to dedupe")
	}

	blob, err := st.GetBlob(ctx, digest)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.RefCount != 2 {
		t.Fatalf("expected ref_count 2, got %d", blob.RefCount)
	}
	if blob.SizeBytes != 10 {
		t.Fatalf("expected size 10, got %d", blob.SizeBytes)
	}
}

func TestReleaseBlobFloor(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	digest := testDigest("bb")

	if _, err := st.RetainBlob(ctx, digest, 5, "sha256/bb/00/"+digest); err != nil {
		t.Fatalf("retain: %v", err)
	}
	if err := st.ReleaseBlob(ctx, digest); err != nil {
		t.Fatalf("release to zero: %v", err)
	}

	blob, err := st.GetBlob(ctx, digest)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.RefCount != 0 {
		t.Fatalf("expected ref_count 0, got %d", blob.RefCount)
	}
	if blob.ReleasedAt == nil {
		t.Fatal("expected released_at to be set at zero references")
	}

	if err := st.ReleaseBlob(ctx, digest); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState below zero, got %v", err)
	}

	if err := st.ReleaseBlob(ctx, testDigest("cc")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown digest, got %v", err)
	}
}

func TestRetainClearsReleasedAt(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	digest := testDigest("dd")

	if _, err := st.RetainBlob(ctx, digest, 5, "sha256/dd/00/"+digest); err != nil {
		t.Fatalf("retain: %v", err)
	}
	if err := st.ReleaseBlob(ctx, digest); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := st.RetainBlob(ctx, digest, 5, "sha256/dd/00/"+digest); err != nil {
		t.Fatalf("re-retain: %v", err)
	}

	blob, err := st.GetBlob(ctx, digest)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("expected ref_count 1 after re-retain, got %d", blob.RefCount)
	}
	if blob.ReleasedAt != nil {
		t.Fatal("expected released_at cleared after re-retain")
	}
}

func TestListReclaimableBlobs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	reclaimable := testDigest("1a")
	snapshotHeld := testDigest("2b")
	stillLive := testDigest("3c")

	for _, digest := range []string{reclaimable, snapshotHeld, stillLive} {
		if _, err := st.RetainBlob(ctx, digest, 4, "sha256/xx/yy/"+digest); err != nil {
			t.Fatalf("retain %s: %v", digest, err)
		}
	}

	// snapshotHeld goes into a completed snapshot before its entry updates
	// away from it; the snapshot must keep it unreclaimable.
	snapID, err := st.BeginSnapshot(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("begin snapshot: %v", err)
	}
	identity := models.Identity{TenantID: "tenant-1", MailboxID: "mb", ItemID: "m1", Kind: models.ItemKindMessage}
	if err := st.RecordSnapshotItem(ctx, snapID, identity, snapshotHeld); err != nil {
		t.Fatalf("record item: %v", err)
	}
	if err := st.CompleteSnapshot(ctx, snapID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := st.ReleaseBlob(ctx, reclaimable); err != nil {
		t.Fatalf("release reclaimable: %v", err)
	}
	if err := st.ReleaseBlob(ctx, snapshotHeld); err != nil {
		t.Fatalf("release snapshot held: %v", err)
	}

	// Cutoff in the future: grace window elapsed for everything released.
	got, err := st.ListReclaimableBlobs(ctx, time.Now().Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("list reclaimable: %v", err)
	}
	if len(got) != 1 || got[0].Digest != reclaimable {
		t.Fatalf("expected only %s reclaimable, got %+v", reclaimable, got)
	}

	// Cutoff in the past: nothing has aged out of the grace window yet.
	got, err = st.ListReclaimableBlobs(ctx, time.Now().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("list reclaimable: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected none inside grace window, got %+v", got)
	}
}

func TestGetBlobStats(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	digest := testDigest("ee")

	if _, err := st.RetainBlob(ctx, digest, 100, "sha256/ee/00/"+digest); err != nil {
		t.Fatalf("retain: %v", err)
	}
	if _, err := st.RetainBlob(ctx, digest, 100, "sha256/ee/00/"+digest); err != nil {
		t.Fatalf("retain again: %v", err)
	}

	stats, err := st.GetBlobStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.BlobCount != 1 || stats.TotalBytes != 100 {
		t.Fatalf("unexpected physical stats: %+v", stats)
	}
	if stats.ReferenceCount != 2 || stats.LogicalBytes != 200 {
		t.Fatalf("unexpected logical stats: %+v", stats)
	}
}
