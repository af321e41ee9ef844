package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"mailvault/internal/blobstore"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

func testEnv(t *testing.T) (*store.Store, *blobstore.LocalCAS) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cas, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open cas: %v", err)
	}
	return st, cas
}

func testCoordinator(st *store.Store, cas *blobstore.LocalCAS, fetcher Fetcher, opts Options) *Coordinator {
	return NewCoordinator(st, cas, fetcher, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func staticFetcher(items ...Item) Fetcher {
	return FetcherFunc(func(ctx context.Context, scope string, emit func(Item) error) error {
		for _, item := range items {
			if err := emit(item); err != nil {
				return err
			}
		}
		return nil
	})
}

func messageItem(tenant, item string, content string) Item {
	return Item{
		Identity: models.Identity{
			TenantID:  tenant,
			MailboxID: "alice@" + tenant,
			ItemID:    item,
			Kind:      models.ItemKindMessage,
		},
		Content:          []byte(content),
		ProviderModified: time.Now().UTC(),
	}
}

func TestRunScopeDedupAcrossIdentities(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	a := messageItem("contoso", "msg-1", "shared body")
	b := messageItem("contoso", "msg-2", "shared body")
	coord := testCoordinator(st, cas, staticFetcher(a, b), Options{Workers: 2})

	result, err := coord.RunScope(ctx, "contoso")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != models.SnapshotComplete {
		t.Fatalf("status = %s, want complete", result.Status)
	}
	if result.ItemsProcessed != 2 || result.ItemsSkipped != 0 {
		t.Fatalf("processed=%d skipped=%d", result.ItemsProcessed, result.ItemsSkipped)
	}

	digest := blobstore.DigestBytes([]byte("shared body"))
	blob, err := st.GetBlob(ctx, digest)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.RefCount != 2 {
		t.Fatalf("ref count = %d, want 2", blob.RefCount)
	}

	items, err := st.ListSnapshotItems(ctx, result.SnapshotID)
	if err != nil {
		t.Fatalf("list snapshot items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("snapshot items = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Digest != digest {
			t.Fatalf("snapshot item digest = %s, want %s", it.Digest, digest)
		}
	}
}

func TestRunScopeIdempotentAcrossRuns(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	item := messageItem("contoso", "msg-1", "stable body")
	coord := testCoordinator(st, cas, staticFetcher(item), Options{Workers: 1})

	first, err := coord.RunScope(ctx, "contoso")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := coord.RunScope(ctx, "contoso")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.SnapshotID <= first.SnapshotID {
		t.Fatalf("snapshot ids not monotonic: %d then %d", first.SnapshotID, second.SnapshotID)
	}

	digest := blobstore.DigestBytes(item.Content)
	blob, err := st.GetBlob(ctx, digest)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("ref count after rerun = %d, want 1", blob.RefCount)
	}

	for _, id := range []int64{first.SnapshotID, second.SnapshotID} {
		items, err := st.ListSnapshotItems(ctx, id)
		if err != nil {
			t.Fatalf("list items for snapshot %d: %v", id, err)
		}
		if len(items) != 1 || items[0].Digest != digest {
			t.Fatalf("snapshot %d items = %+v", id, items)
		}
	}
}

func TestRunScopeContentChangeMovesReference(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	v1 := messageItem("contoso", "msg-1", "draft one")
	v2 := v1
	v2.Content = []byte("draft two")
	v2.ProviderModified = v1.ProviderModified.Add(time.Minute)

	coord := testCoordinator(st, cas, staticFetcher(v1), Options{Workers: 1})
	firstRun, err := coord.RunScope(ctx, "contoso")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	coord = testCoordinator(st, cas, staticFetcher(v2), Options{Workers: 1})
	if _, err := coord.RunScope(ctx, "contoso"); err != nil {
		t.Fatalf("second run: %v", err)
	}

	oldDigest := blobstore.DigestBytes(v1.Content)
	newDigest := blobstore.DigestBytes(v2.Content)

	oldBlob, err := st.GetBlob(ctx, oldDigest)
	if err != nil {
		t.Fatalf("get old blob: %v", err)
	}
	if oldBlob.RefCount != 0 || oldBlob.ReleasedAt == nil {
		t.Fatalf("old blob not released: ref=%d released=%v", oldBlob.RefCount, oldBlob.ReleasedAt)
	}
	newBlob, err := st.GetBlob(ctx, newDigest)
	if err != nil {
		t.Fatalf("get new blob: %v", err)
	}
	if newBlob.RefCount != 1 {
		t.Fatalf("new blob ref = %d, want 1", newBlob.RefCount)
	}

	// The earlier snapshot still names the digest it recorded.
	items, err := st.ListSnapshotItems(ctx, firstRun.SnapshotID)
	if err != nil {
		t.Fatalf("list first snapshot items: %v", err)
	}
	if len(items) != 1 || items[0].Digest != oldDigest {
		t.Fatalf("first snapshot items = %+v, want digest %s", items, oldDigest)
	}
}

func TestRunScopeTombstone(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	item := messageItem("contoso", "msg-1", "short lived")
	coord := testCoordinator(st, cas, staticFetcher(item), Options{Workers: 1})
	if _, err := coord.RunScope(ctx, "contoso"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	gone := Item{Identity: item.Identity, Tombstone: true}
	coord = testCoordinator(st, cas, staticFetcher(gone), Options{Workers: 1})
	result, err := coord.RunScope(ctx, "contoso")
	if err != nil {
		t.Fatalf("tombstone run: %v", err)
	}
	if result.ItemsProcessed != 1 {
		t.Fatalf("processed = %d, want 1", result.ItemsProcessed)
	}

	entry, err := st.LookupEntry(ctx, item.Identity)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if entry.Live() {
		t.Fatal("entry still live after tombstone")
	}

	// Tombstoning does not release the reference; reclamation is deferred.
	blob, err := st.GetBlob(ctx, blobstore.DigestBytes(item.Content))
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("ref count after tombstone = %d, want 1", blob.RefCount)
	}
}

func TestRunScopeRecordsSkips(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	good := messageItem("contoso", "msg-1", "fine")
	bad := messageItem("contoso", "msg-2", "")
	bad.FetchErr = errors.New("mailbox throttled")

	coord := testCoordinator(st, cas, staticFetcher(good, bad), Options{Workers: 1})
	result, err := coord.RunScope(ctx, "contoso")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != models.SnapshotComplete {
		t.Fatalf("status = %s, want complete", result.Status)
	}
	if result.ItemsProcessed != 1 || result.ItemsSkipped != 1 {
		t.Fatalf("processed=%d skipped=%d", result.ItemsProcessed, result.ItemsSkipped)
	}

	snap, err := st.GetSnapshot(ctx, result.SnapshotID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.ItemsSkipped != 1 {
		t.Fatalf("snapshot skips = %d, want 1", snap.ItemsSkipped)
	}
}

func TestRunScopeFailureThreshold(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	var items []Item
	for i := 0; i < 6; i++ {
		it := messageItem("contoso", fmt.Sprintf("msg-%d", i), "")
		it.FetchErr = errors.New("transport reset")
		items = append(items, it)
	}

	coord := testCoordinator(st, cas, staticFetcher(items...), Options{
		Workers:              1,
		FailureRateThreshold: 0.5,
	})
	result, err := coord.RunScope(ctx, "contoso")
	if err == nil {
		t.Fatal("expected run failure")
	}
	if result.Status != models.SnapshotFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}

	snap, getErr := st.GetSnapshot(ctx, result.SnapshotID)
	if getErr != nil {
		t.Fatalf("get snapshot: %v", getErr)
	}
	if snap.Status != models.SnapshotFailed || snap.FailureReason == "" {
		t.Fatalf("snapshot = %+v, want failed with reason", snap)
	}
}

func TestRunScopeFetchStreamError(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	fetcher := FetcherFunc(func(ctx context.Context, scope string, emit func(Item) error) error {
		if err := emit(messageItem("contoso", "msg-1", "partial")); err != nil {
			return err
		}
		return errors.New("delta token expired")
	})

	coord := testCoordinator(st, cas, fetcher, Options{Workers: 1})
	result, err := coord.RunScope(ctx, "contoso")
	if err == nil {
		t.Fatal("expected run failure")
	}
	if result.Status != models.SnapshotFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.ItemsProcessed != 1 {
		t.Fatalf("processed = %d, want 1", result.ItemsProcessed)
	}
}

func TestRunScopeCancellation(t *testing.T) {
	st, cas := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := FetcherFunc(func(fctx context.Context, scope string, emit func(Item) error) error {
		if err := emit(messageItem("contoso", "msg-1", "before cancel")); err != nil {
			return err
		}
		cancel()
		return fctx.Err()
	})

	coord := testCoordinator(st, cas, fetcher, Options{Workers: 1})
	result, err := coord.RunScope(ctx, "contoso")
	if err == nil {
		t.Fatal("expected run failure")
	}
	if result.Status != models.SnapshotFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}

	snap, getErr := st.GetSnapshot(context.Background(), result.SnapshotID)
	if getErr != nil {
		t.Fatalf("get snapshot: %v", getErr)
	}
	if snap.Status != models.SnapshotFailed {
		t.Fatalf("snapshot status = %s, want failed", snap.Status)
	}
}

func TestRunScopeAlreadyRunning(t *testing.T) {
	st, cas := testEnv(t)
	ctx := context.Background()

	if _, err := st.BeginSnapshot(ctx, "contoso"); err != nil {
		t.Fatalf("begin snapshot: %v", err)
	}

	coord := testCoordinator(st, cas, staticFetcher(), Options{Workers: 1})
	if _, err := coord.RunScope(ctx, "contoso"); !errors.Is(err, store.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}
