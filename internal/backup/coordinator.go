package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"mailvault/internal/blobstore"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

const (
	// failureSampleMin is the minimum number of stream items before the
	// failure-rate threshold can trip a run.
	failureSampleMin = 4

	putBackoffInitial = 100 * time.Millisecond
	putBackoffMax     = 2 * time.Second
)

// Options tunes one ingestion coordinator.
type Options struct {
	// Workers bounds concurrent item processing within one scope pipeline.
	Workers int

	// FailureRateThreshold fails the whole run once the fraction of failed
	// items exceeds it. Zero disables threshold-based failure.
	FailureRateThreshold float64

	// MaxPutAttempts bounds retries of a blob write before the item is
	// skipped.
	MaxPutAttempts int
}

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxPutAttempts <= 0 {
		o.MaxPutAttempts = 3
	}
	return o
}

// RunResult summarizes one ingestion run for the invoking scheduler or CLI.
type RunResult struct {
	SnapshotID     int64                 `json:"snapshot_id"`
	Status         models.SnapshotStatus `json:"status"`
	ItemsProcessed int64                 `json:"items_processed"`
	ItemsSkipped   int64                 `json:"items_skipped"`
}

// Coordinator drives one ingestion run per tenant scope: digest, dedup
// against the object index, blob retain/release, snapshot recording.
// Multiple coordinators (or RunScope calls for different scopes) may run
// concurrently; the snapshot manager's per-scope invariant keeps scopes from
// interleaving with themselves.
type Coordinator struct {
	store   store.BackupStore
	blobs   blobstore.BlobStore
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	// recordMu serializes snapshot record calls per run, keeping the
	// snapshot an append-only log under the worker pool.
	recordMu sync.Mutex
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(st store.BackupStore, blobs blobstore.BlobStore, fetcher Fetcher, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   st,
		blobs:   blobs,
		fetcher: fetcher,
		opts:    opts.normalized(),
		logger:  logger.With("component", "coordinator"),
	}
}

// RunScope executes one backup run for a tenant scope. The returned
// RunResult always carries the snapshot id and final status; the error is
// non-nil when the run ended Failed.
func (c *Coordinator) RunScope(ctx context.Context, scope string) (RunResult, error) {
	scope = models.NormalizeScope(scope)

	snapshotID, err := c.store.BeginSnapshot(ctx, scope)
	if err != nil {
		return RunResult{}, fmt.Errorf("begin snapshot for scope %s: %w", scope, err)
	}

	logger := c.logger.With("run_id", uuid.NewString(), "scope", scope, "snapshot_id", snapshotID)
	logger.Info("ingestion run started")

	run := &runState{snapshotID: snapshotID, logger: logger}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	items := make(chan Item)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				c.processItem(runCtx, run, item)
				if c.thresholdExceeded(run) {
					cancel(errFailureThreshold)
				}
			}
		}()
	}

	fetchErr := c.fetcher.Fetch(runCtx, scope, func(item Item) error {
		select {
		case items <- item:
			return nil
		case <-runCtx.Done():
			return context.Cause(runCtx)
		}
	})
	close(items)
	wg.Wait()

	result := RunResult{
		SnapshotID:     snapshotID,
		ItemsProcessed: run.processed.Load(),
		ItemsSkipped:   run.skipped.Load(),
	}

	reason := c.runFailure(ctx, runCtx, fetchErr)
	if reason == "" {
		if err := c.store.CompleteSnapshot(ctx, snapshotID); err != nil {
			return result, fmt.Errorf("complete snapshot %d: %w", snapshotID, err)
		}
		result.Status = models.SnapshotComplete
		logger.Info("ingestion run complete", "items_processed", result.ItemsProcessed, "items_skipped", result.ItemsSkipped)
		return result, nil
	}

	// Fail with a background-safe context: the run context may already be
	// cancelled, but the failure must still be recorded.
	if err := c.store.FailSnapshot(context.WithoutCancel(ctx), snapshotID, reason); err != nil {
		logger.Error("failed to mark snapshot failed", "error", err)
	}
	result.Status = models.SnapshotFailed
	logger.Warn("ingestion run failed", "reason", reason, "items_processed", result.ItemsProcessed, "items_skipped", result.ItemsSkipped)
	return result, fmt.Errorf("run for scope %s failed: %s", scope, reason)
}

var errFailureThreshold = errors.New("failure rate threshold exceeded")

type runState struct {
	snapshotID int64
	logger     *slog.Logger
	processed  atomic.Int64
	skipped    atomic.Int64
}

func (c *Coordinator) runFailure(ctx, runCtx context.Context, fetchErr error) string {
	switch {
	case errors.Is(context.Cause(runCtx), errFailureThreshold):
		return errFailureThreshold.Error()
	case ctx.Err() != nil:
		return fmt.Sprintf("run cancelled: %v", context.Cause(ctx))
	case fetchErr != nil:
		return fmt.Sprintf("fetch stream failed: %v", fetchErr)
	default:
		return ""
	}
}

func (c *Coordinator) thresholdExceeded(run *runState) bool {
	if c.opts.FailureRateThreshold <= 0 {
		return false
	}
	processed := run.processed.Load()
	skipped := run.skipped.Load()
	total := processed + skipped
	if total < failureSampleMin {
		return false
	}
	return float64(skipped)/float64(total) > c.opts.FailureRateThreshold
}

// processItem ingests one item. Failures are recorded as snapshot skips and
// never unwind the run by themselves.
func (c *Coordinator) processItem(ctx context.Context, run *runState, item Item) {
	if item.FetchErr != nil {
		c.skipItem(ctx, run, item.Identity, fmt.Sprintf("fetch failed: %v", item.FetchErr))
		return
	}
	if err := item.Identity.Validate(); err != nil {
		c.skipItem(ctx, run, item.Identity, fmt.Sprintf("invalid identity: %v", err))
		return
	}

	if item.Tombstone {
		if err := c.store.TombstoneEntry(ctx, item.Identity); err != nil && !errors.Is(err, store.ErrNotFound) {
			c.skipItem(ctx, run, item.Identity, fmt.Sprintf("tombstone: %v", err))
			return
		}
		run.processed.Add(1)
		return
	}

	if err := c.ingestPayload(ctx, run, item); err != nil {
		c.skipItem(ctx, run, item.Identity, err.Error())
		return
	}
	run.processed.Add(1)
}

func (c *Coordinator) ingestPayload(ctx context.Context, run *runState, item Item) error {
	digest := blobstore.DigestBytes(item.Content)
	size := int64(len(item.Content))

	existing, err := c.store.LookupEntry(ctx, item.Identity)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("index lookup: %w", err)
	}

	unchanged := existing != nil && existing.Live() && existing.Digest == digest
	var put blobstore.PutResult
	if unchanged {
		// True dedup hit: only confirm the blob still exists.
		if _, err := c.store.GetBlob(ctx, digest); err != nil {
			return fmt.Errorf("confirm blob %s: %w", digest, err)
		}
	} else {
		put, err = c.putWithRetry(ctx, item.Content)
		if err != nil {
			return fmt.Errorf("store blob %s: %w", digest, err)
		}
		if put.Digest != digest {
			return fmt.Errorf("%w: payload digest changed during put", store.ErrInvalidState)
		}
	}

	result, err := c.store.UpsertEntry(ctx, item.Identity, digest, size, item.ProviderModified)
	if err != nil {
		return fmt.Errorf("index upsert: %w", err)
	}

	switch result.Outcome {
	case store.UpsertCreated:
		if _, err := c.store.RetainBlob(ctx, digest, size, put.BlobKey); err != nil {
			return fmt.Errorf("retain blob %s: %w", digest, err)
		}
	case store.UpsertUpdated:
		// A revived tombstone with the same digest keeps its reference;
		// only an actual digest change moves one.
		if result.OldDigest != "" {
			if _, err := c.store.RetainBlob(ctx, digest, size, put.BlobKey); err != nil {
				return fmt.Errorf("retain blob %s: %w", digest, err)
			}
			if err := c.store.ReleaseBlob(ctx, result.OldDigest); err != nil {
				return fmt.Errorf("release blob %s: %w", result.OldDigest, err)
			}
		}
	case store.UpsertUnchanged:
		// Reference count already covers this identity.
	}

	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if err := c.store.RecordSnapshotItem(ctx, run.snapshotID, item.Identity, digest); err != nil {
		return fmt.Errorf("record snapshot item: %w", err)
	}
	return nil
}

func (c *Coordinator) putWithRetry(ctx context.Context, content []byte) (blobstore.PutResult, error) {
	var result blobstore.PutResult
	operation := func() error {
		put, err := c.blobs.Put(ctx, bytes.NewReader(content))
		if err != nil {
			if errors.Is(err, blobstore.ErrWriteFailure) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = put
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = putBackoffInitial
	policy.MaxInterval = putBackoffMax

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.opts.MaxPutAttempts-1)), ctx))
	return result, err
}

func (c *Coordinator) skipItem(ctx context.Context, run *runState, identity models.Identity, reason string) {
	run.skipped.Add(1)
	run.logger.Warn("item skipped", "identity", identity.String(), "reason", reason)

	if identity.Validate() != nil {
		// Nothing addressable to record; the skip still counts toward the
		// failure rate.
		return
	}

	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if err := c.store.RecordSnapshotSkip(context.WithoutCancel(ctx), run.snapshotID, identity, reason); err != nil {
		run.logger.Error("failed to record skip", "identity", identity.String(), "error", err)
	}
}
