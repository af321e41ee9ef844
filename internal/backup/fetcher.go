package backup

import (
	"context"
	"time"

	"mailvault/internal/models"
)

// Item is one payload handed over by the mail-fetch collaborator. The
// collaborator owns authentication, pagination, and provider backoff; the
// coordinator only consumes already-fetched bytes.
type Item struct {
	Identity         models.Identity
	Content          []byte
	ProviderModified time.Time

	// Tombstone reports that the provider no longer has this item. Content
	// is ignored for tombstones.
	Tombstone bool

	// FetchErr reports that the collaborator failed to download this item.
	// The coordinator records it as a skip and counts it toward the run
	// failure-rate threshold.
	FetchErr error
}

// Fetcher supplies the lazy per-run item stream for a tenant scope. emit is
// called once per item in stream order; a non-nil return from emit tells the
// fetcher to stop issuing requests. Fetch returns an error only for
// stream-level failures, which fail the whole run.
type Fetcher interface {
	Fetch(ctx context.Context, scope string, emit func(Item) error) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, scope string, emit func(Item) error) error

func (f FetcherFunc) Fetch(ctx context.Context, scope string, emit func(Item) error) error {
	return f(ctx, scope, emit)
}
