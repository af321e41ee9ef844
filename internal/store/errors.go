package store

import "errors"

// Sentinel errors for the store contracts. Callers match with errors.Is and
// decide recovery; the store never retries on their behalf.
var (
	// ErrNotFound reports an absent digest, identity, or snapshot.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning reports a second snapshot begin for a scope that
	// already has a running snapshot. Callers should retry later.
	ErrAlreadyRunning = errors.New("snapshot already running for scope")

	// ErrInvalidState reports an illegal transition or reference-count
	// violation. It indicates a programming or race defect and is surfaced,
	// not retried.
	ErrInvalidState = errors.New("invalid state")
)
