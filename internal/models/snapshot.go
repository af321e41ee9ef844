package models

import (
	"fmt"
	"strings"
	"time"
)

// ScopeAll addresses every tenant at once.
const ScopeAll = "all"

// SnapshotStatus is the snapshot lifecycle state. Running transitions to
// exactly one of Complete or Failed; both are terminal.
type SnapshotStatus string

const (
	SnapshotRunning  SnapshotStatus = "running"
	SnapshotComplete SnapshotStatus = "complete"
	SnapshotFailed   SnapshotStatus = "failed"
)

var validSnapshotStatuses = map[SnapshotStatus]struct{}{
	SnapshotRunning:  {},
	SnapshotComplete: {},
	SnapshotFailed:   {},
}

// ParseSnapshotStatus validates and canonicalizes a snapshot status string.
func ParseSnapshotStatus(raw string) (SnapshotStatus, error) {
	value := SnapshotStatus(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("snapshot status is required")
	}
	if _, ok := validSnapshotStatuses[value]; !ok {
		return "", fmt.Errorf("invalid snapshot status: %s", value)
	}
	return value, nil
}

// NormalizeScope canonicalizes a tenant scope; empty means all tenants.
func NormalizeScope(raw string) string {
	scope := strings.TrimSpace(raw)
	if scope == "" {
		return ScopeAll
	}
	return scope
}

// Snapshot is one immutable point-in-time backup run for a tenant scope.
type Snapshot struct {
	ID            int64          `json:"id"`
	Scope         string         `json:"scope"`
	Status        SnapshotStatus `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	ItemsRecorded int64          `json:"items_recorded"`
	ItemsSkipped  int64          `json:"items_skipped"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// Terminal reports whether the snapshot reached a final state.
func (s *Snapshot) Terminal() bool {
	return s != nil && s.Status != SnapshotRunning
}

// SnapshotItem is one recorded (identity, digest) pair inside a snapshot.
// Pairs are immutable once the snapshot completes.
type SnapshotItem struct {
	SnapshotID int64    `json:"snapshot_id"`
	Identity   Identity `json:"identity"`
	Digest     string   `json:"digest"`
}

// SnapshotSkip records an item that failed during a run so a later run can
// pick it up through the incremental plan.
type SnapshotSkip struct {
	SnapshotID int64     `json:"snapshot_id"`
	Identity   Identity  `json:"identity"`
	Reason     string    `json:"reason"`
	SkippedAt  time.Time `json:"skipped_at"`
}
