package models

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind distinguishes the two kinds of backed-up mailbox items.
type ItemKind string

const (
	ItemKindMessage    ItemKind = "message"
	ItemKindAttachment ItemKind = "attachment"
)

var validItemKinds = map[ItemKind]struct{}{
	ItemKindMessage:    {},
	ItemKindAttachment: {},
}

// ParseItemKind validates and canonicalizes an item kind string.
func ParseItemKind(raw string) (ItemKind, error) {
	value := ItemKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("item kind is required")
	}
	if _, ok := validItemKinds[value]; !ok {
		return "", fmt.Errorf("invalid item kind: %s", value)
	}
	return value, nil
}

// Identity is the logical key of one backed-up item. Identity is
// tenant-scoped even though content dedup is global.
type Identity struct {
	TenantID  string   `json:"tenant_id"`
	MailboxID string   `json:"mailbox_id"`
	ItemID    string   `json:"item_id"`
	Kind      ItemKind `json:"kind"`
}

// Validate checks that all identity fields are present and the kind is known.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.TenantID) == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if strings.TrimSpace(id.MailboxID) == "" {
		return fmt.Errorf("mailbox_id is required")
	}
	if strings.TrimSpace(id.ItemID) == "" {
		return fmt.Errorf("item_id is required")
	}
	if _, ok := validItemKinds[id.Kind]; !ok {
		return fmt.Errorf("invalid item kind: %s", id.Kind)
	}
	return nil
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", id.TenantID, id.MailboxID, id.ItemID, id.Kind)
}

// Entry is the current logical-to-digest mapping for one item identity.
// Entries are never deleted; provider-side deletion tombstones them so
// historical snapshots stay resolvable.
type Entry struct {
	Identity           Identity   `json:"identity"`
	Digest             string     `json:"digest"`
	SizeBytes          int64      `json:"size_bytes"`
	ProviderModifiedAt time.Time  `json:"provider_modified_at"`
	FirstSeenAt        time.Time  `json:"first_seen_at"`
	LastSeenAt         time.Time  `json:"last_seen_at"`
	TombstonedAt       *time.Time `json:"tombstoned_at,omitempty"`
}

// Live reports whether the entry is still present upstream.
func (e *Entry) Live() bool {
	return e != nil && e.TombstonedAt == nil
}
