package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mailvault/internal/models"
)

const streamMaxLine = 64 << 20

// StreamRecord is one NDJSON line handed to a StreamFetcher. It is the
// handover format between an external mail-fetch process and this binary.
type StreamRecord struct {
	TenantID   string    `json:"tenant_id"`
	MailboxID  string    `json:"mailbox_id"`
	ItemID     string    `json:"item_id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	Tombstone  bool      `json:"tombstone,omitempty"`
	FetchError string    `json:"fetch_error,omitempty"`
}

// StreamFetcher reads newline-delimited JSON item records and feeds them to
// the coordinator. Content is base64 so arbitrary MIME bytes survive the
// JSON framing. Records outside the requested scope are passed over without
// counting toward the run.
type StreamFetcher struct {
	r io.Reader
}

// NewStreamFetcher wraps an NDJSON record stream.
func NewStreamFetcher(r io.Reader) *StreamFetcher {
	return &StreamFetcher{r: r}
}

func (f *StreamFetcher) Fetch(ctx context.Context, scope string, emit func(Item) error) error {
	scope = models.NormalizeScope(scope)

	scanner := bufio.NewScanner(f.r)
	scanner.Buffer(make([]byte, 0, 64*1024), streamMaxLine)

	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec StreamRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		if scope != models.ScopeAll && rec.TenantID != scope {
			continue
		}

		if err := emit(recordItem(rec, lineNum)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func recordItem(rec StreamRecord, lineNum int) Item {
	item := Item{
		ProviderModified: rec.ModifiedAt,
		Tombstone:        rec.Tombstone,
	}

	kind, err := models.ParseItemKind(rec.Kind)
	if err != nil {
		item.FetchErr = fmt.Errorf("line %d: %w", lineNum, err)
	}
	item.Identity = models.Identity{
		TenantID:  rec.TenantID,
		MailboxID: rec.MailboxID,
		ItemID:    rec.ItemID,
		Kind:      kind,
	}

	if rec.FetchError != "" {
		item.FetchErr = fmt.Errorf("%s", rec.FetchError)
		return item
	}
	if item.FetchErr != nil || rec.Tombstone {
		return item
	}

	content, err := base64.StdEncoding.DecodeString(rec.Content)
	if err != nil {
		item.FetchErr = fmt.Errorf("line %d: decode content: %w", lineNum, err)
		return item
	}
	item.Content = content
	return item
}

var _ Fetcher = (*StreamFetcher)(nil)
