package server

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"mailvault/internal/api"
	"mailvault/internal/models"
)

// Round trip through the real handlers with the CLI client.
func TestClientRoundTrip(t *testing.T) {
	srv, st := testServer(t)
	snapID, identity, digest := seedSnapshot(t, st, "contoso")
	if err := st.UpsertTenant(context.Background(), &models.Tenant{TenantID: "contoso", Name: "Contoso", Active: true}); err != nil {
		t.Fatalf("upsert tenant: %v", err)
	}

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	client := api.NewClient(ts.URL)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	info, err := client.GetInfo(ctx)
	if err != nil || info.Version != "test" {
		t.Fatalf("info = %+v, err = %v", info, err)
	}

	snapshots, err := client.ListSnapshots(ctx, url.Values{"scope": {"contoso"}})
	if err != nil || len(snapshots) != 1 || snapshots[0].ID != snapID {
		t.Fatalf("snapshots = %v, err = %v", snapshots, err)
	}

	snapshot, err := client.GetSnapshot(ctx, snapID)
	if err != nil || snapshot.ItemsRecorded != 1 {
		t.Fatalf("snapshot = %+v, err = %v", snapshot, err)
	}

	items, err := client.ListSnapshotItems(ctx, snapID)
	if err != nil || len(items) != 1 || items[0].Digest != digest {
		t.Fatalf("items = %v, err = %v", items, err)
	}

	candidates, err := client.ListRestoreCandidates(ctx, url.Values{"scope": {"contoso"}})
	if err != nil || len(candidates) != 1 {
		t.Fatalf("candidates = %v, err = %v", candidates, err)
	}

	entry, err := client.GetEntry(ctx, url.Values{
		"tenant_id":  {identity.TenantID},
		"mailbox_id": {identity.MailboxID},
		"item_id":    {identity.ItemID},
		"kind":       {string(identity.Kind)},
	})
	if err != nil || entry.Digest != digest {
		t.Fatalf("entry = %+v, err = %v", entry, err)
	}

	blob, err := client.GetBlob(ctx, digest)
	if err != nil || blob.RefCount != 1 {
		t.Fatalf("blob = %+v, err = %v", blob, err)
	}

	tenants, err := client.ListTenants(ctx)
	if err != nil || len(tenants) != 1 || tenants[0].TenantID != "contoso" {
		t.Fatalf("tenants = %v, err = %v", tenants, err)
	}

	stats, err := client.GetStats(ctx)
	if err != nil || stats.BlobCount != 1 {
		t.Fatalf("stats = %+v, err = %v", stats, err)
	}

	payload := []byte("body bytes")
	put, err := srv.blobs.Put(ctx, strings.NewReader(string(payload)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := st.RetainBlob(ctx, put.Digest, put.SizeBytes, put.BlobKey); err != nil {
		t.Fatalf("retain: %v", err)
	}
	rc, err := client.DownloadBlob(ctx, put.Digest)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil || string(body) != string(payload) {
		t.Fatalf("body = %q, err = %v", body, err)
	}
}

func TestClientStructuredErrors(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	client := api.NewClient(ts.URL)

	_, err := client.GetSnapshot(context.Background(), 9999)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 404 || apiErr.Code == "" || apiErr.ErrorCode == 0 {
		t.Fatalf("apiErr = %+v", apiErr)
	}

	_, err = client.GetBlob(context.Background(), "not-a-digest")
	if !errors.As(err, &apiErr) || apiErr.Status != 400 {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}
