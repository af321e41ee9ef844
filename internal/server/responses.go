package server

import (
	"mailvault/internal/api"
	"mailvault/internal/models"
)

func snapshotResponse(snapshot models.Snapshot) api.SnapshotResponse {
	return api.SnapshotResponse{
		ID:            snapshot.ID,
		Scope:         snapshot.Scope,
		Status:        string(snapshot.Status),
		StartedAt:     snapshot.StartedAt,
		FinishedAt:    snapshot.FinishedAt,
		ItemsRecorded: snapshot.ItemsRecorded,
		ItemsSkipped:  snapshot.ItemsSkipped,
		FailureReason: snapshot.FailureReason,
	}
}

func snapshotResponses(snapshots []models.Snapshot) []api.SnapshotResponse {
	resp := make([]api.SnapshotResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		resp = append(resp, snapshotResponse(snapshot))
	}
	return resp
}

func entryResponse(entry *models.Entry) api.EntryResponse {
	return api.EntryResponse{
		TenantID:           entry.Identity.TenantID,
		MailboxID:          entry.Identity.MailboxID,
		ItemID:             entry.Identity.ItemID,
		Kind:               string(entry.Identity.Kind),
		Digest:             entry.Digest,
		SizeBytes:          entry.SizeBytes,
		ProviderModifiedAt: entry.ProviderModifiedAt,
		FirstSeenAt:        entry.FirstSeenAt,
		LastSeenAt:         entry.LastSeenAt,
		TombstonedAt:       entry.TombstonedAt,
	}
}

func blobResponse(blob *models.Blob) api.BlobResponse {
	return api.BlobResponse{
		Digest:     blob.Digest,
		SizeBytes:  blob.SizeBytes,
		BlobKey:    blob.BlobKey,
		RefCount:   blob.RefCount,
		CreatedAt:  blob.CreatedAt,
		ReleasedAt: blob.ReleasedAt,
	}
}
