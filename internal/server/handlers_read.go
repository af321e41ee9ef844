package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mailvault/internal/api"
	"mailvault/internal/blobstore"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.InfoResponse{
		Version:       s.version,
		SchemaVersion: store.SchemaVersion(),
	})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	limit, err := limitParam(r, defaultListLimit)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidQuery))
		return
	}

	snapshots, err := s.store.ListSnapshots(r.Context(), scope, limit)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponses(snapshots))
}

func (s *Server) handleRestoreCandidates(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	limit, err := limitParam(r, defaultListLimit)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidQuery))
		return
	}

	snapshots, err := s.store.ListRestoreCandidates(r.Context(), scope, limit)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponses(snapshots))
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotIDParam(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	snapshot, err := s.store.GetSnapshot(r.Context(), id)
	if err != nil {
		s.writeReadError(w, r, err, ErrCodeSnapshotNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponse(*snapshot))
}

func (s *Server) handleListSnapshotItems(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotIDParam(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	items, err := s.store.ListSnapshotItems(r.Context(), id)
	if err != nil {
		s.writeReadError(w, r, err, ErrCodeSnapshotNotFound)
		return
	}

	resp := make([]api.SnapshotItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, api.SnapshotItemResponse{
			TenantID:  item.Identity.TenantID,
			MailboxID: item.Identity.MailboxID,
			ItemID:    item.Identity.ItemID,
			Kind:      string(item.Identity.Kind),
			Digest:    item.Digest,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind, err := models.ParseItemKind(query.Get("kind"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidIdentity))
		return
	}
	identity := models.Identity{
		TenantID:  strings.TrimSpace(query.Get("tenant_id")),
		MailboxID: strings.TrimSpace(query.Get("mailbox_id")),
		ItemID:    strings.TrimSpace(query.Get("item_id")),
		Kind:      kind,
	}
	if err := identity.Validate(); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidIdentity))
		return
	}

	entry, err := s.store.LookupEntry(r.Context(), identity)
	if err != nil {
		s.writeReadError(w, r, err, ErrCodeEntryNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, entryResponse(entry))
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	digest := strings.ToLower(strings.TrimSpace(r.PathValue("digest")))
	if !blobstore.ValidDigest(digest) {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("invalid digest %q", digest), ErrCodeInvalidDigest))
		return
	}

	blob, err := s.store.GetBlob(r.Context(), digest)
	if err != nil {
		s.writeReadError(w, r, err, ErrCodeBlobNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, blobResponse(blob))
}

func (s *Server) handleGetBlobContent(w http.ResponseWriter, r *http.Request) {
	digest := strings.ToLower(strings.TrimSpace(r.PathValue("digest")))
	if !blobstore.ValidDigest(digest) {
		s.writeErrorReq(w, r, http.StatusBadRequest,
			badRequestCode(fmt.Errorf("invalid digest %q", digest), ErrCodeInvalidDigest))
		return
	}

	// The catalog row gates access; a reclaimed or unknown digest is gone
	// even if a stray payload file still exists.
	blob, err := s.store.GetBlob(r.Context(), digest)
	if err != nil {
		s.writeReadError(w, r, err, ErrCodeBlobNotFound)
		return
	}
	if s.blobs == nil {
		s.writeErrorReq(w, r, http.StatusNotFound,
			notFoundCode(fmt.Errorf("blob content not available"), ErrCodeBlobNotFound))
		return
	}

	rc, err := s.blobs.Open(r.Context(), digest)
	if err != nil {
		s.writeReadError(w, r, err, ErrCodeBlobNotFound)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(blob.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Error("blob content stream failed", "digest", digest, "error", err)
	}
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	tenants, err := s.store.ListTenants(r.Context(), activeOnly)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
		return
	}

	resp := make([]api.TenantResponse, 0, len(tenants))
	for _, tenant := range tenants {
		resp = append(resp, api.TenantResponse{
			TenantID: tenant.TenantID,
			Name:     tenant.Name,
			ClientID: tenant.ClientID,
			Active:   tenant.Active,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetBlobStats(r.Context())
	if err != nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatsResponse{
		BlobCount:      stats.BlobCount,
		TotalBytes:     stats.TotalBytes,
		ReferenceCount: stats.ReferenceCount,
		LogicalBytes:   stats.LogicalBytes,
	})
}

func (s *Server) writeReadError(w http.ResponseWriter, r *http.Request, err error, notFoundErrCode int) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		wrapped := notFoundCode(err, notFoundErrCode)
		s.writeErrorReq(w, r, http.StatusNotFound, wrapped)
		return
	}
	s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
}

func snapshotIDParam(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequestCode(fmt.Errorf("invalid snapshot id %q", raw), ErrCodeInvalidID)
	}
	return id, nil
}

func limitParam(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
