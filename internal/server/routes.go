package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Snapshots.
	mux.HandleFunc("GET /v1/snapshots", s.handleListSnapshots)
	mux.HandleFunc("GET /v1/snapshots/restore-candidates", s.handleRestoreCandidates)
	mux.HandleFunc("GET /v1/snapshots/{id}", s.handleGetSnapshot)
	mux.HandleFunc("GET /v1/snapshots/{id}/items", s.handleListSnapshotItems)

	// Object index and content store.
	mux.HandleFunc("GET /v1/entries", s.handleGetEntry)
	mux.HandleFunc("GET /v1/blobs/{digest}", s.handleGetBlob)
	mux.HandleFunc("GET /v1/blobs/{digest}/content", s.handleGetBlobContent)

	// Tenants and usage.
	mux.HandleFunc("GET /v1/tenants", s.handleListTenants)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	return s.withRequestLogging(s.withBasicAuth(mux))
}
