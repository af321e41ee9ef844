package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"mailvault/internal/blobstore"
	"mailvault/internal/store"
)

const (
	allowRemoteEnvKey = "MAILVAULT_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server exposes the read-only dashboard API over the catalog. It never
// mutates backup state; runs and sweeps go through the CLI.
type Server struct {
	addr    string
	store   store.ReadStore
	blobs   blobstore.BlobStore
	version string
	logger  *slog.Logger

	// requireAuth is set when at least one admin user exists. With no
	// operators registered the dashboard is open, which is acceptable only
	// because listening is loopback-bound by default.
	requireAuth bool
}

// New creates a new server instance. blobs may be nil, in which case blob
// content download is disabled and only catalog metadata is served.
func New(addr string, readStore store.ReadStore, blobs blobstore.BlobStore, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	requireAuth := false
	if users, err := readStore.ListAdminUsers(context.Background()); err == nil && len(users) > 0 {
		requireAuth = true
	}

	return &Server{
		addr:        addr,
		store:       readStore,
		blobs:       blobs,
		version:     version,
		logger:      logger,
		requireAuth: requireAuth,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting dashboard server", "addr", s.addr, "auth_required", s.requireAuth)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
