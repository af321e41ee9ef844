package server

import (
	"errors"
	"fmt"
	"net/http"

	"mailvault/internal/auth"
	"mailvault/internal/store"
)

// withBasicAuth guards every route except /health behind the admin_users
// table. When no operators are registered auth is not enforced.
func (s *Server) withBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.requireAuth || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			s.unauthorized(w, r, fmt.Errorf("credentials required"))
			return
		}

		normalized, err := auth.NormalizeUsername(username)
		if err != nil {
			s.unauthorized(w, r, fmt.Errorf("invalid credentials"))
			return
		}

		user, err := s.store.GetAdminUser(r.Context(), normalized)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.unauthorized(w, r, fmt.Errorf("invalid credentials"))
				return
			}
			s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
			return
		}
		if user.Disabled || !auth.VerifyPassword(user.PasswordHash, password) {
			s.unauthorized(w, r, fmt.Errorf("invalid credentials"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Basic realm="mailvault"`)
	s.writeErrorReq(w, r, http.StatusUnauthorized,
		makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, err))
}
