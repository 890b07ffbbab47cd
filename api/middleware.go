package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// AdminTokenHeader is the shared-secret header checked on every mutating
// route.
const AdminTokenHeader = "X-Admin-Token"

// ErrUnauthorized is returned for a missing or mismatched credential.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator decides whether a request may cross the boundary. The
// scheme is pluggable so it can be swapped without touching handler logic.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// TokenAuthenticator compares the shared-secret header against a configured
// value in constant time.
type TokenAuthenticator struct {
	token string
}

// NewTokenAuthenticator creates an authenticator for the given secret.
func NewTokenAuthenticator(token string) *TokenAuthenticator {
	return &TokenAuthenticator{token: token}
}

// Authenticate checks the admin token header. An unconfigured secret denies
// everything rather than allowing everything.
func (a *TokenAuthenticator) Authenticate(r *http.Request) error {
	if a.token == "" {
		return ErrUnauthorized
	}
	header := r.Header.Get(AdminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(header), []byte(a.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// AdminAuthMiddleware enforces the authenticator on every request except
// bare GETs (liveness probes) and CORS preflight, before any body parsing.
func AdminAuthMiddleware(auth Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if err := auth.Authenticate(r); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
