package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"log"
	"net/http"
	"strings"
)

// ControlTokenHeader is the alternative to an Authorization bearer token.
const ControlTokenHeader = "X-Control-Token"

// ControlAuth guards the routes that change a session (rider input,
// playback controls). Reads stay open.
type ControlAuth struct {
	digest [sha256.Size]byte
}

// NewControlAuth returns nil for an empty token, which leaves control
// routes open.
func NewControlAuth(token string) *ControlAuth {
	if token == "" {
		return nil
	}
	log.Println("🔐 Control routes require a token")
	return &ControlAuth{digest: sha256.Sum256([]byte(token))}
}

// Valid compares in constant time over digests so the token length does
// not leak either.
func (a *ControlAuth) Valid(token string) bool {
	got := sha256.Sum256([]byte(token))
	return hmac.Equal(got[:], a.digest[:])
}

// tokenFrom reads the bearer token or the control header.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.Header.Get(ControlTokenHeader)
}

// Middleware rejects requests without a valid token with 401.
func (a *ControlAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Valid(tokenFrom(r)) {
			RecordConnectionRejected("auth")
			w.Header().Set("WWW-Authenticate", `Bearer realm="control"`)
			writeError(w, "control token required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
