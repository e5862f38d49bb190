package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext retrieves the caller ID attached by InternalAuth, if any.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}

// WithUserID returns a new context with the given caller ID set. Useful for
// testing handlers that depend on auth middleware.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userIDKey, uid)
}

// InternalAuth returns middleware enforcing the shared-secret check the
// orchestrator's callers (an internal proxy, a deployment sidecar) are
// expected to present via X-Internal-Auth. There is no end-user session or
// token subsystem here; X-User-ID is an optional caller-supplied label
// carried through to the context for logging/attribution, not an identity
// that is verified.
//
// An empty secret disables the check entirely, which is only acceptable in
// local/development environments; config.Load already refuses to start
// without a secret outside of "development".
func InternalAuth(secret string) func(http.Handler) http.Handler {
	secretBytes := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secretBytes) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get("X-Internal-Auth")
			if subtle.ConstantTimeCompare([]byte(token), secretBytes) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid internal auth token")
				return
			}

			ctx := r.Context()
			if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
				if len(userID) > 256 || !isPrintableASCII(userID) {
					respondError(w, http.StatusBadRequest, "invalid user ID")
					return
				}
				ctx = context.WithValue(ctx, userIDKey, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isPrintableASCII checks that every rune is a printable ASCII character.
func isPrintableASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
