package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"ratelimiter/internal/models"

	"github.com/gorilla/mux"
)

// adminAuthMiddleware requires "Authorization: Bearer <token>" matching the
// configured admin token.
func adminAuthMiddleware(token string) mux.MiddlewareFunc {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization required")
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeUnauthorized(w, "Invalid authorization format")
				return
			}
			if !isValidAdminToken(authHeader[len(prefix):], expected) {
				slog.Warn("Rejected admin request",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr)
				writeUnauthorized(w, "Invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isValidAdminToken compares in constant time. An empty expected token never
// matches.
func isValidAdminToken(got string, expected []byte) bool {
	if len(expected) == 0 || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), expected) == 1
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ratelimiter-admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, models.ErrorCodeUnauthorized))
}
