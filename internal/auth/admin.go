// ABOUTME: Admin gate comparing the bearer value to the configured shared secret
// ABOUTME: Separate from the client path; never consults the credential validator

package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// AdminAuthMiddleware creates an HTTP middleware that admits only requests
// whose bearer value equals secret. Client credentials do not pass.
func AdminAuthMiddleware(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "admin_gate")
	want := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Warn("rejected admin request", "reason", errMsg, "path", r.URL.Path)
				writeUnauthorized(w)
				return
			}

			// An empty configured secret never matches.
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				logger.Warn("rejected admin request", "reason", "secret mismatch", "path", r.URL.Path)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context())))
		})
	}
}
