// ABOUTME: HTTP middleware gating client endpoints on a valid, unrevoked credential
// ABOUTME: Extracts the bearer token, validates it and attaches the identity to the context

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Response bodies for gate failures. Every rejection reason maps to the same
// body so callers cannot tell expired from revoked from malformed.
const (
	unauthorizedBody = `{"error":"invalid authentication"}`
	unavailableBody  = `{"error":"authentication unavailable"}`
)

// CredentialValidator is implemented by *Validator.
type CredentialValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeUnauthorized sends the uniform 401 response.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(unavailableBody))
}

// ClientAuthMiddleware creates an HTTP middleware that admits only requests
// carrying a currently valid client credential.
func ClientAuthMiddleware(validator CredentialValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client_gate")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Warn("rejected request", "reason", errMsg, "path", r.URL.Path)
				writeUnauthorized(w)
				return
			}

			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrStoreUnavailable) {
					logger.Error("revocation store unavailable", "error", err, "path", r.URL.Path)
					writeUnavailable(w)
					return
				}
				logger.Warn("rejected credential", "reason", err, "path", r.URL.Path)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireIdentity rejects requests that reached it without a client identity.
// Must be used after ClientAuthMiddleware; it guards handlers that are mounted
// on routers where the gate might be misconfigured.
func RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IdentityFromContext(r.Context()) == nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
