// ABOUTME: JSON response helpers and service error to status code mapping
// ABOUTME: Keeps every authentication failure on the same 401 shape

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/2389/certgate/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeUnauthorized matches the gate middlewares so every auth failure looks the same.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "invalid authentication")
}

// mapError translates a service error into a status code. Server faults are
// logged and answered with a generic message.
func mapError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "Certificate not found")
	case auth.IsRejection(err):
		writeUnauthorized(w)
	case errors.Is(err, auth.ErrStoreUnavailable):
		logger.Error("revocation store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
	case errors.Is(err, auth.ErrIssuance):
		logger.Error("issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "certificate issuance failed")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
