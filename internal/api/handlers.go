// ABOUTME: HTTP handlers for admin issuance, listing, revocation and client login
// ABOUTME: Decodes JSON bodies strictly and delegates to the issuer, validator and store

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/certgate/internal/auth"
	"github.com/2389/certgate/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseLimit reads an optional positive integer "limit" query parameter.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Root handles GET /api/.
func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Message: "certgate certificate authority API",
		Version: a.version,
	})
}

// GenerateCertificate handles POST /admin/generate-certificate.
func (a *API) GenerateCertificate(w http.ResponseWriter, r *http.Request) {
	var req GenerateCertificateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cert, err := a.issuer.Issue(r.Context(), auth.IssueRequest{
		ClientName:   req.ClientName,
		ClientEmail:  req.ClientEmail,
		LifetimeDays: req.ExpiresDays,
	})
	if err != nil {
		mapError(w, a.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, cert)
}

// ListCertificates handles GET /admin/certificates.
func (a *API) ListCertificates(w http.ResponseWriter, r *http.Request) {
	status, err := store.ParseCertificateStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	records, err := a.records.ListCertificates(r.Context(), store.CertificateFilter{Status: status, Limit: limit})
	if err != nil {
		mapError(w, a.logger, err)
		return
	}

	resp := ListCertificatesResponse{Certificates: make([]CertificateSummary, 0, len(records))}
	for i := range records {
		resp.Certificates = append(resp.Certificates, summarize(&records[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RevokeCertificate handles POST /admin/revoke-certificate?certificate_id=.
func (a *API) RevokeCertificate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("certificate_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "certificate_id is required")
		return
	}

	rec, err := a.issuer.Revoke(r.Context(), id)
	if err != nil {
		mapError(w, a.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, RevokeCertificateResponse{
		Message:       "Certificate revoked successfully",
		CertificateID: rec.ID,
		RevokedAt:     rec.RevokedAt,
	})
}

// ListAudit handles GET /admin/audit.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	filter := store.AuditFilter{Limit: limit}
	if target := r.URL.Query().Get("certificate_id"); target != "" {
		filter.TargetID = &target
	}
	if raw := r.URL.Query().Get("action"); raw != "" {
		action, err := store.ParseAuditAction(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Action = &action
	}

	entries, err := a.records.ListAuditLog(r.Context(), filter)
	if err != nil {
		mapError(w, a.logger, err)
		return
	}

	resp := ListAuditResponse{Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, AuditEntryResponse{
			ID:        e.ID,
			Actor:     e.ActorPrincipalID,
			Action:    string(e.Action),
			Target:    e.TargetType + "/" + e.TargetID,
			Timestamp: e.Timestamp,
			Detail:    e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Login handles POST /auth/login. The credential arrives in the body rather
// than the Authorization header, so the client gate is not in front of it.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Certificate) == "" {
		a.logger.Warn("rejected login", "reason", "missing certificate")
		writeUnauthorized(w)
		return
	}

	identity, err := a.validator.Validate(r.Context(), strings.TrimSpace(req.Certificate))
	if err != nil {
		if auth.IsRejection(err) {
			a.logger.Warn("rejected login", "reason", err)
		}
		mapError(w, a.logger, err)
		return
	}

	a.logger.Info("client logged in", "certificate_id", identity.CertificateID, "client", identity.ClientName)
	writeJSON(w, http.StatusOK, LoginResponse{Message: "Login successful", User: identity})
}

// Verify handles GET /auth/verify.
func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, User: auth.IdentityFromContext(r.Context())})
}

// PublicKey handles GET /authority/public-key.
func (a *API) PublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.keys.PublicPEM())
}
