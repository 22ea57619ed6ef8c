// ABOUTME: Request and response bodies for the certgate HTTP API
// ABOUTME: Field names match the JSON the admin CLI and clients exchange with the server

package api

import (
	"time"

	"github.com/2389/certgate/internal/auth"
	"github.com/2389/certgate/internal/store"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RootResponse is returned from GET /api/.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// GenerateCertificateRequest is the JSON body for POST /admin/generate-certificate.
type GenerateCertificateRequest struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ExpiresDays int    `json:"expires_days,omitempty"`
}

// CertificateSummary describes one issued certificate in a listing.
type CertificateSummary struct {
	CertificateID string     `json:"certificate_id"`
	ClientName    string     `json:"client_name"`
	ClientEmail   string     `json:"client_email"`
	IssuedAt      time.Time  `json:"issued_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IsActive      bool       `json:"is_active"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	Certificate   string     `json:"certificate"`
}

func summarize(rec *store.CertificateRecord) CertificateSummary {
	return CertificateSummary{
		CertificateID: rec.ID,
		ClientName:    rec.ClientName,
		ClientEmail:   rec.ClientEmail,
		IssuedAt:      rec.IssuedAt,
		ExpiresAt:     rec.ExpiresAt,
		IsActive:      rec.IsActive,
		RevokedAt:     rec.RevokedAt,
		Certificate:   rec.SignedCredential,
	}
}

// ListCertificatesResponse is returned from GET /admin/certificates.
type ListCertificatesResponse struct {
	Certificates []CertificateSummary `json:"certificates"`
}

// RevokeCertificateResponse is returned from POST /admin/revoke-certificate.
type RevokeCertificateResponse struct {
	Message       string     `json:"message"`
	CertificateID string     `json:"certificate_id"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

// AuditEntryResponse is one audit log entry.
type AuditEntryResponse struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// ListAuditResponse is returned from GET /admin/audit.
type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Certificate string `json:"certificate"`
}

// LoginResponse is returned from POST /auth/login.
type LoginResponse struct {
	Message string         `json:"message"`
	User    *auth.Identity `json:"user"`
}

// VerifyResponse is returned from GET /auth/verify.
type VerifyResponse struct {
	Valid bool           `json:"valid"`
	User  *auth.Identity `json:"user"`
}
