// ABOUTME: Issues signed client credentials and records them in the revocation store
// ABOUTME: Also revokes credentials; both actions are written to the audit log

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/certgate/internal/store"
)

// Lifetime defaults in days.
const (
	DefaultLifetimeDays = 365
	MaxLifetimeDays     = 3650
)

// IssuerStore is the persistence the Issuer needs.
type IssuerStore interface {
	CreateCertificate(ctx context.Context, cert *store.CertificateRecord) error
	RevokeCertificate(ctx context.Context, id string, at time.Time) (*store.CertificateRecord, bool, error)
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// IssuerConfig holds the payload labels and lifetime bounds.
type IssuerConfig struct {
	Authority           string
	Permissions         []string
	DefaultLifetimeDays int
	MaxLifetimeDays     int
}

// IssueRequest is the input to Issue.
type IssueRequest struct {
	ClientName   string `json:"client_name"`
	ClientEmail  string `json:"client_email"`
	LifetimeDays int    `json:"expires_days"` // 0 means the configured default
}

// IssuedCertificate is what the client receives.
type IssuedCertificate struct {
	CertificateID string    `json:"certificate_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email"`
	Certificate   string    `json:"certificate"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Issuer mints credentials with the authority key.
type Issuer struct {
	key    SigningKey
	store  IssuerStore
	cfg    IssuerConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewIssuer creates an Issuer. Zero config fields take their defaults.
func NewIssuer(key SigningKey, s IssuerStore, cfg IssuerConfig, logger *slog.Logger) *Issuer {
	if cfg.Authority == "" {
		cfg.Authority = DefaultAuthority
	}
	if len(cfg.Permissions) == 0 {
		cfg.Permissions = DefaultPermissions
	}
	if cfg.DefaultLifetimeDays <= 0 {
		cfg.DefaultLifetimeDays = DefaultLifetimeDays
	}
	if cfg.MaxLifetimeDays <= 0 {
		cfg.MaxLifetimeDays = MaxLifetimeDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		key:    key,
		store:  s,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "issuer"),
	}
}

// SetClock replaces the time source. Used by tests and offline tooling.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue signs a new credential and records it as active.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*IssuedCertificate, error) {
	name := strings.TrimSpace(req.ClientName)
	email := strings.TrimSpace(req.ClientEmail)

	if name == "" {
		return nil, fmt.Errorf("%w: client_name is required", ErrInvalidRequest)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: client_email is required", ErrInvalidRequest)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: client_email %q is not a valid address", ErrInvalidRequest, email)
	}

	days := req.LifetimeDays
	switch {
	case days == 0:
		days = i.cfg.DefaultLifetimeDays
	case days < 0:
		return nil, fmt.Errorf("%w: expires_days must be positive", ErrInvalidRequest)
	case days > i.cfg.MaxLifetimeDays:
		return nil, fmt.Errorf("%w: expires_days must be at most %d", ErrInvalidRequest, i.cfg.MaxLifetimeDays)
	}

	id := uuid.NewString()
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(time.Duration(days) * 24 * time.Hour)

	claims := CredentialClaims{
		CertificateID: id,
		ClientName:    name,
		ClientEmail:   email,
		Issued:        issuedAt.Format(time.RFC3339),
		Expires:       expiresAt.Format(time.RFC3339),
		Authority:     i.cfg.Authority,
		Permissions:   i.cfg.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   email,
			Issuer:    i.cfg.Authority,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(SigningMethod, claims)
	token.Header["kid"] = i.key.KeyID()
	signed, err := token.SignedString(i.key.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("%w: signing: %v", ErrIssuance, err)
	}

	rec := &store.CertificateRecord{
		ID:               id,
		ClientName:       name,
		ClientEmail:      email,
		IssuedAt:         issuedAt,
		ExpiresAt:        expiresAt,
		IsActive:         true,
		SignedCredential: signed,
	}
	if err := i.store.CreateCertificate(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: recording certificate: %w", ErrIssuance, err)
	}

	i.audit(ctx, store.AuditIssueCertificate, id, map[string]any{
		"client_name":  name,
		"client_email": email,
		"expires_at":   expiresAt.Format(time.RFC3339),
	})

	i.logger.Info("issued certificate", "certificate_id", id, "client", name, "expires_at", expiresAt)
	return &IssuedCertificate{
		CertificateID: id,
		ClientName:    name,
		ClientEmail:   email,
		Certificate:   signed,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
	}, nil
}

// Revoke marks a certificate inactive. Revoking an already revoked
// certificate succeeds and leaves its revocation time unchanged. Returns
// ErrNotFound only for ids that were never issued.
func (i *Issuer) Revoke(ctx context.Context, certificateID string) (*store.CertificateRecord, error) {
	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return nil, fmt.Errorf("%w: certificate_id is required", ErrInvalidRequest)
	}

	now := i.now().UTC()
	rec, changed, err := i.store.RevokeCertificate(ctx, certificateID, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, certificateID)
	}
	if err != nil {
		return nil, fmt.Errorf("revoking certificate: %w", err)
	}

	// Only the call that performed the transition is audited.
	if changed {
		i.audit(ctx, store.AuditRevokeCertificate, certificateID, map[string]any{
			"client_name": rec.ClientName,
		})
		i.logger.Info("revoked certificate", "certificate_id", certificateID)
	} else {
		i.logger.Debug("certificate already revoked", "certificate_id", certificateID)
	}
	return rec, nil
}

// audit appends an audit entry. Failures are logged; the action itself has
// already been committed.
func (i *Issuer) audit(ctx context.Context, action store.AuditAction, target string, detail map[string]any) {
	err := i.store.AppendAuditLog(ctx, &store.AuditEntry{
		ActorPrincipalID: ActorFromContext(ctx),
		Action:           action,
		TargetType:       "certificate",
		TargetID:         target,
		Timestamp:        i.now().UTC(),
		Detail:           detail,
	})
	if err != nil {
		i.logger.Error("failed to append audit log", "action", action, "certificate_id", target, "error", err)
	}
}
