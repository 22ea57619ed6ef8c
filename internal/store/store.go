// ABOUTME: Store interfaces and data types for certgate persistence
// ABOUTME: Defines CertificateRecord and the CertificateStore (revocation store) contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateCertificate is returned when a certificate ID is already recorded
var ErrDuplicateCertificate = errors.New("certificate already exists")

// CertificateRecord is the durable issuance record for one client credential.
// Identity fields and IssuedAt never change after creation; IsActive and
// RevokedAt change together, exactly once, on revocation.
type CertificateRecord struct {
	ID               string
	ClientName       string
	ClientEmail      string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	IsActive         bool
	RevokedAt        *time.Time
	SignedCredential string
}

// Revoked reports whether the record has been revoked.
func (c *CertificateRecord) Revoked() bool {
	return !c.IsActive
}

// CertificateStatus filters certificate listings.
type CertificateStatus string

const (
	CertificateStatusAll     CertificateStatus = "all"
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusRevoked CertificateStatus = "revoked"
)

// ParseCertificateStatus maps a query value to a CertificateStatus.
// The empty string means all.
func ParseCertificateStatus(s string) (CertificateStatus, error) {
	switch CertificateStatus(s) {
	case "", CertificateStatusAll:
		return CertificateStatusAll, nil
	case CertificateStatusActive, CertificateStatusRevoked:
		return CertificateStatus(s), nil
	default:
		return "", errors.New("status must be one of: all, active, revoked")
	}
}

// CertificateFilter specifies filtering options for listing certificates.
type CertificateFilter struct {
	Status CertificateStatus // default all
	Limit  int               // default 100, max 1000
}

// CertificateStore is the revocation store: the single source of truth for
// whether an issued credential is still live.
type CertificateStore interface {
	// CreateCertificate records a newly issued certificate.
	// Returns ErrDuplicateCertificate if the ID is already present.
	CreateCertificate(ctx context.Context, cert *CertificateRecord) error

	// GetCertificate returns the record for id, or ErrNotFound.
	GetCertificate(ctx context.Context, id string) (*CertificateRecord, error)

	// ListCertificates returns records newest first.
	ListCertificates(ctx context.Context, f CertificateFilter) ([]CertificateRecord, error)

	// RevokeCertificate marks the certificate inactive and stamps RevokedAt.
	// Revoking an already revoked certificate succeeds without changing it.
	// The bool is true only for the call that performed the revocation.
	// Returns ErrNotFound only if id was never recorded.
	RevokeCertificate(ctx context.Context, id string, at time.Time) (*CertificateRecord, bool, error)
}

// AuditStore records administrative actions.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store is everything a certgate backend provides.
type Store interface {
	CertificateStore
	AuditStore

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// normalizeLimit applies default (100) and cap (1000) to a listing limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// matchesStatus reports whether a record passes the status filter.
func matchesStatus(c *CertificateRecord, status CertificateStatus) bool {
	switch status {
	case CertificateStatusActive:
		return c.IsActive
	case CertificateStatusRevoked:
		return !c.IsActive
	default:
		return true
	}
}
