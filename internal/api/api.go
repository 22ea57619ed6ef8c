// ABOUTME: chi router for the certgate API: admin issuance, client login and verification
// ABOUTME: Mounts caller-supplied business routes behind the client credential gate

package api

import (
	"context"
	"crypto/rsa"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/2389/certgate/internal/auth"
	"github.com/2389/certgate/internal/store"
)

// Issuer issues and revokes credentials. Implemented by *auth.Issuer.
type Issuer interface {
	Issue(ctx context.Context, req auth.IssueRequest) (*auth.IssuedCertificate, error)
	Revoke(ctx context.Context, certificateID string) (*store.CertificateRecord, error)
}

// Records is the read side of the store used by admin listings.
type Records interface {
	ListCertificates(ctx context.Context, f store.CertificateFilter) ([]store.CertificateRecord, error)
	ListAuditLog(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error)
}

// PublicKeys exposes the verification key. Implemented by *keystore.KeyPair.
type PublicKeys interface {
	Public() *rsa.PublicKey
	KeyID() string
	PublicPEM() []byte
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	issuer      Issuer
	validator   auth.CredentialValidator
	records     Records
	keys        PublicKeys
	adminSecret string
	version     string
	logger      *slog.Logger
	protected   []func(chi.Router)
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithVersion sets the version reported by GET /api/.
func WithVersion(version string) Option {
	return func(a *API) {
		a.version = version
	}
}

// WithProtectedRoutes mounts business routes behind the client gate. Handlers
// read the caller with auth.IdentityFromContext.
func WithProtectedRoutes(fn func(r chi.Router)) Option {
	return func(a *API) {
		a.protected = append(a.protected, fn)
	}
}

// New creates a new API instance.
func New(issuer Issuer, validator auth.CredentialValidator, records Records, keys PublicKeys, adminSecret string, opts ...Option) *API {
	a := &API{
		issuer:      issuer,
		validator:   validator,
		records:     records,
		keys:        keys,
		adminSecret: adminSecret,
		version:     "dev",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "api")
	return a
}

// Router returns a chi.Router with all API routes mounted. It is meant to be
// mounted at /api.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/", a.Root)
	r.Get("/authority/public-key", a.PublicKey)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AdminAuthMiddleware(a.adminSecret, a.logger))
		r.Post("/generate-certificate", a.GenerateCertificate)
		r.Get("/certificates", a.ListCertificates)
		r.Post("/revoke-certificate", a.RevokeCertificate)
		r.Get("/audit", a.ListAudit)
	})

	r.Post("/auth/login", a.Login)

	// Everything below requires a valid client credential.
	r.Group(func(r chi.Router) {
		r.Use(auth.ClientAuthMiddleware(a.validator, a.logger))
		r.Get("/auth/verify", a.Verify)
		for _, mount := range a.protected {
			mount(r)
		}
	})

	return r
}
