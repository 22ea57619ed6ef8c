// ABOUTME: Validates presented credentials: signature, expiry, then revocation status
// ABOUTME: Returns the decoded identity or a typed rejection error

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/certgate/internal/store"
)

// CertificateLookup is the read side of the revocation store.
type CertificateLookup interface {
	GetCertificate(ctx context.Context, id string) (*store.CertificateRecord, error)
}

// Validator checks credentials against the authority key and the
// revocation store. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	keys      KeyResolver
	store     CertificateLookup
	authority string
	now       func() time.Time
	logger    *slog.Logger
	parser    *jwt.Parser
}

// NewValidator creates a Validator. authority is the issuer label credentials
// must carry; empty means DefaultAuthority.
func NewValidator(keys KeyResolver, s CertificateLookup, authority string, logger *slog.Logger) *Validator {
	if authority == "" {
		authority = DefaultAuthority
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		keys:      keys,
		store:     s,
		authority: authority,
		now:       time.Now,
		logger:    logger.With("component", "validator"),
		// Expiry is checked against expires_at with our own clock below.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{SigningMethod.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// SetClock replaces the time source.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Validate runs the checks in order and stops at the first failure:
// signature, expiry, revocation store.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := v.verifySignature(tokenString)
	if err != nil {
		return nil, err
	}

	expiresAt, err := time.Parse(time.RFC3339, claims.Expires)
	if err != nil {
		return nil, fmt.Errorf("%w: expires_at: %v", ErrMalformedCredential, err)
	}
	issuedAt, err := time.Parse(time.RFC3339, claims.Issued)
	if err != nil {
		return nil, fmt.Errorf("%w: issued_at: %v", ErrMalformedCredential, err)
	}

	if v.now().After(expiresAt) {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpiredCredential, claims.Expires)
	}

	rec, err := v.store.GetCertificate(ctx, claims.CertificateID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrUnknownCredential, claims.CertificateID)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case !rec.IsActive:
		return nil, fmt.Errorf("%w: %s", ErrRevokedCredential, claims.CertificateID)
	}

	return &Identity{
		CertificateID: claims.CertificateID,
		ClientName:    claims.ClientName,
		ClientEmail:   claims.ClientEmail,
		Issuer:        claims.Authority,
		Permissions:   claims.Permissions,
		IssuedAt:      issuedAt.UTC(),
		ExpiresAt:     expiresAt.UTC(),
	}, nil
}

// verifySignature parses the token with the key named by its kid header and
// checks the payload is one this authority issued.
func (v *Validator) verifySignature(tokenString string) (*CredentialClaims, error) {
	claims := &CredentialClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid header")
		}
		return v.keys.PublicKey(kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if !token.Valid {
		return nil, ErrMalformedCredential
	}

	if claims.CertificateID == "" {
		return nil, fmt.Errorf("%w: missing certificate_id", ErrMalformedCredential)
	}
	if claims.Authority != v.authority {
		return nil, fmt.Errorf("%w: issuer %q", ErrMalformedCredential, claims.Authority)
	}
	return claims, nil
}
