// ABOUTME: Credential claims, key interfaces and error sentinels shared by issuer and validator
// ABOUTME: Credentials are RS256 JWTs whose payload carries the certificate identity

package auth

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Credential rejections. Callers outside the package see all four as one
// uniform authentication failure.
var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrExpiredCredential   = errors.New("credential expired")
	ErrRevokedCredential   = errors.New("credential revoked")
	ErrUnknownCredential   = errors.New("unknown credential")
)

// Infrastructure and request errors.
var (
	ErrStoreUnavailable = errors.New("revocation store unavailable")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrIssuance         = errors.New("certificate issuance failed")
	ErrNotFound         = errors.New("certificate not found")
)

// IsRejection reports whether err is a credential rejection rather than an
// infrastructure fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, ErrExpiredCredential) ||
		errors.Is(err, ErrRevokedCredential) ||
		errors.Is(err, ErrUnknownCredential)
}

// SigningMethod is the only algorithm credentials are signed or accepted with.
var SigningMethod = jwt.SigningMethodRS256

// Defaults for the payload labels.
const (
	DefaultAuthority = "Joinery Project Manager"
)

// DefaultPermissions is the capability set stamped into every credential.
var DefaultPermissions = []string{"project_access", "financial_view"}

// CredentialClaims is the signed payload. The custom fields are what clients
// and the validator read; the registered claims mirror them for generic JWT
// tooling.
type CredentialClaims struct {
	CertificateID string   `json:"certificate_id"`
	ClientName    string   `json:"client_name"`
	ClientEmail   string   `json:"client_email"`
	Issued        string   `json:"issued_at"`  // RFC3339 UTC
	Expires       string   `json:"expires_at"` // RFC3339 UTC
	Authority     string   `json:"issuer"`
	Permissions   []string `json:"permissions"`
	jwt.RegisteredClaims
}

// SigningKey is the authority key used by the Issuer.
type SigningKey interface {
	PrivateKey() *rsa.PrivateKey
	KeyID() string
}

// KeyResolver maps the kid header of a credential to a verification key.
type KeyResolver interface {
	PublicKey(kid string) (*rsa.PublicKey, error)
}
