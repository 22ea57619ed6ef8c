// ABOUTME: Tests for credential validation
// ABOUTME: Covers signature, expiry and revocation checks and their ordering

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/certgate/internal/store"
)

func issueTestCertificate(t *testing.T, issuer *Issuer) *IssuedCertificate {
	t.Helper()
	cert, err := issuer.Issue(context.Background(), IssueRequest{
		ClientName:   "Ann",
		ClientEmail:  "ann@x.com",
		LifetimeDays: 30,
	})
	require.NoError(t, err)
	return cert
}

func TestValidate_FreshCredential(t *testing.T) {
	issuer, validator, _, _ := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	id, err := validator.Validate(context.Background(), cert.Certificate)
	require.NoError(t, err)

	assert.Equal(t, cert.CertificateID, id.CertificateID)
	assert.Equal(t, "Ann", id.ClientName)
	assert.Equal(t, "ann@x.com", id.ClientEmail)
	assert.Equal(t, DefaultAuthority, id.Issuer)
	assert.Equal(t, DefaultPermissions, id.Permissions)
	assert.True(t, id.IssuedAt.Equal(cert.IssuedAt))
	assert.True(t, id.ExpiresAt.Equal(cert.ExpiresAt))
	assert.True(t, id.HasPermission("financial_view"))
	assert.False(t, id.HasPermission("admin"))
}

func TestValidate_Revoked(t *testing.T) {
	issuer, validator, _, _ := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	_, err := issuer.Revoke(context.Background(), cert.CertificateID)
	require.NoError(t, err)

	_, err = validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrRevokedCredential)
	assert.True(t, IsRejection(err))
}

func TestValidate_Expired(t *testing.T) {
	issuer, validator, _, clock := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	// Exactly at expiry the credential is still accepted.
	clock.Advance(30 * 24 * time.Hour)
	_, err := validator.Validate(context.Background(), cert.Certificate)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrExpiredCredential)
	assert.True(t, IsRejection(err))
}

func TestValidate_ExpiredSkipsStore(t *testing.T) {
	issuer, validator, s, clock := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	clock.Advance(31 * 24 * time.Hour)
	s.SetError(errors.New("store down"))

	_, err := validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrExpiredCredential, "expiry must be decided without the store")
}

func TestValidate_UnknownCertificate(t *testing.T) {
	issuer, _, _, clock := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	// Same key, but a store that never saw the issuance.
	validator := NewValidator(testKey(t), store.NewMockStore(), "", nil)
	validator.SetClock(clock.Now)

	_, err := validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrUnknownCredential)
	assert.True(t, IsRejection(err))
}

func TestValidate_StoreUnavailable(t *testing.T) {
	issuer, validator, s, _ := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	s.SetError(errors.New("connection refused"))

	_, err := validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, IsRejection(err), "an outage is not a credential rejection")
}

func TestValidate_OtherKey(t *testing.T) {
	_, validator, s, clock := newTestAuthority(t)

	foreign := NewIssuer(otherKey(t), s, IssuerConfig{}, nil)
	foreign.SetClock(clock.Now)
	cert := issueTestCertificate(t, foreign)

	_, err := validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestValidate_OtherKeyReusingKid(t *testing.T) {
	_, validator, s, clock := newTestAuthority(t)

	// A forger who copies our kid still cannot produce a valid signature.
	forger := NewIssuer(kidOverride{otherKey(t), testKey(t).KeyID()}, s, IssuerConfig{}, nil)
	forger.SetClock(clock.Now)
	cert := issueTestCertificate(t, forger)

	_, err := validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

type kidOverride struct {
	SigningKey
	kid string
}

func (k kidOverride) KeyID() string { return k.kid }

func TestValidate_TamperedPayload(t *testing.T) {
	issuer, validator, _, _ := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	fields := map[string]any{
		"client_name":  "Mallory",
		"client_email": "mallory@x.com",
		"expires_at":   "2099-01-01T00:00:00Z",
		"permissions":  []string{"project_access", "financial_view", "admin"},
	}

	for field, value := range fields {
		t.Run(field, func(t *testing.T) {
			tampered := tamperPayload(t, cert.Certificate, field, value)
			_, err := validator.Validate(context.Background(), tampered)
			assert.ErrorIs(t, err, ErrMalformedCredential)
		})
	}
}

func tamperPayload(t *testing.T, token, field string, value any) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	payload[field] = value
	raw, err = json.Marshal(payload)
	require.NoError(t, err)
	parts[1] = base64.RawURLEncoding.EncodeToString(raw)
	return strings.Join(parts, ".")
}

func TestValidate_Malformed(t *testing.T) {
	issuer, validator, _, _ := newTestAuthority(t)
	key := testKey(t)
	good := issueTestCertificate(t, issuer)

	sign := func(method jwt.SigningMethod, claims jwt.Claims, kid string, signingKey any) string {
		tok := jwt.NewWithClaims(method, claims)
		if kid != "" {
			tok.Header["kid"] = kid
		}
		s, err := tok.SignedString(signingKey)
		require.NoError(t, err)
		return s
	}

	validClaims := func() CredentialClaims {
		return CredentialClaims{
			CertificateID: good.CertificateID,
			ClientName:    "Ann",
			ClientEmail:   "ann@x.com",
			Issued:        good.IssuedAt.Format(time.RFC3339),
			Expires:       good.ExpiresAt.Format(time.RFC3339),
			Authority:     DefaultAuthority,
			Permissions:   DefaultPermissions,
		}
	}

	wrongIssuer := validClaims()
	wrongIssuer.Authority = "Someone Else"
	noID := validClaims()
	noID.CertificateID = ""
	badExpiry := validClaims()
	badExpiry.Expires = "next tuesday"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"three garbage segments", "a.b.c"},
		{"missing kid", sign(SigningMethod, validClaims(), "", key.PrivateKey())},
		{"unknown kid", sign(SigningMethod, validClaims(), "SHA256:nope", key.PrivateKey())},
		{"HS256 with public key bytes", sign(jwt.SigningMethodHS256, validClaims(), key.KeyID(), key.PublicPEM())},
		{"wrong issuer", sign(SigningMethod, wrongIssuer, key.KeyID(), key.PrivateKey())},
		{"missing certificate_id", sign(SigningMethod, noID, key.KeyID(), key.PrivateKey())},
		{"unparseable expires_at", sign(SigningMethod, badExpiry, key.KeyID(), key.PrivateKey())},
		{"none algorithm", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
			tok.Header["kid"] = key.KeyID()
			s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.Validate(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrMalformedCredential)
			assert.True(t, IsRejection(err))
		})
	}
}

func TestValidate_ConcurrentWithRevoke(t *testing.T) {
	issuer, validator, _, _ := newTestAuthority(t)
	cert := issueTestCertificate(t, issuer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 50 {
			_, err := validator.Validate(context.Background(), cert.Certificate)
			if err != nil && !errors.Is(err, ErrRevokedCredential) {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}()

	_, err := issuer.Revoke(context.Background(), cert.CertificateID)
	require.NoError(t, err)
	<-done

	// Once Revoke has returned, every later validation sees it.
	_, err = validator.Validate(context.Background(), cert.Certificate)
	assert.ErrorIs(t, err, ErrRevokedCredential)
}
