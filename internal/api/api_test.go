// ABOUTME: HTTP tests for the certgate API router
// ABOUTME: Exercises admin, login, verify, protected routes and key publication through httptest

package api

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/certgate/internal/auth"
	"github.com/2389/certgate/internal/keystore"
	"github.com/2389/certgate/internal/store"
)

const testAdminSecret = "api-test-admin-secret-0123456789"

type testEnv struct {
	server    *httptest.Server
	store     *store.MockStore
	keys      *keystore.KeyPair
	issuer    *auth.Issuer
	validator *auth.Validator
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	keys, err := keystore.LoadOrCreate(keystore.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	s := store.NewMockStore()
	issuer := auth.NewIssuer(keys, s, auth.IssuerConfig{}, nil)
	validator := auth.NewValidator(keys, s, "", nil)

	a := New(issuer, validator, s, keys, testAdminSecret, append([]Option{WithVersion("test")}, opts...)...)

	r := chi.NewRouter()
	r.Mount("/api", a.Router())
	r.Get("/.well-known/jwks.json", a.JWKS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: s, keys: keys, issuer: issuer, validator: validator}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) issue(t *testing.T, name, email string, days int) auth.IssuedCertificate {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/admin/generate-certificate", testAdminSecret,
		GenerateCertificateRequest{ClientName: name, ClientEmail: email, ExpiresDays: days})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[auth.IssuedCertificate](t, resp)
}

func assertUnauthorized(t *testing.T, resp *http.Response) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "invalid authentication", body.Error)
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[RootResponse](t, resp)
	assert.Equal(t, "test", body.Version)
	assert.NotEmpty(t, body.Message)
}

func TestGenerateCertificate(t *testing.T) {
	env := newTestEnv(t)

	cert := env.issue(t, "Ann", "ann@x.com", 30)
	assert.NotEmpty(t, cert.CertificateID)
	assert.Equal(t, "Ann", cert.ClientName)
	assert.Equal(t, "ann@x.com", cert.ClientEmail)
	assert.NotEmpty(t, cert.Certificate)
	assert.Equal(t, 30*24*time.Hour, cert.ExpiresAt.Sub(cert.IssuedAt))

	rec, err := env.store.GetCertificate(t.Context(), cert.CertificateID)
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
}

func TestGenerateCertificate_DefaultLifetime(t *testing.T) {
	env := newTestEnv(t)

	cert := env.issue(t, "Ann", "ann@x.com", 0)
	assert.Equal(t, auth.DefaultLifetimeDays*24*time.Hour, cert.ExpiresAt.Sub(cert.IssuedAt))
}

func TestGenerateCertificate_BadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"not json", "{nope"},
		{"unknown field", `{"client_name":"A","client_email":"a@x.com","admin":true}`},
		{"missing email", GenerateCertificateRequest{ClientName: "A"}},
		{"bad email", GenerateCertificateRequest{ClientName: "A", ClientEmail: "a"}},
		{"negative days", GenerateCertificateRequest{ClientName: "A", ClientEmail: "a@x.com", ExpiresDays: -3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/admin/generate-certificate", testAdminSecret, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAdminRoutes_RequireAdminSecret(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/admin/generate-certificate"},
		{http.MethodGet, "/api/admin/certificates"},
		{http.MethodPost, "/api/admin/revoke-certificate?certificate_id=" + cert.CertificateID},
		{http.MethodGet, "/api/admin/audit"},
	}

	for _, route := range routes {
		for name, bearer := range map[string]string{
			"no bearer":         "",
			"wrong secret":      "definitely-not-the-secret",
			"client credential": cert.Certificate,
		} {
			t.Run(route.path+"/"+name, func(t *testing.T) {
				resp := env.do(t, route.method, route.path, bearer, `{"client_name":"X","client_email":"x@x.com"}`)
				assertUnauthorized(t, resp)
			})
		}
	}

	// None of the rejected requests revoked anything.
	rec, err := env.store.GetCertificate(t.Context(), cert.CertificateID)
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
}

func TestListCertificates(t *testing.T) {
	env := newTestEnv(t)
	a := env.issue(t, "A", "a@x.com", 30)
	env.issue(t, "B", "b@x.com", 30)

	resp := env.do(t, http.MethodPost, "/api/admin/revoke-certificate?certificate_id="+a.CertificateID, testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/admin/certificates", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[ListCertificatesResponse](t, resp)
	require.Len(t, all.Certificates, 2)
	for _, c := range all.Certificates {
		assert.NotEmpty(t, c.Certificate, "listing includes the signed credential")
	}

	resp = env.do(t, http.MethodGet, "/api/admin/certificates?status=revoked", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revoked := decode[ListCertificatesResponse](t, resp)
	require.Len(t, revoked.Certificates, 1)
	assert.Equal(t, a.CertificateID, revoked.Certificates[0].CertificateID)
	assert.False(t, revoked.Certificates[0].IsActive)
	assert.NotNil(t, revoked.Certificates[0].RevokedAt)

	resp = env.do(t, http.MethodGet, "/api/admin/certificates?limit=1", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[ListCertificatesResponse](t, resp).Certificates, 1)

	resp = env.do(t, http.MethodGet, "/api/admin/certificates?status=bogus", testAdminSecret, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/admin/certificates?limit=-1", testAdminSecret, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListCertificates_Empty(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/admin/certificates", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "[]", string(raw["certificates"]))
}

func TestRevokeCertificate(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)
	path := "/api/admin/revoke-certificate?certificate_id=" + cert.CertificateID

	resp := env.do(t, http.MethodPost, path, testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[RevokeCertificateResponse](t, resp)
	assert.Equal(t, "Certificate revoked successfully", first.Message)
	assert.Equal(t, cert.CertificateID, first.CertificateID)
	require.NotNil(t, first.RevokedAt)

	resp = env.do(t, http.MethodPost, path, testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "revoking twice succeeds")
	second := decode[RevokeCertificateResponse](t, resp)
	require.NotNil(t, second.RevokedAt)
	assert.True(t, first.RevokedAt.Equal(*second.RevokedAt))
}

func TestRevokeCertificate_Errors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/admin/revoke-certificate?certificate_id=never-issued", testAdminSecret, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Certificate not found", decode[ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/admin/revoke-certificate", testAdminSecret, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAudit(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)
	resp := env.do(t, http.MethodPost, "/api/admin/revoke-certificate?certificate_id="+cert.CertificateID, testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/admin/audit?certificate_id="+cert.CertificateID, testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[ListAuditResponse](t, resp)
	require.Len(t, body.Entries, 2)

	actions := []string{body.Entries[0].Action, body.Entries[1].Action}
	assert.ElementsMatch(t, []string{"issue_certificate", "revoke_certificate"}, actions)
	for _, e := range body.Entries {
		assert.Equal(t, "admin", e.Actor)
		assert.Equal(t, "certificate/"+cert.CertificateID, e.Target)
	}
}

func TestListAudit_ActionFilter(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)
	env.issue(t, "Bob", "bob@x.com", 30)
	resp := env.do(t, http.MethodPost, "/api/admin/revoke-certificate?certificate_id="+cert.CertificateID, testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/admin/audit?action=revoke_certificate", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[ListAuditResponse](t, resp)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "certificate/"+cert.CertificateID, body.Entries[0].Target)

	resp = env.do(t, http.MethodGet, "/api/admin/audit?action=delete_everything", testAdminSecret, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Certificate: cert.Certificate})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[LoginResponse](t, resp)
	assert.Equal(t, "Login successful", body.Message)
	require.NotNil(t, body.User)
	assert.Equal(t, "Ann", body.User.ClientName)
	assert.Equal(t, cert.CertificateID, body.User.CertificateID)
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t)
	revoked := env.issue(t, "R", "r@x.com", 30)
	_, err := env.issuer.Revoke(t.Context(), revoked.CertificateID)
	require.NoError(t, err)

	tests := []struct {
		name string
		body any
	}{
		{"empty body", ""},
		{"empty certificate", LoginRequest{}},
		{"garbage", LoginRequest{Certificate: "garbage"}},
		{"admin secret", LoginRequest{Certificate: testAdminSecret}},
		{"revoked", LoginRequest{Certificate: revoked.Certificate}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			assertUnauthorized(t, resp)
		})
	}
}

func TestLogin_StoreOutage(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)
	env.store.SetError(errors.New("database unavailable"))

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Certificate: cert.Certificate})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)
	cert := env.issue(t, "Ann", "ann@x.com", 30)

	resp := env.do(t, http.MethodGet, "/api/auth/verify", cert.Certificate, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[VerifyResponse](t, resp)
	assert.True(t, body.Valid)
	require.NotNil(t, body.User)
	assert.Equal(t, "ann@x.com", body.User.ClientEmail)

	resp = env.do(t, http.MethodGet, "/api/auth/verify", "", nil)
	assertUnauthorized(t, resp)

	resp = env.do(t, http.MethodGet, "/api/auth/verify", testAdminSecret, nil)
	assertUnauthorized(t, resp)
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, WithProtectedRoutes(func(r chi.Router) {
		r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			writeJSON(w, http.StatusOK, map[string]string{"owner": id.ClientName})
		})
	}))

	cert := env.issue(t, "Ann", "ann@x.com", 30)

	resp := env.do(t, http.MethodGet, "/api/projects", cert.Certificate, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ann", decode[map[string]string](t, resp)["owner"])

	resp = env.do(t, http.MethodGet, "/api/projects", "", nil)
	assertUnauthorized(t, resp)

	_, err := env.issuer.Revoke(t.Context(), cert.CertificateID)
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, "/api/projects", cert.Certificate, nil)
	assertUnauthorized(t, resp)
}

func TestProtectedRoutes_StoreOutage(t *testing.T) {
	env := newTestEnv(t, WithProtectedRoutes(func(r chi.Router) {
		r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}))
	cert := env.issue(t, "Ann", "ann@x.com", 30)
	env.store.SetError(errors.New("database unavailable"))

	resp := env.do(t, http.MethodGet, "/api/projects", cert.Certificate, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPublicKey(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/authority/public-key", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	pub, err := keystore.ParsePublicKeyPEM(data)
	require.NoError(t, err)
	assert.True(t, pub.Equal(env.keys.Public()))
}

func TestJWKS(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	set, err := jwk.Parse(data)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	key, ok := set.LookupKeyID(env.keys.KeyID())
	require.True(t, ok, "JWKS must carry the credential kid")

	var raw any
	require.NoError(t, jwk.Export(key, &raw))
	switch pub := raw.(type) {
	case *rsa.PublicKey:
		assert.True(t, pub.Equal(env.keys.Public()))
	case rsa.PublicKey:
		assert.True(t, pub.Equal(env.keys.Public()))
	default:
		t.Fatalf("exported key is %T, want RSA public key", raw)
	}
}
