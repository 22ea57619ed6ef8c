// ABOUTME: Tests for the Gateway orchestrator
// ABOUTME: Covers construction, health and readiness, routing and graceful shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/certgate/internal/api"
	"github.com/2389/certgate/internal/config"
	"github.com/2389/certgate/internal/keystore"
	"github.com/2389/certgate/internal/store"
)

const testAdminSecret = "gateway-test-admin-secret-012345"

// testConfig creates a minimal valid config rooted in a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "certgate.db")},
		Keys:     config.KeysConfig{Dir: filepath.Join(dir, "keys")},
		Auth:     config.AuthConfig{AdminSecret: testAdminSecret},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, opts ...api.Option) *Gateway {
	t.Helper()
	gw, err := New(testConfig(t), testLogger(), opts...)
	require.NoError(t, err)
	s := gw.store
	t.Cleanup(func() { _ = s.Close() })
	return gw
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.Same(t, cfg, gw.config)
	assert.NotNil(t, gw.store)
	assert.NotNil(t, gw.issuer)
	assert.NotNil(t, gw.validator)
	assert.True(t, strings.HasPrefix(gw.KeyID(), "SHA256:"))

	_, err = os.Stat(filepath.Join(cfg.Keys.Dir, keystore.PrivateKeyFile))
	assert.NoError(t, err, "key pair should be persisted on first start")
}

func TestGatewayNew_BoltDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "bbolt"
	cfg.Database.Path = filepath.Join(t.TempDir(), "certgate.bolt")

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.IsType(t, &store.BoltStore{}, gw.store)
}

func TestGatewayNew_CorruptKeysRefuseToStart(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Keys.Dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Keys.Dir, keystore.PrivateKeyFile), []byte("junk"), 0600))

	_, err := New(cfg, testLogger())
	assert.ErrorIs(t, err, keystore.ErrKeyMaterial)
}

func TestGatewayNew_DBPathOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "override.db")
	t.Setenv("CERTGATE_DB_PATH", override)

	newTestGateway(t)

	_, err := os.Stat(override)
	assert.NoError(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), gw.KeyID())
}

func TestReadyEndpoint_StoreDown(t *testing.T) {
	gw := newTestGateway(t)
	down := store.NewMockStore()
	down.SetError(errors.New("disk gone"))
	gw.store = down

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutes_APIAndJWKS(t *testing.T) {
	gw := newTestGateway(t, api.WithProtectedRoutes(func(r chi.Router) {
		r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}))
	handler := gw.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, gw.KeyID(), jwks.Keys[0].Kid)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Issue through the admin route and reach the business route with it.
	req := httptest.NewRequest(http.MethodPost, "/api/admin/generate-certificate",
		strings.NewReader(`{"client_name":"Ann","client_email":"ann@x.com","expires_days":30}`))
	req.Header.Set("Authorization", "Bearer "+testAdminSecret)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct {
		Certificate string `json:"certificate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	req = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Certificate)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayServeAndShutdown(t *testing.T) {
	gw, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Serve(ctx, ln)
	}()

	// Wait until the server answers.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shutdown in time")
	}
}

func TestGatewayRun_ListenError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = occupied.Addr().String()

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	err = gw.Run(context.Background())
	assert.Error(t, err)
}
