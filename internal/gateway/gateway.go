// ABOUTME: Gateway orchestrator that wires keys, store, issuer and validator into the HTTP server
// ABOUTME: Manages the listener, health endpoints and graceful shutdown lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/certgate/internal/api"
	"github.com/2389/certgate/internal/auth"
	"github.com/2389/certgate/internal/config"
	"github.com/2389/certgate/internal/keystore"
	"github.com/2389/certgate/internal/store"
)

// Gateway orchestrates the certgate server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	keys       *keystore.KeyPair
	issuer     *auth.Issuer
	validator  *auth.Validator
	api        *api.API
	httpServer *http.Server
	logger     *slog.Logger
}

// InitStore opens the configured revocation store. CERTGATE_DB_PATH overrides
// database.path.
func InitStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CERTGATE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.Open(cfg.Database.Driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// InitKeys loads or creates the authority key pair.
func InitKeys(cfg *config.Config, logger *slog.Logger) (*keystore.KeyPair, error) {
	return keystore.LoadOrCreate(keystore.Options{
		Dir:       cfg.Keys.Dir,
		Bits:      cfg.Keys.Bits,
		OnCorrupt: keystore.CorruptPolicy(cfg.Keys.OnCorrupt),
		Logger:    logger,
	})
}

// NewIssuer builds the issuer from the certificates config section.
func NewIssuer(cfg *config.Config, keys *keystore.KeyPair, s store.Store, logger *slog.Logger) *auth.Issuer {
	return auth.NewIssuer(keys, s, auth.IssuerConfig{
		Authority:           cfg.Certificates.Issuer,
		Permissions:         cfg.Certificates.Permissions,
		DefaultLifetimeDays: cfg.Certificates.DefaultLifetimeDays,
		MaxLifetimeDays:     cfg.Certificates.MaxLifetimeDays,
	}, logger)
}

// New creates a new Gateway instance with the given configuration. Key
// material problems are fatal here so the server never starts, and never
// reports healthy, without a usable signing key.
func New(cfg *config.Config, logger *slog.Logger, opts ...api.Option) (*Gateway, error) {
	keys, err := InitKeys(cfg, logger)
	if err != nil {
		return nil, err
	}

	s, err := InitStore(cfg)
	if err != nil {
		return nil, err
	}

	issuer := NewIssuer(cfg, keys, s, logger)
	validator := auth.NewValidator(keys, s, cfg.Certificates.Issuer, logger)

	gw := &Gateway{
		config:    cfg,
		store:     s,
		keys:      keys,
		issuer:    issuer,
		validator: validator,
		logger:    logger.With("component", "gateway"),
	}

	gw.api = api.New(issuer, validator, s, keys, cfg.Auth.AdminSecret,
		append([]api.Option{api.WithLogger(logger)}, opts...)...)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return gw, nil
}

// routes builds the root router.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(g.requestLogger)
	r.Use(middleware.Recoverer)

	// Health endpoints - no auth required
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Get("/.well-known/jwks.json", g.api.JWKS)
	r.Mount("/api", g.api.Router())

	return r
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// KeyID returns the id of the loaded authority key.
func (g *Gateway) KeyID() string {
	return g.keys.KeyID()
}

// requestLogger logs one line per request at debug level, or warn for 5xx.
func (g *Gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		g.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// startServer starts the HTTP server in a goroutine, returning error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr, "kid", g.keys.KeyID())

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = g.store.Close()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on an existing listener until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports ready only while the revocation store answers; without
// it no credential can be validated.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (kid %s)", g.keys.KeyID())
}
