// Package gateway orchestrates the certgate server components.
//
// # Overview
//
// The gateway owns the authority key pair, the revocation store, the issuer
// and validator built on them, and the HTTP server that exposes the API.
// Construction order matters: keys are loaded first so that corrupt key
// material stops startup before any port is bound.
//
// # Routes
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings the revocation store)
//   - GET /.well-known/jwks.json - Authority public key as a JWK set
//   - /api/... - Admin, login and client-gated routes (see package api)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Run listens on server.http_addr. When the context is canceled the server
// is shut down with a 5 second grace period and the store is closed.
//
// # Environment
//
//   - CERTGATE_DB_PATH overrides database.path
package gateway
