// Package api provides the HTTP surface of certgate.
//
// Router mounts three groups:
//
//   - /admin/* behind the shared-secret admin gate: issue, list, revoke, audit
//   - /auth/login and /auth/verify for clients holding a certificate
//   - protected business routes supplied with WithProtectedRoutes, each
//     behind the client certificate gate
//
// Errors from the auth package are mapped to status codes by mapError.
// Every credential rejection produces the same 401 body.
package api
