// Package store provides persistent storage for certgate.
//
// # Architecture
//
// The package is interface-driven:
//
//   - CertificateStore: issuance records and one-way revocation. This is the
//     revocation store consulted on every credential validation.
//   - AuditStore: append-only log of administrative actions.
//   - Store: both of the above plus Ping and Close.
//
// Implementations:
//
//   - SQLiteStore: modernc.org/sqlite, the default backend.
//   - BoltStore: go.etcd.io/bbolt, a single-file alternative.
//   - MockStore: in-memory, for tests; SetError simulates an outage.
//
// Select a backend with Open(driver, path).
//
// # Revocation Semantics
//
// A record is created active. RevokeCertificate flips it to inactive and
// stamps RevokedAt exactly once; revoking again returns the unchanged record.
// ErrNotFound is returned only for IDs that were never recorded. Records are
// never deleted and there is no un-revoke.
//
// Both durable backends commit each write before returning, so a revocation
// is visible to the very next GetCertificate from any goroutine.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;   (set per connection through the DSN)
//
// Timestamps are stored as fixed-width RFC3339 UTC text so that ORDER BY
// sorts chronologically.
//
// # Error Handling
//
//   - ErrNotFound: requested certificate does not exist
//   - ErrDuplicateCertificate: certificate ID already recorded
//
// All methods accept context.Context.
package store
