// Package auth issues, validates and gates on certgate client credentials.
//
// # Credentials
//
// A credential is an RS256 JWT signed by the authority key. The header
// carries the key id (kid); the payload carries the certificate identity:
//
//	certificate_id, client_name, client_email,
//	issued_at, expires_at   (RFC3339 UTC)
//	issuer                  (authority label)
//	permissions             (fixed capability set)
//
// plus the registered claims jti, sub, iss, iat and exp mirroring them.
//
// # Validation
//
// Validator.Validate runs three checks and stops at the first failure:
//
//  1. Signature: the token must verify with RS256 under the key resolved
//     from kid, and name this authority as issuer. ErrMalformedCredential.
//  2. Expiry: expires_at must not be in the past. ErrExpiredCredential.
//  3. Revocation: the certificate must be recorded and active.
//     ErrUnknownCredential or ErrRevokedCredential.
//
// The store lookup is what lets a credential be withdrawn before it expires.
// If the store cannot answer, Validate returns ErrStoreUnavailable; that is
// an outage, not a rejection, and IsRejection reports false for it.
//
// # Gates
//
//	ClientAuthMiddleware(validator, logger)   // business endpoints
//	AdminAuthMiddleware(secret, logger)       // issuance and revocation
//
// Both answer every rejection with the same 401 body and a
// WWW-Authenticate: Bearer header. The reason is logged, never returned.
// The two gates are disjoint: a client credential is not the admin secret,
// and the admin secret is not a signed credential.
package auth
