// Package keystore owns the authority's RSA signing key pair.
//
// # Files
//
// The pair lives in a single directory:
//
//	authority_private.pem   PKCS#8 "PRIVATE KEY", mode 0600
//	authority_public.pem    SPKI "PUBLIC KEY", mode 0644
//
// LoadOrCreate generates and persists a pair when neither file exists and
// loads the existing pair otherwise, so restarts keep every outstanding
// credential verifiable.
//
// # Damaged Key Material
//
// A file that exists but cannot be used (bad PEM, wrong key type, a public
// key that does not match the private key, a public file without its private
// partner) is handled according to Options.OnCorrupt:
//
//   - OnCorruptFail: LoadOrCreate returns ErrKeyMaterial and the server does
//     not start.
//   - OnCorruptRegenerate: the files are renamed with a ".corrupt-<unix>"
//     suffix and a fresh pair is generated. Every credential signed by the
//     old key stops validating.
//
// # Key ID
//
// Each pair has a key id: the SHA256 fingerprint of the public key as
// printed by ssh-keygen -lf. Credentials carry it in the "kid" header and
// KeyPair.PublicKey resolves it back to the verification key.
package keystore
