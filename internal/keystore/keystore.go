// ABOUTME: Loads or generates the authority RSA key pair used to sign credentials
// ABOUTME: Persists PKCS8/SPKI PEM files and applies the configured policy to damaged files

package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
)

// File names inside the key directory.
const (
	PrivateKeyFile = "authority_private.pem"
	PublicKeyFile  = "authority_public.pem"
)

// MinBits is the smallest RSA modulus accepted for the authority key.
const MinBits = 2048

// ErrKeyMaterial is returned when the key pair cannot be loaded or persisted.
var ErrKeyMaterial = errors.New("authority key material unusable")

// ErrUnknownKey is returned by PublicKey for a key id this pair does not hold.
var ErrUnknownKey = errors.New("unknown key id")

// CorruptPolicy decides what happens to key files that exist but cannot be used.
type CorruptPolicy string

const (
	OnCorruptFail       CorruptPolicy = "fail"
	OnCorruptRegenerate CorruptPolicy = "regenerate"
)

// Options configures LoadOrCreate.
type Options struct {
	Dir       string
	Bits      int           // default and minimum 2048
	OnCorrupt CorruptPolicy // default OnCorruptFail
	Logger    *slog.Logger
}

// KeyPair is the authority's signing key and its derived public material.
// It is read-only after LoadOrCreate returns and safe to share.
type KeyPair struct {
	private   *rsa.PrivateKey
	kid       string
	publicPEM []byte
}

// PrivateKey returns the signing key.
func (kp *KeyPair) PrivateKey() *rsa.PrivateKey { return kp.private }

// Public returns the verification key.
func (kp *KeyPair) Public() *rsa.PublicKey { return &kp.private.PublicKey }

// KeyID returns the SHA256 fingerprint identifying this pair.
func (kp *KeyPair) KeyID() string { return kp.kid }

// PublicPEM returns the SPKI PEM encoding of the verification key.
func (kp *KeyPair) PublicPEM() []byte {
	out := make([]byte, len(kp.publicPEM))
	copy(out, kp.publicPEM)
	return out
}

// PublicKey resolves a key id to a verification key.
func (kp *KeyPair) PublicKey(kid string) (*rsa.PublicKey, error) {
	if kid != kp.kid {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	return kp.Public(), nil
}

// LoadOrCreate returns the key pair stored in opts.Dir, generating one if the
// directory holds no key files.
func LoadOrCreate(opts Options) (*KeyPair, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: key directory not set", ErrKeyMaterial)
	}
	if opts.Bits == 0 {
		opts.Bits = MinBits
	}
	if opts.Bits < MinBits {
		return nil, fmt.Errorf("%w: key size %d below minimum %d", ErrKeyMaterial, opts.Bits, MinBits)
	}
	if opts.OnCorrupt == "" {
		opts.OnCorrupt = OnCorruptFail
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "keystore")

	privPath := filepath.Join(opts.Dir, PrivateKeyFile)
	pubPath := filepath.Join(opts.Dir, PublicKeyFile)

	privExists, err := exists(privPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	pubExists, err := exists(pubPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}

	if !privExists && !pubExists {
		kp, err := generate(opts.Dir, opts.Bits)
		if err != nil {
			return nil, err
		}
		logger.Info("generated authority key pair", "dir", opts.Dir, "kid", kp.kid)
		return kp, nil
	}

	kp, loadErr := load(privPath, pubPath, pubExists, logger)
	if loadErr == nil {
		return kp, nil
	}

	if opts.OnCorrupt != OnCorruptRegenerate {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, loadErr)
	}

	logger.Warn("authority key material unusable, regenerating; all previously issued credentials are now invalid",
		"dir", opts.Dir, "error", loadErr)
	suffix := fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	for _, p := range []string{privPath, pubPath} {
		if err := os.Rename(p, p+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: moving aside %s: %v", ErrKeyMaterial, p, err)
		}
	}

	kp, err = generate(opts.Dir, opts.Bits)
	if err != nil {
		return nil, err
	}
	logger.Info("generated authority key pair", "dir", opts.Dir, "kid", kp.kid)
	return kp, nil
}

// load reads an existing pair. A missing public file is rewritten from the
// private key; every other problem is returned to the caller.
func load(privPath, pubPath string, pubExists bool, logger *slog.Logger) (*KeyPair, error) {
	privBytes, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	priv, err := parsePrivateKey(privBytes)
	if err != nil {
		return nil, err
	}

	kp, err := newKeyPair(priv)
	if err != nil {
		return nil, err
	}

	if !pubExists {
		if err := os.WriteFile(pubPath, kp.publicPEM, 0644); err != nil {
			return nil, fmt.Errorf("rewriting public key: %w", err)
		}
		logger.Warn("public key file missing, rewrote it from the private key", "path", pubPath)
		return kp, nil
	}

	pubBytes, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	pub, err := parsePublicKey(pubBytes)
	if err != nil {
		return nil, err
	}
	if !pub.Equal(kp.Public()) {
		return nil, errors.New("public key does not match private key")
	}

	logger.Info("loaded authority key pair", "dir", filepath.Dir(privPath), "kid", kp.kid)
	return kp, nil
}

// generate creates a fresh pair and persists it. A pair that cannot be
// written is an error; the authority never runs on an unsaved key.
func generate(dir string, bits int) (*KeyPair, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating key directory: %v", ErrKeyMaterial, err)
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generating RSA key: %v", ErrKeyMaterial, err)
	}

	kp, err := newKeyPair(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling private key: %v", ErrKeyMaterial, err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if err := os.WriteFile(filepath.Join(dir, PrivateKeyFile), privPEM, 0600); err != nil {
		return nil, fmt.Errorf("%w: writing private key: %v", ErrKeyMaterial, err)
	}
	if err := os.WriteFile(filepath.Join(dir, PublicKeyFile), kp.publicPEM, 0644); err != nil {
		return nil, fmt.Errorf("%w: writing public key: %v", ErrKeyMaterial, err)
	}
	return kp, nil
}

func newKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	kid, err := Fingerprint(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		private:   priv,
		kid:       kid,
		publicPEM: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}),
	}, nil
}

// Fingerprint computes the key id for an RSA public key in ssh-keygen's
// "SHA256:<base64>" form.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("converting public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshPub), nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key file is not PEM")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("private key PEM type %q, want PRIVATE KEY", block.Type)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", key)
	}
	if rsaKey.N.BitLen() < MinBits {
		return nil, fmt.Errorf("private key is %d bits, minimum %d", rsaKey.N.BitLen(), MinBits)
	}
	return rsaKey, nil
}

// ParsePublicKeyPEM decodes an SPKI "PUBLIC KEY" PEM block holding an RSA key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	return parsePublicKey(data)
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("public key file is not PEM")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("public key PEM type %q, want PUBLIC KEY", block.Type)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", key)
	}
	return rsaKey, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
