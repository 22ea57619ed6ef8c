// ABOUTME: JSON Web Key Set publication of the authority verification key
// ABOUTME: Built with lestrrat-go/jwx so relying services can verify credentials offline

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// publicJWKS builds a key set holding the authority verification key, tagged
// with the same kid the credentials carry.
func publicJWKS(keys PublicKeys) (jwk.Set, error) {
	key, err := jwk.Import(keys.Public())
	if err != nil {
		return nil, fmt.Errorf("importing public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, keys.KeyID()); err != nil {
		return nil, fmt.Errorf("setting kid: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		return nil, fmt.Errorf("setting alg: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("setting use: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("adding key: %w", err)
	}
	return set, nil
}

// JWKS handles GET /.well-known/jwks.json.
func (a *API) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := publicJWKS(a.keys)
	if err != nil {
		a.logger.Error("building JWKS", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	data, err := json.Marshal(set)
	if err != nil {
		a.logger.Error("encoding JWKS", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
