// Package secrets generates the shared credentials wired between the
// provisioned services. Every directional trust relationship gets exactly
// one value, generated once per run and copied verbatim into both sides'
// configuration artifacts — never regenerated independently per side.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// 32 random bytes per secret; encoding determines the consumer-facing
	// shape (hex for passwords, URL-safe base64 for tokens in URLs).
	secretBytes = 32

	accessKeyBytes = 12
)

// Bundle holds every secret of a provisioning run, keyed by trust pair.
type Bundle struct {
	// DBPassword authenticates manager ↔ statedb.
	DBPassword string
	// CachePassword authenticates manager ↔ cache.
	CachePassword string
	// ClusterToken authenticates agent → manager RPC.
	ClusterToken string
	// APIAccessKey and APISecretKey are the client-facing keypair exposed
	// through the generated environment script.
	APIAccessKey string
	APISecretKey string
}

// Generate produces a fresh Bundle from the system entropy source.
func Generate() (Bundle, error) {
	db, err := hexSecret()
	if err != nil {
		return Bundle{}, err
	}
	cache, err := hexSecret()
	if err != nil {
		return Bundle{}, err
	}
	token, err := urlSecret(secretBytes)
	if err != nil {
		return Bundle{}, err
	}
	access, err := urlSecret(accessKeyBytes)
	if err != nil {
		return Bundle{}, err
	}
	secret, err := hexSecret()
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{
		DBPassword:    db,
		CachePassword: cache,
		ClusterToken:  token,
		APIAccessKey:  "GU" + access,
		APISecretKey:  secret,
	}, nil
}

func hexSecret() (string, error) {
	b, err := randomBytes(secretBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func urlSecret(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return b, nil
}
