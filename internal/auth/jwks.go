package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

const jwksPath = "/.well-known/jwks.json"

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// JWKSVerifier validates RS256 tokens against the signing keys published by
// an OIDC issuer at <issuer>/.well-known/jwks.json.
type JWKSVerifier struct {
	issuer string
	client *http.Client
	log    *slog.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewJWKSVerifier fetches the issuer's key set once before returning.
func NewJWKSVerifier(ctx context.Context, issuerURL string, log *slog.Logger) (*JWKSVerifier, error) {
	v := &JWKSVerifier{
		issuer: strings.TrimSuffix(issuerURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		keys:   make(map[string]*rsa.PublicKey),
	}
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// RefreshEvery re-fetches the key set until ctx is done.
func (v *JWKSVerifier) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.Refresh(ctx); err != nil {
				v.log.Error("[AUTH] JWKS refresh failed, keeping previous keys", "error", err)
				continue
			}
			v.log.Debug("[AUTH] JWKS refreshed")
		}
	}
}

// Refresh replaces the cached keys with the issuer's current key set.
func (v *JWKSVerifier) Refresh(ctx context.Context) error {
	set, err := v.fetch(ctx)
	if err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		key, err := jwkToPublicKey(jwk)
		if err != nil {
			v.log.Warn("[AUTH] Skipping malformed JWK", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.mu.Unlock()

	v.log.Debug("[AUTH] JWKS loaded", "keys", len(keys))
	return nil
}

func (v *JWKSVerifier) fetch(ctx context.Context) (JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.issuer+jwksPath, http.NoBody)
	if err != nil {
		return JWKS{}, fmt.Errorf("jwks request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return JWKS{}, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JWKS{}, fmt.Errorf("jwks endpoint %s returned %s", req.URL, resp.Status)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return JWKS{}, fmt.Errorf("jwks decode: %w", err)
	}
	return set, nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}

	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: token is empty", ErrTokenRejected)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid not found in token header")
		}
		return v.publicKey(kid)
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}), jwt.WithIssuer(v.issuer))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrTokenRejected)
	}

	return claims.Identity()
}

func (v *JWKSVerifier) publicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

// jwkToPublicKey decodes the base64url modulus and exponent of an RSA key.
func jwkToPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	if jwk.Use != "" && jwk.Use != "sig" {
		return nil, fmt.Errorf("key use %q is not sig", jwk.Use)
	}

	n, err := decodeBigInt(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := decodeBigInt(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > math.MaxInt32 {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func decodeBigInt(field string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(field, "="))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty value")
	}
	return new(big.Int).SetBytes(raw), nil
}
