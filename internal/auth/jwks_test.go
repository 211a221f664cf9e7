package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	jwks := JWKS{Keys: []JWK{{
		Kid: kid,
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(jwks)
	}))
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKSServer(t, key, "key-1")
	defer server.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v, err := NewJWKSVerifier(context.Background(), server.URL, log)
	require.NoError(t, err)

	claims := func(issuer string) *Claims {
		return &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "kp_42",
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			GivenName: "carol",
		}
	}

	t.Run("should accept a token signed by a published key", func(t *testing.T) {
		id, err := v.Verify(context.Background(), signRS256(t, key, "key-1", claims(server.URL)))

		require.NoError(t, err)
		require.Equal(t, Identity{UserID: "kp_42", DisplayName: "carol"}, id)
	})

	t.Run("should reject an unknown kid", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signRS256(t, key, "key-2", claims(server.URL)))
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject a foreign issuer", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signRS256(t, key, "key-1", claims("https://evil.example")))
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject an HMAC token", func(t *testing.T) {
		token, err := IssueHMAC(secret, server.URL, Identity{UserID: "u", DisplayName: "u"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
	})
}

func TestNewJWKSVerifier_FailsWhenIssuerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewJWKSVerifier(context.Background(), server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestJWKToPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	valid := JWK{
		Kid: "k1",
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}

	pub, err := jwkToPublicKey(valid)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(pub))

	enc := valid
	enc.Use = "enc"
	_, err = jwkToPublicKey(enc)
	require.Error(t, err)

	noExponent := valid
	noExponent.E = ""
	_, err = jwkToPublicKey(noExponent)
	require.Error(t, err)

	garbled := valid
	garbled.N = "***"
	_, err = jwkToPublicKey(garbled)
	require.Error(t, err)
}
