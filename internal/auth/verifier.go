package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenRejected is returned for any token that does not yield an identity.
var ErrTokenRejected = errors.New("token rejected")

// Identity is the stable pair the core binds a session to.
type Identity struct {
	UserID      string
	DisplayName string
}

//go:generate mockgen -source=verifier.go -destination=mocks/mock_verifier.go -package=mocks

// Verifier turns an opaque connection token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims accepts both the chat token shape (userId/username) and OIDC-style
// tokens (sub/given_name/email).
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
	GivenName string `json:"given_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Identity extracts the session identity from the claims.
func (c *Claims) Identity() (Identity, error) {
	id := Identity{UserID: c.UserID, DisplayName: c.Username}
	if id.UserID == "" {
		id.UserID = c.Subject
	}
	if id.DisplayName == "" {
		id.DisplayName = c.GivenName
	}
	if id.DisplayName == "" {
		id.DisplayName = c.Email
	}
	if id.UserID == "" || id.DisplayName == "" {
		return Identity{}, fmt.Errorf("%w: missing user id or display name", ErrTokenRejected)
	}
	return id, nil
}

// HMACVerifier validates HS256/384/512 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret []byte, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: secret, issuer: issuer}
}

func (v *HMACVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}

	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: token is empty", ErrTokenRejected)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrTokenRejected)
	}

	return claims.Identity()
}
