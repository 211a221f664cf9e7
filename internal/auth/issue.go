package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueHMAC signs an HS256 token for id. It exists for local tooling and
// tests; production tokens come from the credential service.
func IssueHMAC(secret []byte, issuer string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   id.UserID,
		Username: id.DisplayName,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
