package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret-which-is-long-enough")

func TestHMACVerifier_Verify(t *testing.T) {
	v := NewHMACVerifier(secret, "roomchat")

	t.Run("should yield identity for a valid token", func(t *testing.T) {
		req := require.New(t)
		token, err := IssueHMAC(secret, "roomchat", Identity{UserID: "u-1", DisplayName: "alice"}, time.Hour)
		req.NoError(err)

		id, err := v.Verify(context.Background(), token)

		req.NoError(err)
		req.Equal(Identity{UserID: "u-1", DisplayName: "alice"}, id)
	})

	t.Run("should accept a bearer prefix", func(t *testing.T) {
		req := require.New(t)
		token, err := IssueHMAC(secret, "roomchat", Identity{UserID: "u-1", DisplayName: "alice"}, time.Hour)
		req.NoError(err)

		id, err := v.Verify(context.Background(), "Bearer "+token)

		req.NoError(err)
		req.Equal("alice", id.DisplayName)
	})

	t.Run("should reject an empty token", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "")
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		token, err := IssueHMAC([]byte("another-secret"), "roomchat", Identity{UserID: "u-1", DisplayName: "alice"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		token, err := IssueHMAC(secret, "roomchat", Identity{UserID: "u-1", DisplayName: "alice"}, -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject a foreign issuer", func(t *testing.T) {
		token, err := IssueHMAC(secret, "elsewhere", Identity{UserID: "u-1", DisplayName: "alice"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject claims without a display name", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "roomchat"},
		}).SignedString(secret)
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("should reject when the context is already done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := v.Verify(ctx, "anything")
		require.ErrorIs(t, err, ErrTokenRejected)
	})
}

func TestClaims_Identity_FallsBackToOIDCFields(t *testing.T) {
	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "kp_123"},
		GivenName:        "Bob",
	}

	id, err := c.Identity()

	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "kp_123", DisplayName: "Bob"}, id)
}
