package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key")

func TestAccessToken_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tok, err := NewAccessToken(testSecret, 42, AccessClaims{
		Email:       "alice@x.com",
		Role:        "editor",
		Permissions: []string{"articles:read", "articles:publish"},
	}, now, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), tok.Exp)

	claims, err := ParseAccessToken(testSecret, tok.Token, now.Add(time.Minute))
	require.NoError(t, err)

	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, "editor", claims.Role)
	assert.Equal(t, []string{"articles:read", "articles:publish"}, claims.Permissions)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok, err := NewAccessToken(testSecret, 7, AccessClaims{Role: "public"}, now, 15*time.Minute)
	require.NoError(t, err)

	noneSigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret []byte
		raw    string
		at     time.Time
	}{
		{name: "expired", secret: testSecret, raw: tok.Token, at: now.Add(16 * time.Minute)},
		{name: "wrong secret", secret: []byte("other"), raw: tok.Token, at: now},
		{name: "garbage", secret: testSecret, raw: "not.a.jwt", at: now},
		{name: "alg none", secret: testSecret, raw: noneSigned, at: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseAccessToken(tt.secret, tt.raw, tt.at)
			assert.ErrorIs(t, err, ErrInvalidAccessToken)
			assert.Nil(t, claims)
		})
	}
}

func TestNewRefreshToken(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a, err := NewRefreshToken(now, 24*time.Hour)
	require.NoError(t, err)
	b, err := NewRefreshToken(now, 24*time.Hour)
	require.NoError(t, err)

	assert.Len(t, a.Raw, 96)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Equal(t, now.Add(24*time.Hour), a.Exp)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
