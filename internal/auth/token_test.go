package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	tokens := NewTokens("s3cret")
	raw, err := tokens.Issue("user-1", time.Hour)
	require.NoError(t, err)

	sub, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestVerifyRejects(t *testing.T) {
	tokens := NewTokens("s3cret")

	expired := NewTokens("s3cret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("user-1", time.Hour)
	require.NoError(t, err)

	other, err := NewTokens("different").Issue("user-1", time.Hour)
	require.NoError(t, err)

	noIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"expired":      old,
		"wrong secret": other,
		"no issuer":    noIssuer,
		"empty":        "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	_, err := NewTokens("s3cret").Issue("", time.Minute)
	assert.Error(t, err)
}
