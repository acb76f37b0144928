package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHMACVerifierAcceptsValidToken(t *testing.T) {
	v := NewHMACVerifier("s3cret", "pricedesk", "web")
	raw := sign(t, "s3cret", jwt.MapClaims{
		"sub":       "user-123",
		"email":     "ana@acme.test",
		"iss":       "pricedesk",
		"client_id": "web",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "ana@acme.test", claims.Email)
}

func TestHMACVerifierRejects(t *testing.T) {
	v := NewHMACVerifier("s3cret", "", "")
	ctx := context.Background()

	_, err := v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	wrongKey := sign(t, "other", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(ctx, wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := sign(t, "s3cret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()})
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject := sign(t, "s3cret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(ctx, noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAudienceCheck(t *testing.T) {
	v := NewHMACVerifier("s3cret", "", "web")
	raw := sign(t, "s3cret", jwt.MapClaims{"sub": "u", "aud": "mobile", "exp": time.Now().Add(time.Hour).Unix()})
	_, err := v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
