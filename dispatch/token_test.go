package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHS256Verifier(t *testing.T) {
	_, err := NewHS256Verifier("", time.Hour)
	assert.Error(t, err, "empty secret must be rejected")

	v, err := NewHS256Verifier("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, v.ttl, "non-positive ttl uses the default")
}

func TestHS256Verifier_IssueAndVerify(t *testing.T) {
	v, err := NewHS256Verifier("secret", time.Hour)
	require.NoError(t, err)

	token, err := v.Issue(TokenScope)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, v.Verify(context.Background(), token, "customers"))
}

func TestHS256Verifier_VerifyRejections(t *testing.T) {
	v, err := NewHS256Verifier("secret", time.Hour)
	require.NoError(t, err)

	sign := func(secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	now := time.Now()
	valid := jwt.MapClaims{
		"scope": TokenScope,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-token"},
		{
			name:  "wrong secret",
			token: sign("other-secret", jwt.SigningMethodHS256, valid),
		},
		{
			name: "wrong scope",
			token: sign("secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"scope": "uploads",
				"iat":   now.Unix(),
				"exp":   now.Add(time.Hour).Unix(),
			}),
		},
		{
			name: "expired",
			token: sign("secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"scope": TokenScope,
				"iat":   now.Add(-2 * time.Hour).Unix(),
				"exp":   now.Add(-time.Hour).Unix(),
			}),
		},
		{
			name:  "wrong signing method",
			token: sign("secret", jwt.SigningMethodHS512, valid),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, v.Verify(context.Background(), tt.token, "customers"))
		})
	}
}
