package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks the per-session security token carried by an
// inbound request against the expected value for its action class.
type TokenVerifier interface {
	Verify(ctx context.Context, token, action string) error
}

// TokenScope groups actions into one token class. All tabular listing
// actions share a scope, so one issued token covers every grid on a
// page.
const TokenScope = "datatable"

// HS256Verifier issues and verifies short-lived HS256 tokens bound to
// an action scope.
type HS256Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewHS256Verifier creates a verifier from a shared secret.
func NewHS256Verifier(secret string, ttl time.Duration) (*HS256Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &HS256Verifier{secret: []byte(secret), ttl: ttl}, nil
}

// Issue creates a token for the scope, typically rendered into the
// page that hosts the grid.
func (v *HS256Verifier) Issue(scope string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(v.ttl).Unix(),
	})
	return token.SignedString(v.secret)
}

// Verify implements TokenVerifier. The token must be a valid HS256
// signature carrying the scope claim expected for the action class.
func (v *HS256Verifier) Verify(_ context.Context, tokenString, _ string) error {
	if tokenString == "" {
		return fmt.Errorf("missing security token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("unexpected token claims")
	}
	if scope, _ := claims["scope"].(string); scope != TokenScope {
		return fmt.Errorf("token scope %q does not match %q", scope, TokenScope)
	}
	return nil
}
