package auth

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeControl allows pause, resume and quit.
const ScopeControl = "control"

// MinSecretLen is the shortest accepted signing secret.
const MinSecretLen = 32

// defaultTTL applies when IssueToken is given a non-positive ttl.
const defaultTTL = 30 * 24 * time.Hour

// issuer is written to and required in every token.
const issuer = "rx380-logger"

// Claims are the JWT claims of an operator token.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// IssueToken signs a token for operator.
//
// Parameters:
//   - operator: Person or system the token identifies (JWT subject)
//   - secret: Shared signing secret, at least MinSecretLen bytes
//   - ttl: Lifetime; zero or negative means 30 days
//   - scopes: Granted scopes, ScopeControl when empty
//
// Returns:
//   - string: Signed compact JWT
//   - error: ErrNoOperator, ErrSecretTooShort, or a signing failure
func IssueToken(operator, secret string, ttl time.Duration, scopes ...string) (string, error) {
	if strings.TrimSpace(operator) == "" {
		return "", ErrNoOperator
	}
	if len(secret) < MinSecretLen {
		return "", ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeControl}
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scopes: scopes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, expiry and issuer and returns the claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// Authorize parses a Bearer Authorization header value and checks scope.
//
// Returns:
//   - *Claims: The verified claims
//   - error: ErrTokenInvalid or ErrMissingScope
func Authorize(header, secret, scope string) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: bearer token required", ErrTokenInvalid)
	}
	claims, err := ParseToken(strings.TrimSpace(raw), secret)
	if err != nil {
		return nil, err
	}
	if !claims.HasScope(scope) {
		return nil, ErrMissingScope
	}
	return claims, nil
}
