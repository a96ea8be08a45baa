// Package auth supplies bearer tokens to the backend client.
//
// An empty token means the viewer is not signed in. Token minting belongs to
// the identity provider; this package only carries tokens around, plus the
// HS256 helpers the in-process fake backend uses.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider returns the current bearer token.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

// Token implements Provider.
func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// Func adapts a function to Provider.
type Func func(ctx context.Context) (string, error)

// Token implements Provider.
func (f Func) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Anonymous is a provider for a signed-out viewer.
var Anonymous Provider = Static("")

// JWT carries a raw bearer JWT and stops handing it out once it expires.
//
// The signature is not checked: the client never holds the signing key and
// the backend verifies every request anyway.
type JWT struct {
	raw    string
	claims jwt.RegisteredClaims
	now    func() time.Time
}

// JWTOption configures a JWT provider.
type JWTOption func(*JWT)

// WithJWTClock injects the clock used for expiry checks.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(j *JWT) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJWT parses raw without verifying it.
func NewJWT(raw string, opts ...JWTOption) (*JWT, error) {
	j := &JWT{raw: raw, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &j.claims); err != nil {
		return nil, fmt.Errorf("parse bearer token: %w", err)
	}
	return j, nil
}

// Token returns the raw token, or "" once the exp claim has passed.
func (j *JWT) Token(context.Context) (string, error) {
	if j.Expired() {
		return "", nil
	}
	return j.raw, nil
}

// Expired reports whether the exp claim is at or before now.
func (j *JWT) Expired() bool {
	if j.claims.ExpiresAt == nil {
		return false
	}
	return !j.now().Before(j.claims.ExpiresAt.Time)
}

// Subject returns the sub claim.
func (j *JWT) Subject() string {
	return j.claims.Subject
}

// ErrInvalidToken is returned by Verify for any token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// Issue signs an HS256 token for subject valid for ttl from now.
// A zero ttl issues a token without exp.
func Issue(secret []byte, subject string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks an HS256 token against secret and returns its subject.
func Verify(secret []byte, raw string, now func() time.Time) (string, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
	)
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
