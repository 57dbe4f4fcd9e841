// Package auth verifies reviewer bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is written to and required in every token.
const Issuer = "outfit-review"

// ErrUnauthorized is returned for a missing or invalid token.
var ErrUnauthorized = errors.New("unauthorized")

type contextKey struct{}

// Verifier checks HS256 tokens signed with a shared secret. The token
// subject identifies the reviewer.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a token for subject valid for ttl.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject required")
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses tokenStr and returns its subject.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// VerifyRequest checks the Authorization bearer token of r.
func (v *Verifier) VerifyRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("%w: bearer token required", ErrUnauthorized)
	}
	return v.Verify(strings.TrimPrefix(header, "Bearer "))
}

// WithReviewer stores the reviewer id in ctx.
func WithReviewer(ctx context.Context, reviewer string) context.Context {
	return context.WithValue(ctx, contextKey{}, reviewer)
}

// ReviewerFromContext returns the reviewer set by WithReviewer, or "".
func ReviewerFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKey{}).(string)
	return s
}
