// Package identity turns bearer tokens issued by the marketplace auth service
// into application principals.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/example/liveclass-scheduler/internal/application"
)

// ErrInvalidToken is returned for malformed, unsigned, expired or subject-less tokens.
var ErrInvalidToken = errors.New("identity: invalid token")

// Verifier checks HS256 tokens and reads the caller id from the sub claim.
type Verifier struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewVerifier builds a Verifier for secret.
func NewVerifier(secret string, now func() time.Time) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("identity: secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret: []byte(secret),
		now:    now,
		// Time claims are checked against the injected clock below.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
	}, nil
}

// Verify returns the principal named by raw.
func (v *Verifier) Verify(_ context.Context, raw string) (application.Principal, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return application.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := v.now()
	if !claims.VerifyExpiresAt(now, true) {
		return application.Principal{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if !claims.VerifyNotBefore(now, false) {
		return application.Principal{}, fmt.Errorf("%w: not yet valid", ErrInvalidToken)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return application.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return application.Principal{UserID: subject}, nil
}

// Issue signs a token for userID valid for ttl. It backs local tooling and tests;
// production tokens come from the auth service.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}
