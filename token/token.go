// Package token verifies the bearer tokens presented to the custody
// service. A token is an HS256 JWT whose claims carry the caller's
// validator private key.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload.
type Claims struct {
	// ValidatorKey is the caller's RSA private key in PEM form.
	ValidatorKey string `json:"validator_key"`

	jwt.RegisteredClaims
}

// Verifier checks a raw token and returns its claims.
type Verifier interface {
	Verify(raw string) (*Claims, error)
}

// HMACVerifier verifies HS256 tokens with a shared secret.
type HMACVerifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// Compile-time interface check.
var _ Verifier = (*HMACVerifier)(nil)

// NewHMACVerifier creates a verifier for secret. leeway tolerates clock
// skew on exp and nbf.
func NewHMACVerifier(secret []byte, leeway time.Duration) (*HMACVerifier, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &HMACVerifier{secret: secret, leeway: leeway, now: time.Now}, nil
}

// Verify parses raw, checks signature and time claims, and requires a
// validator key claim.
func (v *HMACVerifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if strings.TrimSpace(claims.ValidatorKey) == "" {
		return nil, ErrMissingKey
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

// Issue signs claims for validatorKey with secret. A zero ttl issues a
// token without expiry.
func Issue(secret []byte, validatorKey, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		ValidatorKey: validatorKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ExtractBearer returns the token from an Authorization header value.
func ExtractBearer(header string) (string, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(raw), nil
}
