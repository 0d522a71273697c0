package token

import "errors"

var (
	// ErrMissingToken indicates a request without a bearer token.
	ErrMissingToken = errors.New("token: missing bearer token")

	// ErrMalformed indicates a token that cannot be parsed.
	ErrMalformed = errors.New("token: malformed")

	// ErrInvalidSignature indicates a token signed with another secret or method.
	ErrInvalidSignature = errors.New("token: invalid signature")

	// ErrExpired indicates an expired or not-yet-valid token.
	ErrExpired = errors.New("token: expired")

	// ErrMissingKey indicates a valid token that carries no validator key.
	ErrMissingKey = errors.New("token: missing validator key claim")

	// ErrNoSecret indicates a verifier or issuer configured without a secret.
	ErrNoSecret = errors.New("token: secret is empty")
)
