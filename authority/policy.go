package authority

import (
	"context"
	"crypto/subtle"
	"encoding/pem"
	"fmt"
)

// Policy decides whether a validator public key may sign ledger blocks.
type Policy interface {
	IsAuthorized(publicKeyPEM string) bool
}

// SingleValidator authorizes exactly one key, loaded once at construction.
type SingleValidator struct {
	trusted    string
	trustedDER []byte
}

// Compile-time interface check.
var _ Policy = (*SingleValidator)(nil)

// NewSingleValidator loads the trusted key from ts.
func NewSingleValidator(ctx context.Context, ts TrustStore) (*SingleValidator, error) {
	if ts == nil {
		return nil, fmt.Errorf("%w: trust store", ErrNilParam)
	}
	key, err := ts.TrustedValidatorPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	der := pemBlock(key)
	if der == nil {
		return nil, fmt.Errorf("%w: trusted key is not PEM", ErrTrustStoreUnavailable)
	}
	return &SingleValidator{trusted: key, trustedDER: der}, nil
}

// TrustedKey returns the trusted key as PKIX PEM.
func (p *SingleValidator) TrustedKey() string { return p.trusted }

// IsAuthorized reports whether publicKeyPEM is the trusted key. Keys are
// compared after normalization, so PEM line wrapping does not matter.
func (p *SingleValidator) IsAuthorized(publicKeyPEM string) bool {
	normalized, err := NormalizePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}
	der := pemBlock(normalized)
	return der != nil && subtle.ConstantTimeCompare(der, p.trustedDER) == 1
}

// pemBlock returns the DER bytes of the first PEM block in s.
func pemBlock(s string) []byte {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil
	}
	return block.Bytes
}
