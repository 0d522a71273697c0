package authority

import (
	"context"
	"fmt"
	"os"
)

// TrustStore supplies the public key of the one validator allowed to sign
// ledger blocks.
type TrustStore interface {
	// TrustedValidatorPublicKey returns the trusted key as PKIX PEM.
	TrustedValidatorPublicKey(ctx context.Context) (string, error)
}

// FileTrustStore reads the trusted key from an operator-provisioned file.
// The file may hold a PKIX PEM, a PKCS#1 PEM or an authorized_keys line.
type FileTrustStore struct {
	Path string
}

// Compile-time interface check.
var _ TrustStore = (*FileTrustStore)(nil)

// NewFileTrustStore creates a FileTrustStore for path.
func NewFileTrustStore(path string) *FileTrustStore {
	return &FileTrustStore{Path: path}
}

// TrustedValidatorPublicKey reads and normalizes the key file.
func (s *FileTrustStore) TrustedValidatorPublicKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTrustStoreUnavailable, err)
	}
	if s.Path == "" {
		return "", fmt.Errorf("%w: no key file configured", ErrTrustStoreUnavailable)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTrustStoreUnavailable, err)
	}
	key, err := NormalizePublicKey(string(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTrustStoreUnavailable, s.Path, err)
	}
	return key, nil
}

// StaticTrustStore returns a fixed key.
type StaticTrustStore string

// TrustedValidatorPublicKey normalizes and returns the fixed key.
func (s StaticTrustStore) TrustedValidatorPublicKey(context.Context) (string, error) {
	key, err := NormalizePublicKey(string(s))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTrustStoreUnavailable, err)
	}
	return key, nil
}
