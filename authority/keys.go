// Package authority holds the validator identity of the custody ledger:
// RSA key handling, proof and block signatures, and the trusted-key policy
// that decides which caller may append blocks.
package authority

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	pemTypePublicKey    = "PUBLIC KEY"
	pemTypeRSAPublicKey = "RSA PUBLIC KEY"
)

// ParsePrivateKey parses an RSA private key in PKCS#1, PKCS#8 or OpenSSH
// PEM form. Encrypted keys and non-RSA keys are rejected.
func ParsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(privatePEM) == "" {
		return nil, fmt.Errorf("%w: empty private key", ErrKeyFormat)
	}
	raw, err := ssh.ParseRawPrivateKey([]byte(privatePEM))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	var key *rsa.PrivateKey
	switch k := raw.(type) {
	case *rsa.PrivateKey:
		key = k
	default:
		return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrKeyFormat, raw)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return key, nil
}

// EncodePublicKey returns pub as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: public key", ErrNilParam)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der})), nil
}

// DerivePublicKey parses a private key PEM and returns its public half as
// PKIX PEM.
func DerivePublicKey(privatePEM string) (string, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return "", err
	}
	return EncodePublicKey(&key.PublicKey)
}

// ParsePublicKey parses an RSA public key given as PKIX PEM, PKCS#1 PEM or
// an OpenSSH authorized_keys line.
func ParsePublicKey(text string) (*rsa.PublicKey, error) {
	data := bytes.TrimSpace([]byte(text))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty public key", ErrKeyFormat)
	}

	if bytes.HasPrefix(data, []byte("ssh-")) {
		sshKey, _, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
		}
		cpk, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported ssh key type %s", ErrKeyFormat, sshKey.Type())
		}
		pub, ok := cpk.CryptoPublicKey().(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA key, got %s", ErrKeyFormat, sshKey.Type())
		}
		return pub, nil
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}
	return parsePublicDER(block.Type, block.Bytes)
}

func parsePublicDER(pemType string, der []byte) (*rsa.PublicKey, error) {
	switch pemType {
	case pemTypeRSAPublicKey:
		pub, err := x509.ParsePKCS1PublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
		}
		return pub, nil
	case pemTypePublicKey:
		parsed, err := x509.ParsePKIXPublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrKeyFormat, parsed)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrKeyFormat, pemType)
	}
}

// NormalizePublicKey re-encodes any accepted public key form as PKIX PEM.
func NormalizePublicKey(text string) (string, error) {
	pub, err := ParsePublicKey(text)
	if err != nil {
		return "", err
	}
	return EncodePublicKey(pub)
}
