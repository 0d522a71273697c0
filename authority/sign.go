package authority

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// pssOptions signs with the largest salt the key allows and verifies
// whatever salt length the signer chose.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// SignProof produces the hex RSA-PSS (SHA-256, MGF1-SHA-256) signature over
// payload. PSS is randomized, so two calls never return the same proof.
func SignProof(payload []byte, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: private key", ErrNilParam)
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("%w: proof: %w", ErrSigning, err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyProof checks a hex PSS signature produced by SignProof.
func VerifyProof(payload []byte, proofHex string, pub *rsa.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("%w: public key", ErrNilParam)
	}
	sig, err := hex.DecodeString(proofHex)
	if err != nil {
		return fmt.Errorf("%w: proof is not hex: %w", ErrBadSignature, err)
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return fmt.Errorf("%w: proof: %w", ErrBadSignature, err)
	}
	return nil
}

// SignBlock produces the hex RSA PKCS#1 v1.5 SHA-256 signature over the
// canonical block bytes.
func SignBlock(canonical []byte, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: private key", ErrNilParam)
	}
	digest := sha256.Sum256(canonical)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: block: %w", ErrSigning, err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyBlock checks a hex PKCS#1 v1.5 signature produced by SignBlock.
func VerifyBlock(canonical []byte, sigHex string, pub *rsa.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("%w: public key", ErrNilParam)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex: %w", ErrBadSignature, err)
	}
	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: block: %w", ErrBadSignature, err)
	}
	return nil
}
