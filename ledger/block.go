package ledger

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/bitfsorg/custody-go/authority"
	"github.com/bitfsorg/custody-go/hashing"
)

// TimestampLayout is the text form of Block.Timestamp inside hashed content.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// ZeroHash is the previous hash of the genesis block.
var ZeroHash = strings.Repeat("0", hashing.DigestSize)

// Metadata keys written into every block.
const (
	MetaName      = "name"
	MetaSize      = "size"
	MetaMIMEType  = "mime_type"
	MetaExtension = "extension"
	MetaFileID    = "file_id"
	MetaOperation = "operation"

	// MetaLegacyName is the file name key of records written by older
	// clients. FileName falls back to it.
	MetaLegacyName = "nombre"
)

// Metadata describes the file and operation a block records.
type Metadata map[string]any

// String returns the string value stored at key, or "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// FileName returns the recorded file name, or "" when none was given.
func (m Metadata) FileName() string {
	if name := m.String(MetaName); name != "" {
		return name
	}
	return m.String(MetaLegacyName)
}

// Block is one entry of the custody ledger.
type Block struct {
	Index          uint64    `json:"index"`
	Timestamp      time.Time `json:"timestamp"`
	Data           string    `json:"data"`
	PreviousHash   string    `json:"previous_hash"`
	Metadata       Metadata  `json:"metadata"`
	Proof          string    `json:"proof"`
	Validator      string    `json:"validator"`
	ProofSignature string    `json:"proof_signature"`
	Hash           string    `json:"hash"`
	Signature      string    `json:"signature"`
}

// FormatTimestamp renders t the way it appears in hashed block content.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// hashedContent is the record the block hash is computed over.
func (b *Block) hashedContent() map[string]any {
	return map[string]any{
		"index":           b.Index,
		"timestamp":       FormatTimestamp(b.Timestamp),
		"data":            b.Data,
		"previous_hash":   b.PreviousHash,
		"metadata":        b.Metadata,
		"proof":           b.Proof,
		"validator":       b.Validator,
		"proof_signature": b.ProofSignature,
	}
}

// signedContent is the hashed record plus the hash itself.
func (b *Block) signedContent() map[string]any {
	c := b.hashedContent()
	c["hash"] = b.Hash
	return c
}

// ComputeHash returns the hex SHA-256 of the block's canonical content.
// Hash and Signature are not part of the input.
func ComputeHash(b *Block) (string, error) {
	return hashing.DigestRecord(b.hashedContent())
}

// CanonicalSigned returns the canonical bytes the block signature covers.
func CanonicalSigned(b *Block) ([]byte, error) {
	return hashing.Canonical(b.signedContent())
}

// Verify checks one block on its own: the stored hash matches the content,
// the proof signs the previous hash, the proof signature signs the proof,
// and the block signature covers the canonical content with its hash.
// The validator field must hold pub.
func Verify(b *Block, pub *rsa.PublicKey) error {
	if b == nil || pub == nil {
		return fmt.Errorf("%w: nil block or key", ErrInvalidBlock)
	}
	hash, err := ComputeHash(b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if hash != b.Hash {
		return fmt.Errorf("%w: hash mismatch at index %d", ErrInvalidBlock, b.Index)
	}
	validator, err := authority.ParsePublicKey(b.Validator)
	if err != nil || !validator.Equal(pub) {
		return fmt.Errorf("%w: validator mismatch at index %d", ErrInvalidBlock, b.Index)
	}
	if err := authority.VerifyProof([]byte(b.PreviousHash), b.Proof, pub); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if err := authority.VerifyProof([]byte(b.Proof), b.ProofSignature, pub); err != nil {
		return fmt.Errorf("%w: proof signature: %w", ErrInvalidBlock, err)
	}
	canonical, err := CanonicalSigned(b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if err := authority.VerifyBlock(canonical, b.Signature, pub); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	return nil
}

// Links reports whether next directly follows prev in the chain.
func Links(prev, next *Block) bool {
	return prev != nil && next != nil &&
		next.Index == prev.Index+1 &&
		next.PreviousHash == prev.Hash
}
