// Package hashing produces the SHA-256 digests used by the custody ledger:
// digests of canonical JSON records and of streamed file content.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ChunkSize is the read size used when digesting a stream.
const ChunkSize = 4096

// DigestSize is the length of a hex digest string.
const DigestSize = sha256.Size * 2

// DigestRecord returns the hex SHA-256 of the canonical JSON form of v.
func DigestRecord(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(data), nil
}

// DigestBytes returns the hex SHA-256 of data.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestStream reads r to EOF in ChunkSize pieces and returns the hex
// SHA-256 of everything read.
func DigestStream(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil reader", ErrInvalidInput)
	}

	h := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDigest reports whether s looks like a lowercase or uppercase hex SHA-256.
func IsDigest(s string) bool {
	if len(s) != DigestSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
