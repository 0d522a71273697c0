// Package index is the integrity index kept beside the custody ledger. It
// records, for every appended block, which file and stored object the block
// covers, and answers whether a block hash was ever recorded.
package index

import (
	"context"
	"time"
)

// Operations recorded in a CrossReference.
const (
	OpStore    = "store"
	OpRetrieve = "retrieve"
	OpDelete   = "delete"
	OpGenesis  = "genesis"
)

// CrossReference links a ledger block to the content it covers.
type CrossReference struct {
	BlockHash     string    `json:"block_hash"`
	ContentDigest string    `json:"content_digest"`
	FileID        string    `json:"file_id"`
	StorageID     string    `json:"storage_id"`
	FileName      string    `json:"file_name"`
	Operation     string    `json:"operation"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Index is the integrity index consulted before every append.
type Index interface {
	// HashExists reports whether a block hash has been recorded.
	HashExists(ctx context.Context, blockHash string) (bool, error)

	// RecordCrossReference stores ref and updates the name registry: a
	// store operation maps FileName to FileID, a delete removes the name.
	RecordCrossReference(ctx context.Context, ref CrossReference) error

	// FileExists reports whether a file name is currently registered.
	FileExists(ctx context.Context, name string) (bool, error)

	// ResolveFileID returns the file id registered under name.
	ResolveFileID(ctx context.Context, name string) (string, error)

	// CrossReference returns the record for a block hash.
	CrossReference(ctx context.Context, blockHash string) (*CrossReference, error)
}
