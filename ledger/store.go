package ledger

import (
	"context"
	"errors"
)

var (
	// ErrEmptyChain indicates the ledger store holds no blocks.
	ErrEmptyChain = errors.New("ledger: chain is empty")

	// ErrBlockNotFound indicates no block matches the lookup.
	ErrBlockNotFound = errors.New("ledger: block not found")

	// ErrDuplicateBlock indicates a block with the same index or hash already exists.
	ErrDuplicateBlock = errors.New("ledger: duplicate block")

	// ErrStoreIO indicates the ledger store failed to read or write.
	ErrStoreIO = errors.New("ledger: store I/O failure")

	// ErrCorruptBlock indicates a stored block could not be decoded.
	ErrCorruptBlock = errors.New("ledger: corrupt stored block")
)

// Store is the append-only block store. Blocks are never updated once
// appended.
type Store interface {
	// LatestHash returns the hash of the most recently appended block, or
	// ErrEmptyChain.
	LatestHash(ctx context.Context) (string, error)

	// MaxIndex returns the greatest stored index; ok is false when empty.
	MaxIndex(ctx context.Context) (index uint64, ok bool, err error)

	// Append durably stores b and returns its store-assigned identifier.
	Append(ctx context.Context, b *Block) (storageID string, err error)

	// BlockByHash returns the block with the given hash.
	BlockByHash(ctx context.Context, hash string) (*Block, error)

	// BlockByIndex returns the block at index.
	BlockByIndex(ctx context.Context, index uint64) (*Block, error)
}
