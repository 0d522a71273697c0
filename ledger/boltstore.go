package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.etcd.io/bbolt"
)

var (
	bucketBlocks  = []byte("blocks")   // seq -> block JSON
	bucketByHash  = []byte("by_hash")  // hash -> seq
	bucketByIndex = []byte("by_index") // index -> seq
)

// BoltStore persists the ledger in a bbolt database. Blocks are keyed by
// insertion sequence, which also serves as the storage identifier; bbolt's
// file lock keeps a second process from opening the same ledger.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketByHash, bucketByIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// u64Key encodes n as an 8-byte big-endian key for sorted storage.
func u64Key(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func decodeBlock(data []byte) (*Block, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	// Metadata numbers keep their literal text so the hash recomputes.
	dec.UseNumber()
	var b Block
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
	}
	return &b, nil
}

// view runs fn in a read transaction, honoring ctx cancellation up front
// and classifying bbolt failures as ErrStoreIO.
func (s *BoltStore) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	err := s.db.View(fn)
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return err
}

// LatestHash returns the hash of the block with the greatest sequence.
func (s *BoltStore) LatestHash(ctx context.Context) (string, error) {
	var hash string
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		_, data := tx.Bucket(bucketBlocks).Cursor().Last()
		if data == nil {
			return ErrEmptyChain
		}
		b, err := decodeBlock(data)
		if err != nil {
			return err
		}
		hash = b.Hash
		return nil
	})
	return hash, err
}

// MaxIndex returns the greatest stored block index.
func (s *BoltStore) MaxIndex(ctx context.Context) (uint64, bool, error) {
	var (
		idx uint64
		ok  bool
	)
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(bucketByIndex).Cursor().Last()
		if k == nil {
			return nil
		}
		if len(k) != 8 {
			return fmt.Errorf("%w: malformed index key", ErrCorruptBlock)
		}
		idx, ok = binary.BigEndian.Uint64(k), true
		return nil
	})
	return idx, ok, err
}

// Append stores b in one write transaction and returns its sequence number.
func (s *BoltStore) Append(ctx context.Context, b *Block) (string, error) {
	if b == nil {
		return "", fmt.Errorf("%w: nil block", ErrStoreIO)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("ledger: encode block: %w", err)
	}

	var seq uint64
	err = s.db.Update(func(tx *bbolt.Tx) error {
		byHash := tx.Bucket(bucketByHash)
		byIndex := tx.Bucket(bucketByIndex)
		if byHash.Get([]byte(b.Hash)) != nil {
			return fmt.Errorf("%w: hash %s", ErrDuplicateBlock, b.Hash)
		}
		if byIndex.Get(u64Key(b.Index)) != nil {
			return fmt.Errorf("%w: index %d", ErrDuplicateBlock, b.Index)
		}

		blocks := tx.Bucket(bucketBlocks)
		var err error
		if seq, err = blocks.NextSequence(); err != nil {
			return fmt.Errorf("boltstore: next sequence: %w", err)
		}
		seqKey := u64Key(seq)
		if err := blocks.Put(seqKey, data); err != nil {
			return fmt.Errorf("boltstore: put block: %w", err)
		}
		if err := byHash.Put([]byte(b.Hash), seqKey); err != nil {
			return fmt.Errorf("boltstore: put block by hash: %w", err)
		}
		if err := byIndex.Put(u64Key(b.Index), seqKey); err != nil {
			return fmt.Errorf("boltstore: put block by index: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateBlock) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return strconv.FormatUint(seq, 10), nil
}

func (s *BoltStore) blockAt(tx *bbolt.Tx, seqKey []byte) (*Block, error) {
	if seqKey == nil {
		return nil, ErrBlockNotFound
	}
	data := tx.Bucket(bucketBlocks).Get(seqKey)
	if data == nil {
		return nil, fmt.Errorf("%w: dangling sequence", ErrCorruptBlock)
	}
	return decodeBlock(data)
}

// BlockByHash returns the block with the given hash.
func (s *BoltStore) BlockByHash(ctx context.Context, hash string) (*Block, error) {
	var b *Block
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		var err error
		b, err = s.blockAt(tx, tx.Bucket(bucketByHash).Get([]byte(hash)))
		return err
	})
	return b, err
}

// BlockByIndex returns the block at index.
func (s *BoltStore) BlockByIndex(ctx context.Context, index uint64) (*Block, error) {
	var b *Block
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		var err error
		b, err = s.blockAt(tx, tx.Bucket(bucketByIndex).Get(u64Key(index)))
		return err
	})
	return b, err
}
