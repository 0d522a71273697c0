package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Key prefixes.
const (
	prefixHash = "h/" // h/<block hash> -> CrossReference JSON
	prefixFile = "f/" // f/<file name>  -> file id
)

// LevelIndex persists the integrity index in LevelDB. Every cross
// reference and its name-registry change are committed in one synced batch.
type LevelIndex struct {
	db *leveldb.DB
}

// Compile-time interface check.
var _ Index = (*LevelIndex)(nil)

// OpenLevelIndex opens or creates the LevelDB database at dir.
func OpenLevelIndex(dir string) (*LevelIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrUnavailable, err)
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open leveldb: %w", ErrUnavailable, err)
	}
	return &LevelIndex{db: db}, nil
}

// Close closes the underlying database.
func (l *LevelIndex) Close() error { return l.db.Close() }

func hashKey(blockHash string) []byte { return []byte(prefixHash + blockHash) }
func fileKey(name string) []byte      { return []byte(prefixFile + name) }

// HashExists reports whether blockHash was recorded.
func (l *LevelIndex) HashExists(ctx context.Context, blockHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	ok, err := l.db.Has(hashKey(blockHash), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ok, nil
}

// RecordCrossReference stores ref and its name-registry change atomically.
func (l *LevelIndex) RecordCrossReference(ctx context.Context, ref CrossReference) error {
	if ref.BlockHash == "" {
		return fmt.Errorf("%w: empty block hash", ErrInvalidReference)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("%w: encode cross reference: %w", ErrUnavailable, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(hashKey(ref.BlockHash), data)
	if ref.FileName != "" {
		switch ref.Operation {
		case OpStore:
			batch.Put(fileKey(ref.FileName), []byte(ref.FileID))
		case OpDelete:
			batch.Delete(fileKey(ref.FileName))
		}
	}
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// FileExists reports whether name is registered.
func (l *LevelIndex) FileExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	ok, err := l.db.Has(fileKey(name), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ok, nil
}

// ResolveFileID returns the file id registered under name.
func (l *LevelIndex) ResolveFileID(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	v, err := l.db.Get(fileKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return string(v), nil
}

// CrossReference returns the record for blockHash.
func (l *LevelIndex) CrossReference(ctx context.Context, blockHash string) (*CrossReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	data, err := l.db.Get(hashKey(blockHash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var ref CrossReference
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("%w: decode cross reference: %w", ErrUnavailable, err)
	}
	return &ref, nil
}
