package ledger

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
)

// MemStore is an in-memory Store for tests and embedding.
type MemStore struct {
	mu      sync.RWMutex
	blocks  []*Block
	byHash  map[string]int
	byIndex map[uint64]int
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byHash:  make(map[string]int),
		byIndex: make(map[uint64]int),
	}
}

func cloneBlock(b *Block) *Block {
	c := *b
	c.Metadata = maps.Clone(b.Metadata)
	return &c
}

// LatestHash returns the hash of the last appended block.
func (m *MemStore) LatestHash(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return "", ErrEmptyChain
	}
	return m.blocks[len(m.blocks)-1].Hash, nil
}

// MaxIndex returns the greatest stored index.
func (m *MemStore) MaxIndex(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return 0, false, nil
	}
	var maxIdx uint64
	for idx := range m.byIndex {
		maxIdx = max(maxIdx, idx)
	}
	return maxIdx, true, nil
}

// Append stores a copy of b.
func (m *MemStore) Append(ctx context.Context, b *Block) (string, error) {
	if b == nil {
		return "", fmt.Errorf("%w: nil block", ErrStoreIO)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byIndex[b.Index]; ok {
		return "", fmt.Errorf("%w: index %d", ErrDuplicateBlock, b.Index)
	}
	if _, ok := m.byHash[b.Hash]; ok {
		return "", fmt.Errorf("%w: hash %s", ErrDuplicateBlock, b.Hash)
	}
	m.blocks = append(m.blocks, cloneBlock(b))
	pos := len(m.blocks) - 1
	m.byHash[b.Hash] = pos
	m.byIndex[b.Index] = pos
	return "mem-" + strconv.Itoa(pos+1), nil
}

// BlockByHash returns a copy of the block with hash.
func (m *MemStore) BlockByHash(_ context.Context, hash string) (*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.byHash[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return cloneBlock(m.blocks[pos]), nil
}

// BlockByIndex returns a copy of the block at index.
func (m *MemStore) BlockByIndex(_ context.Context, index uint64) (*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.byIndex[index]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return cloneBlock(m.blocks[pos]), nil
}

// Len returns the number of stored blocks.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
