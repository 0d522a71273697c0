package index

import (
	"context"
	"fmt"
	"sync"
)

// MemIndex is an in-memory Index for tests and single-process embedding.
type MemIndex struct {
	mu    sync.RWMutex
	refs  map[string]CrossReference
	files map[string]string
}

// Compile-time interface check.
var _ Index = (*MemIndex)(nil)

// NewMemIndex creates an empty MemIndex.
func NewMemIndex() *MemIndex {
	return &MemIndex{
		refs:  make(map[string]CrossReference),
		files: make(map[string]string),
	}
}

// HashExists reports whether blockHash was recorded.
func (m *MemIndex) HashExists(_ context.Context, blockHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.refs[blockHash]
	return ok, nil
}

// RecordCrossReference stores ref.
func (m *MemIndex) RecordCrossReference(_ context.Context, ref CrossReference) error {
	if ref.BlockHash == "" {
		return fmt.Errorf("%w: empty block hash", ErrInvalidReference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref.BlockHash] = ref
	if ref.FileName == "" {
		return nil
	}
	switch ref.Operation {
	case OpStore:
		m.files[ref.FileName] = ref.FileID
	case OpDelete:
		delete(m.files, ref.FileName)
	}
	return nil
}

// FileExists reports whether name is registered.
func (m *MemIndex) FileExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok, nil
}

// ResolveFileID returns the file id registered under name.
func (m *MemIndex) ResolveFileID(_ context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.files[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return id, nil
}

// CrossReference returns the record for blockHash.
func (m *MemIndex) CrossReference(_ context.Context, blockHash string) (*CrossReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refs[blockHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &ref, nil
}

// Len returns the number of recorded cross references.
func (m *MemIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}
