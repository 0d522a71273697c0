package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const metaSuffix = ".json"

// FileStore implements Store using the local filesystem.
// Content is stored at {baseDir}/{id[:2]}/{id} with its Object description
// beside it at {id}.json. The first two characters of the id shard the
// directory.
type FileStore struct {
	baseDir string
	maxSize int64
	mu      sync.RWMutex
	now     func() time.Time
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a new file-based blob store. maxSize limits the
// size of one object; zero means no limit. The directory is created if it
// does not exist.
func NewFileStore(baseDir string, maxSize int64) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{
		baseDir: baseDir,
		maxSize: maxSize,
		now:     time.Now,
	}, nil
}

// ObjectPath converts an object id to its filesystem path.
func ObjectPath(baseDir, id string) string {
	return filepath.Join(baseDir, id[:2], id)
}

// validateID checks that id is a canonical UUID string.
func validateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (fs *FileStore) shardDir(id string) string {
	return filepath.Join(fs.baseDir, id[:2])
}

func (fs *FileStore) filePath(id string) string {
	return ObjectPath(fs.baseDir, id)
}

func (fs *FileStore) metaPath(id string) string {
	return fs.filePath(id) + metaSuffix
}

// Put streams r into a new object. The content and its description are
// written to temporary files and renamed into place, so a failed Put
// leaves nothing behind.
func (fs *FileStore) Put(name, contentType string, r io.Reader) (*Object, error) {
	if r == nil {
		return nil, ErrNilReader
	}

	id := uuid.NewString()
	shard := fs.shardDir(id)
	if err := os.MkdirAll(shard, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(shard, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	src := r
	if fs.maxSize > 0 {
		src = io.LimitReader(r, fs.maxSize+1)
	}
	size, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if size == 0 {
		return nil, ErrEmptyContent
	}
	if fs.maxSize > 0 && size > fs.maxSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, fs.maxSize)
	}

	obj := &Object{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   fs.now().UTC(),
	}
	meta, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: encode object: %w", ErrIOFailure, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.WriteFile(fs.metaPath(id), meta, 0600); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, fs.filePath(id)); err != nil {
		_ = os.Remove(fs.metaPath(id))
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	success = true
	return obj, nil
}

// readMeta loads the description of id. The caller holds fs.mu.
func (fs *FileStore) readMeta(id string) (*Object, error) {
	data, err := os.ReadFile(fs.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: decode object: %w", ErrIOFailure, err)
	}
	return &obj, nil
}

// Open returns a reader over the content of id.
func (fs *FileStore) Open(id string) (io.ReadCloser, *Object, error) {
	if err := validateID(id); err != nil {
		return nil, nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	obj, err := fs.readMeta(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(fs.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return f, obj, nil
}

// Stat returns the description of id.
func (fs *FileStore) Stat(id string) (*Object, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return fs.readMeta(id)
}

// Has checks if an object exists for id.
func (fs *FileStore) Has(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(fs.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return true, nil
}

// Delete removes the content and description of id.
func (fs *FileStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Remove(fs.metaPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return nil
}

// List returns all stored object ids by scanning the shard directories.
func (fs *FileStore) List() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var result []string

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}

		files, err := os.ReadDir(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}

		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasSuffix(name, metaSuffix) {
				continue
			}
			if validateID(name) != nil {
				continue // temp files and strays
			}
			result = append(result, name)
		}
	}

	return result, nil
}
