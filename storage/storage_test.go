package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper functions ---

// newTestStore creates a FileStore in a temporary directory.
func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)
	return store
}

func readAll(t *testing.T, store *FileStore, id string) []byte {
	t.Helper()
	rc, _, err := store.Open(id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

// --- NewFileStore tests ---

func TestNewFileStore_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	store, err := NewFileStore(dir, 0)
	require.NoError(t, err)
	assert.NotNil(t, store)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("", 0)
	assert.ErrorIs(t, err, ErrInvalidBaseDir)
}

// --- Put / Open / Stat ---

func TestPutAndOpen(t *testing.T) {
	store := newTestStore(t)
	content := []byte("quarterly report")

	obj, err := store.Put("report.pdf", "application/pdf", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Len(t, obj.ID, 36)
	assert.Equal(t, "report.pdf", obj.Name)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.False(t, obj.CreatedAt.IsZero())

	assert.Equal(t, content, readAll(t, store, obj.ID))

	stat, err := store.Stat(obj.ID)
	require.NoError(t, err)
	assert.Equal(t, obj.ID, stat.ID)
	assert.Equal(t, obj.Size, stat.Size)
	assert.True(t, obj.CreatedAt.Equal(stat.CreatedAt))
}

func TestPut_ShardedLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, 0)
	require.NoError(t, err)

	obj, err := store.Put("a.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)

	path := ObjectPath(dir, obj.ID)
	assert.Equal(t, filepath.Join(dir, obj.ID[:2], obj.ID), path)
	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".json")
	assert.NoError(t, err)
}

func TestPut_DistinctIDsForSameName(t *testing.T) {
	store := newTestStore(t)
	a, err := store.Put("same.txt", "text/plain", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := store.Put("same.txt", "text/plain", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestPut_Errors(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put("x", "", nil)
	assert.ErrorIs(t, err, ErrNilReader)

	_, err = store.Put("x", "", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyContent)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, ids, "failed puts leave no objects")
}

func TestPut_SizeLimit(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = store.Put("ok", "", strings.NewReader("1234"))
	require.NoError(t, err)

	_, err = store.Put("big", "", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestOpen_NotFoundAndInvalid(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Open("0b6c4f8e-8f0e-4d3c-9a51-5f6a7b8c9d0e")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{"", "abc", "../../etc/passwd", "0B6C4F8E-8F0E-4D3C-9A51-5F6A7B8C9D0E"} {
		_, _, err := store.Open(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
}

// --- Has / Delete / List ---

func TestHasAndDelete(t *testing.T) {
	store := newTestStore(t)
	obj, err := store.Put("a", "", strings.NewReader("data"))
	require.NoError(t, err)

	ok, err := store.Has(obj.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(obj.ID))

	ok, err = store.Has(obj.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Stat(obj.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(obj.ID), ErrNotFound)
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	want := make(map[string]bool)
	for i := 0; i < 5; i++ {
		obj, err := store.Put("f", "", strings.NewReader(strings.Repeat("x", i+1)))
		require.NoError(t, err)
		want[obj.ID] = true
	}

	ids, err := store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 5)
	for _, id := range ids {
		assert.True(t, want[id], id)
	}
}

// --- Concurrency ---

func TestConcurrentPuts(t *testing.T) {
	store := newTestStore(t)
	var wg sync.WaitGroup
	const n = 20
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj, err := store.Put("c", "", strings.NewReader(strings.Repeat("y", i+1)))
			assert.NoError(t, err)
			if obj != nil {
				ids[i] = obj.ID
			}
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		assert.Len(t, readAll(t, store, id), i+1)
	}
}
