package hashing

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	abcDigest   = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
)

// --- Canonical ---

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a": 2, "b": 1}`},
		{"nested", map[string]any{"z": map[string]any{"y": true, "x": nil}}, `{"z": {"x": null, "y": true}}`},
		{"list separators", []any{1, "two", false}, `[1, "two", false]`},
		{"non-ascii escaped", map[string]any{"name": "café"}, `{"name": "caf\u00e9"}`},
		{"astral escaped as surrogates", "\U0001F600", `"\ud83d\ude00"`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"control chars", "a\nb\x01", `"a\nb\u0001"`},
		{"quote and backslash", `"\`, `"\"\\"`},
		{"empty object", map[string]any{}, `{}`},
		{"large integer literal", map[string]any{"n": uint64(1 << 62)}, `{"n": 4611686018427387904}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonical_StructTags(t *testing.T) {
	type rec struct {
		Zed   string `json:"zed"`
		Alpha int    `json:"alpha"`
	}
	got, err := Canonical(rec{Zed: "z", Alpha: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha": 1, "zed": "z"}`, string(got))
}

func TestCanonical_Unsupported(t *testing.T) {
	_, err := Canonical(map[string]any{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

// --- Digests ---

func TestDigestRecord_OrderIndependent(t *testing.T) {
	a, err := DigestRecord(map[string]any{"x": 1, "y": "2"})
	require.NoError(t, err)
	b, err := DigestRecord(map[string]any{"y": "2", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DigestSize)
}

func TestDigestRecord_ChangesWithContent(t *testing.T) {
	a, err := DigestRecord(map[string]any{"x": 1})
	require.NoError(t, err)
	b, err := DigestRecord(map[string]any{"x": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDigestBytes(t *testing.T) {
	assert.Equal(t, emptyDigest, DigestBytes(nil))
	assert.Equal(t, abcDigest, DigestBytes([]byte("abc")))
}

func TestDigestStream(t *testing.T) {
	got, err := DigestStream(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, abcDigest, got)

	got, err = DigestStream(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, emptyDigest, got)
}

func TestDigestStream_MultiChunkMatchesBytes(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), ChunkSize)
	got, err := DigestStream(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DigestBytes(data), got)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestDigestStream_Errors(t *testing.T) {
	_, err := DigestStream(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = DigestStream(failingReader{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIsDigest(t *testing.T) {
	assert.True(t, IsDigest(abcDigest))
	assert.False(t, IsDigest("abc123"))
	assert.False(t, IsDigest(strings.Repeat("z", DigestSize)))
}
