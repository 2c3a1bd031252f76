package bytesource

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_ReadAt(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "filesource")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("file-backed content"))
	require.NoError(t, err)

	src, err := NewFileSource(f)
	require.NoError(t, err)
	assert.Equal(t, int64(19), src.Size())

	buf := make([]byte, 6)
	n, err := src.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "backed", string(buf))
}

func TestRange_EndEmpty(t *testing.T) {
	r := Range{Offset: 10, Length: 5}
	assert.Equal(t, int64(15), r.End())
	assert.False(t, r.Empty())

	empty := Range{Offset: 3, Length: 0}
	assert.True(t, empty.Empty())
}

func TestRange_OverlapsAdjacent(t *testing.T) {
	a := Range{Offset: 0, Length: 10}
	b := Range{Offset: 5, Length: 10}
	c := Range{Offset: 10, Length: 10}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
	assert.True(t, a.Adjacent(c))
	assert.False(t, a.Adjacent(b))
}

func TestBufSource_ReadAt(t *testing.T) {
	src := NewBufSource([]byte("hello world"))
	assert.Equal(t, int64(11), src.Size())

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))
}

func TestBufSource_ReadAt_ShortRead(t *testing.T) {
	src := NewBufSource([]byte("abc"))
	buf := make([]byte, 10)
	n, err := src.ReadAt(buf, 0)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBufSource_ReadAt_OutOfRange(t *testing.T) {
	src := NewBufSource([]byte("abc"))
	_, err := src.ReadAt(make([]byte, 1), 100)
	assert.Error(t, err)
}

func TestReadRange(t *testing.T) {
	src := NewBufSource([]byte("0123456789"))
	data, err := ReadRange(src, Range{Offset: 2, Length: 4})
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))
}

func TestReadRange_Empty(t *testing.T) {
	src := NewBufSource([]byte("0123456789"))
	data, err := ReadRange(src, Range{Offset: 2, Length: 0})
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestCRC32_KnownValue(t *testing.T) {
	// CRC-32 (IEEE) of "123456789" is the standard check value 0xCBF43926.
	assert.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

func TestFingerprint_Deterministic(t *testing.T) {
	data := []byte("some archive bytes")
	assert.Equal(t, Fingerprint(data), Fingerprint(data))
	assert.NotEqual(t, Fingerprint(data), Fingerprint([]byte("other bytes")))
}

func TestSectionReader(t *testing.T) {
	src := NewBufSource([]byte("0123456789"))
	r := SectionReader(src, Range{Offset: 3, Length: 4})
	buf, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(buf))
}
