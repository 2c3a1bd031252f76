// Package bytesource provides the random-access byte source abstraction
// used throughout the patch pipeline, plus byte ranges and checksum
// helpers built on top of it.
//
// Archives and patches are read via io.ReaderAt rather than io.Reader
// because the ZIP parser must seek backwards for the EOCD scan and jump to
// arbitrary local-header offsets, and because the BSDIFF apply step reads
// the old blob non-sequentially. No backward streaming is required outside
// of that seeking. Inflate and recompression work on whole ranges read with
// ReadRange; SectionReader offers a slice-windowed io.Reader over a Source
// for forward-only streaming consumers.
package bytesource

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Source is a read-only, random-access view over a fixed-size byte
// sequence: a memory-mapped archive, an *os.File, or an in-memory buffer.
type Source interface {
	io.ReaderAt
	// Size returns the total number of bytes in the source.
	Size() int64
}

// Range is a half-open byte range [Offset, Offset+Length) within a Source.
// It is the unit the pre-diff planner, the delta-friendly blob builder,
// and the patch container all exchange.
type Range struct {
	Offset int64
	Length int64
}

// End returns the exclusive end offset of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// Empty reports whether the range has zero length.
func (r Range) Empty() bool {
	return r.Length == 0
}

// Overlaps reports whether r and other share any bytes.
func (r Range) Overlaps(other Range) bool {
	return r.Offset < other.End() && other.Offset < r.End()
}

// Adjacent reports whether other begins exactly where r ends.
func (r Range) Adjacent(other Range) bool {
	return r.End() == other.Offset
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

// ReadRange reads exactly r.Length bytes at r.Offset from src.
func ReadRange(src Source, r Range) ([]byte, error) {
	buf := make([]byte, r.Length)
	if r.Length == 0 {
		return buf, nil
	}

	n, err := src.ReadAt(buf, r.Offset)
	if err != nil && !(err == io.EOF && int64(n) == r.Length) {
		return nil, fmt.Errorf("bytesource: read range %s: %w", r, err)
	}

	return buf, nil
}

// SectionReader returns an io.Reader restricted to r, suitable for feeding
// to a streaming consumer (e.g. flate.Reader) without materializing the
// whole range up front.
func SectionReader(src Source, r Range) io.Reader {
	return io.NewSectionReader(src, r.Offset, r.Length)
}

// CRC32 computes the ZIP-standard CRC-32 (IEEE polynomial) of data. This
// is the protocol-mandated checksum recorded in the ZIP central directory
// and is not interchangeable with any general-purpose hash: substituting a
// faster non-standard hash here would silently break interoperability with
// every other ZIP-aware tool, so this uses hash/crc32 directly rather than
// a third-party library from the pack.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Fingerprint returns a fast 64-bit, non-cryptographic content fingerprint
// (xxhash). It is explicitly not a substitute for CRC32: nothing compares a
// Fingerprint against a value recorded in an archive or patch. Temp-file
// names come from internal/tempfile, which does not use it.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// BufSource wraps an in-memory byte slice as a Source.
type BufSource struct {
	buf []byte
}

// NewBufSource creates a Source backed by buf. buf is not copied.
func NewBufSource(buf []byte) *BufSource {
	return &BufSource{buf: buf}
}

func (b *BufSource) Size() int64 { return int64(len(b.buf)) }

func (b *BufSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b.buf)) {
		return 0, fmt.Errorf("bytesource: offset %d out of range [0,%d]", off, len(b.buf))
	}

	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// FileSource wraps an *os.File as a Source, for operating on archives
// larger than is comfortable to hold fully in memory twice over (once as
// the archive, once as the delta-friendly blob).
type FileSource struct {
	f    *os.File
	size int64
}

// NewFileSource stats f once and wraps it as a Source. The caller retains
// ownership of f and must close it.
func NewFileSource(f *os.File) (*FileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("bytesource: stat: %w", err)
	}

	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}
