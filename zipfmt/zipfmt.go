// Package zipfmt parses the subset of the ZIP structural layout that the
// patch pipeline needs: the end-of-central-directory record, the central
// directory entries, and the local header each one points at. It never
// inflates or deflates payload bytes; see the deflate package for that.
//
// The central directory is authoritative for CRC-32 and uncompressed size;
// the local header is authoritative for exactly where an entry's payload
// begins, since local filename/extra-field lengths can differ from their
// central-directory counterparts in archives built by some tools. From the
// local header only the signature and those two lengths are read; its
// other fields are not compared against the central directory.
package zipfmt

import (
	"github.com/google/archive-patcher-sub004/internal/bytesource"
)

const (
	eocdSignature          = 0x06054b50
	centralDirectorySignature = 0x02014b50
	localHeaderSignature   = 0x04034b50

	// eocdFixedLen is the length of the EOCD record excluding the trailing
	// comment.
	eocdFixedLen = 22
	// maxCommentLen is the largest value the 16-bit comment-length field can
	// hold, bounding how far back the EOCD scan must look.
	maxCommentLen = 0xffff

	centralDirectoryFixedLen = 46
	localHeaderFixedLen      = 30

	// zip64Marker is the sentinel value a 32-bit size/offset field holds
	// when the real value lives in a ZIP64 extra field.
	zip64Marker = 0xffffffff

	// gpFlagDataDescriptor is bit 3 of the general-purpose flag field:
	// sizes and CRC-32 are deferred to a data descriptor after the payload.
	gpFlagDataDescriptor = 1 << 3
)

// MinimalZipEntry is the subset of a ZIP central-directory record plus its
// local header that the rest of the pipeline needs: enough to locate and
// classify the entry's payload without re-parsing the archive.
type MinimalZipEntry struct {
	// Path is the entry's name as recorded in the central directory.
	Path string

	CompressionMethod  uint16
	GeneralPurposeFlag uint16
	CRC32              uint32
	CompressedSize     int64
	UncompressedSize   int64

	// LocalHeaderOffset is the central directory's recorded offset of this
	// entry's local header, relative to the start of the archive.
	LocalHeaderOffset int64

	// LocalHeaderRange spans the local header's fixed fields, filename, and
	// extra field — i.e. everything up to (not including) the payload.
	LocalHeaderRange bytesource.Range

	// PayloadRange spans exactly CompressedSize bytes starting where the
	// local header says the payload begins.
	PayloadRange bytesource.Range
}

// MinimalZipArchive is a parsed view of a ZIP file: its entries in central
// directory order, plus the byte ranges of the structural records
// surrounding them so a caller can reconstruct anything it didn't retain.
type MinimalZipArchive struct {
	Source bytesource.Source

	// Entries appear in central-directory order, which is not required to
	// match local-header (on-disk payload) order.
	Entries []MinimalZipEntry

	// CentralDirectoryRange spans every central-directory record.
	CentralDirectoryRange bytesource.Range

	// EOCDRange spans the end-of-central-directory record, including its
	// comment.
	EOCDRange bytesource.Range
}

// ByPath returns the entry with the given path, or false if none matches.
// Archives are not required to have unique paths; this returns the first
// match in central-directory order, which is what every other component in
// this module also treats as canonical.
func (a *MinimalZipArchive) ByPath(path string) (MinimalZipEntry, bool) {
	for _, e := range a.Entries {
		if e.Path == path {
			return e, true
		}
	}

	return MinimalZipEntry{}, false
}
