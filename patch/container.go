// Package patch defines the on-disk patch container: the single framed
// file a generate call emits and an apply call consumes, tying together
// the delta-friendly reconstruction instructions for both archives with
// the binary delta that turns one into the other.
//
// The layout is big-endian throughout, length-prefixed, and versioned by
// an 8-byte magic so a reader can reject a file produced by an
// incompatible future revision outright instead of misparsing it.
package patch

import (
	"github.com/google/archive-patcher-sub004/format"
)

// Magic identifies this container format and its version. It is not a
// human-meaningful string beyond that; readers only ever compare it byte
// for byte against Magic.
const Magic = "GFbFv1_0"

// Flag bits for Patch.Flags.
const (
	// FlagOldArchiveIsDeltaFriendly is currently unused; reserved for a
	// future revision that lets the generator skip re-deriving the
	// delta-friendly old blob when the caller already supplies one.
	FlagOldArchiveIsDeltaFriendly uint32 = 1 << 0
)

// UncompressRange records that bytes [ArchiveOffset, ArchiveOffset+ArchiveLength)
// of the original old archive were inflated with Params to build the
// delta-friendly old blob the binary delta was computed against. The
// applier replays this against its own copy of the old archive; the patch
// never carries old-archive bytes itself.
type UncompressRange struct {
	ArchiveOffset int64
	ArchiveLength int64
	Params        format.DeflateParams
}

// RecompressRange records that bytes [BlobOffset, BlobOffset+BlobLength) of
// the reconstructed new delta-friendly blob must be deflated with Params
// to produce the final target archive's bytes.
type RecompressRange struct {
	BlobOffset int64
	BlobLength int64
	Params     format.DeflateParams
}

// DeltaDescriptor is one binary-delta instruction: replace
// [OldBlobOffset, OldBlobOffset+OldBlobLength) of the delta-friendly old
// blob with [NewBlobOffset, NewBlobOffset+NewBlobLength) of the
// delta-friendly new blob, by applying DeltaBytes (in the format Format
// names) to the old range.
type DeltaDescriptor struct {
	Format        format.DeltaFormat
	OldBlobOffset int64
	OldBlobLength int64
	NewBlobOffset int64
	NewBlobLength int64
	DeltaBytes    []byte
}

// Patch is the fully parsed contents of a patch container.
type Patch struct {
	Flags uint32

	// DeltaFriendlyOldFileSize and DeltaFriendlyNewFileSize are the exact
	// lengths the delta-friendly old and new blobs must have. Read checks
	// that the DeltaDescriptors cover exactly the new size, and the applier
	// compares both sizes against the blobs it rebuilds.
	DeltaFriendlyOldFileSize int64
	DeltaFriendlyNewFileSize int64

	UncompressRanges []UncompressRange
	RecompressRanges []RecompressRange
	Deltas           []DeltaDescriptor
}
