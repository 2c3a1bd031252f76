// Package errs defines the sentinel errors returned across the module.
//
// Components return these directly, or wrapped with additional context via
// fmt.Errorf("%w: ...", errs.ErrX, detail), so callers can use errors.Is to
// classify failures into the error surface documented at the package
// boundary (archivepatcher.GenerateDelta / archivepatcher.ApplyDelta).
package errs

import "errors"

// Structural errors: the archive or patch container bytes are not laid out
// the way the format requires.
var (
	ErrMalformedArchive  = errors.New("archive-patcher: malformed archive")
	ErrUnsupportedArchive = errors.New("archive-patcher: unsupported archive")
	ErrPatchCorrupt      = errors.New("archive-patcher: patch corrupt")
)

// Semantic errors: bytes parse fine but violate an invariant.
var (
	ErrCRCMismatch        = errors.New("archive-patcher: CRC-32 mismatch")
	ErrSizeMismatch       = errors.New("archive-patcher: size mismatch")
	ErrOffsetDiscontinuity = errors.New("archive-patcher: non-contiguous range")
	ErrOutputMismatch     = errors.New("archive-patcher: output mismatch")
)

// Capability errors: the local DEFLATE implementation cannot reproduce the
// bytes a patch was generated against.
var (
	ErrIncompatibleDeflate = errors.New("archive-patcher: incompatible deflate implementation")
	ErrNotReproducible     = errors.New("archive-patcher: compressed bytes not reproducible")
)

// Resource / usage errors.
var (
	ErrCanceled       = errors.New("archive-patcher: operation canceled")
	ErrInvalidOption  = errors.New("archive-patcher: invalid option")
	ErrClosed         = errors.New("archive-patcher: already closed")
)
