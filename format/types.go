// Package format defines the small shared enums used across the patch
// generation and application pipeline: ZIP compression methods, DEFLATE
// strategies, pre-diff plan decisions, and the patch container's delta
// format tag.
package format

// CompressionMethod is the ZIP local/central-directory compression method
// field (16 bits on the wire, represented here as uint16 to match it
// directly).
type CompressionMethod uint16

const (
	MethodStored  CompressionMethod = 0
	MethodDeflate CompressionMethod = 8
)

func (m CompressionMethod) String() string {
	switch m {
	case MethodStored:
		return "Stored"
	case MethodDeflate:
		return "Deflate"
	default:
		return "Other"
	}
}

// DeflateStrategy is one of the three zlib-level strategy hints; it is
// part of the 27-candidate search space the reproducibility oracle probes.
type DeflateStrategy uint8

const (
	StrategyDefault DeflateStrategy = iota
	StrategyFiltered
	StrategyHuffmanOnly
)

func (s DeflateStrategy) String() string {
	switch s {
	case StrategyDefault:
		return "default"
	case StrategyFiltered:
		return "filtered"
	case StrategyHuffmanOnly:
		return "huffman-only"
	default:
		return "unknown"
	}
}

// DeflateParams is the triple {level, strategy, nowrap} a reproducible
// DEFLATE stream was produced with. Only nowrap=true occurs inside ZIP
// (raw deflate, no zlib wrapper), but the field is kept explicit because
// the oracle and the recompression stream both need it end to end.
type DeflateParams struct {
	Level    int
	Strategy DeflateStrategy
	NoWrap   bool
}

// AllCandidates returns the 27-candidate {level 1..9} x {3 strategies}
// search space in a fixed, deterministic order (level outer, strategy
// inner) so that oracle probing is reproducible across runs.
func AllCandidates() []DeflateParams {
	candidates := make([]DeflateParams, 0, 27)
	for level := 1; level <= 9; level++ {
		for _, strategy := range []DeflateStrategy{StrategyDefault, StrategyFiltered, StrategyHuffmanOnly} {
			candidates = append(candidates, DeflateParams{Level: level, Strategy: strategy, NoWrap: true})
		}
	}

	return candidates
}

// UncompressOption records which side(s) of a matched (old, new) entry pair
// the pre-diff planner decided to uncompress before running the binary
// delta.
type UncompressOption uint8

const (
	UncompressNeither UncompressOption = iota
	UncompressOld
	UncompressNew
	UncompressBoth
)

func (o UncompressOption) String() string {
	switch o {
	case UncompressNeither:
		return "NEITHER"
	case UncompressOld:
		return "OLD"
	case UncompressNew:
		return "NEW"
	case UncompressBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// PlanEntryReason records why the planner chose a given UncompressOption,
// per the decision table in the pre-diff planner's documentation.
type PlanEntryReason uint8

const (
	ReasonCompressedBytesIdentical PlanEntryReason = iota
	ReasonBothUncompressed
	ReasonCompressedChangedToUncompressed
	ReasonUncompressedChangedToCompressed
	ReasonCompressedBytesChanged
	ReasonDeflateUnsuitable
	ReasonUnsuitable
)

func (r PlanEntryReason) String() string {
	switch r {
	case ReasonCompressedBytesIdentical:
		return "COMPRESSED_BYTES_IDENTICAL"
	case ReasonBothUncompressed:
		return "BOTH_UNCOMPRESSED"
	case ReasonCompressedChangedToUncompressed:
		return "COMPRESSED_CHANGED_TO_UNCOMPRESSED"
	case ReasonUncompressedChangedToCompressed:
		return "UNCOMPRESSED_CHANGED_TO_COMPRESSED"
	case ReasonCompressedBytesChanged:
		return "COMPRESSED_BYTES_CHANGED"
	case ReasonDeflateUnsuitable:
		return "DEFLATE_UNSUITABLE"
	case ReasonUnsuitable:
		return "UNSUITABLE"
	default:
		return "UNKNOWN"
	}
}

// DeltaFormat identifies which binary-delta algorithm produced a given
// DeltaDescriptor's payload, per the patch container's wire tag.
type DeltaFormat uint8

const (
	DeltaFormatBsdiff DeltaFormat = 0
	// DeltaFormatFileByFile is a reserved tag for a nested file-by-file delta
	// engine. Nothing in this module emits it, and ApplyDelta rejects a
	// delta descriptor that carries it.
	DeltaFormatFileByFile DeltaFormat = 1
)

func (f DeltaFormat) String() string {
	switch f {
	case DeltaFormatBsdiff:
		return "BSDIFF"
	case DeltaFormatFileByFile:
		return "FILE_BY_FILE"
	default:
		return "UNKNOWN"
	}
}
