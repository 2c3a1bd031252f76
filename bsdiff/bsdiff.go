// Package bsdiff computes and applies a suffix-sort binary delta between
// two byte sequences, in the style of Colin Percival's bsdiff: find long
// approximate matches between the old and new blob via a suffix array,
// emit a compact run of (copy-with-byte-diff, insert-literal, seek) control
// triples, and reconstruct the new blob from the old one plus those
// triples at apply time.
//
// This is a from-scratch reimplementation of the classic algorithm against
// this module's own container framing rather than bsdiff's original
// BSDIFF40/bzip2 file format: the control, diff, and extra streams below
// are the three streams bsdiff always produces, but they are laid out as
// plain length-prefixed records for the patch package to embed directly,
// with no bzip2 layer of their own (the outer patch container is where any
// further compression of the whole patch would happen, and nothing in this
// module adds one — see DESIGN.md).
package bsdiff

// controlRecord is one (copy, insert, seek) instruction: copy Copy bytes
// from the old blob (each XORed, here subtracted, against the new blob to
// keep the diff stream compressible), then insert Insert literal bytes
// from the new blob that have no old-blob counterpart, then advance the
// old-blob cursor by Seek beyond what Copy already consumed.
type controlRecord struct {
	Copy   int64
	Insert int64
	Seek   int64
}
