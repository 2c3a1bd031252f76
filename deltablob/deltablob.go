// Package deltablob materializes the "delta-friendly" form of an archive:
// a byte-for-byte copy of the original with the pre-diff planner's chosen
// entries inflated in place, so the binary delta engine sees structurally
// similar uncompressed content instead of two unrelated DEFLATE streams.
//
// Entries the planner left compressed, local headers, the central
// directory, and the end-of-central-directory record all pass through
// unchanged; only payload ranges the plan marks for uncompression are
// rewritten.
package deltablob

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/archive-patcher-sub004/deflate"
	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/format"
	"github.com/google/archive-patcher-sub004/internal/bytesource"
	"github.com/google/archive-patcher-sub004/internal/pool"
	"github.com/google/archive-patcher-sub004/planner"
	"github.com/google/archive-patcher-sub004/zipfmt"
)

// UncompressedRange records that the bytes at ArchiveRange in the original
// archive were inflated into the old delta-friendly blob using Params. The
// applier uses this to reproduce the same blob from its own copy of the old
// archive without the patch needing to carry old-archive bytes.
type UncompressedRange struct {
	ArchiveRange bytesource.Range
	Params       format.DeflateParams
}

// RecompressedRange records that the bytes at BlobRange in the new
// delta-friendly blob must be deflated with Params to reconstruct the
// target archive's real bytes.
type RecompressedRange struct {
	BlobRange bytesource.Range
	Params    format.DeflateParams
}

// decisionFunc reports whether path's payload should be uncompressed, and
// with which parameters if so.
type decisionFunc func(path string) (uncompress bool, params format.DeflateParams)

// BuildOld materializes the old archive's delta-friendly blob, per plan's
// UncompressOld/UncompressBoth decisions.
func BuildOld(ctx context.Context, archive *zipfmt.MinimalZipArchive, plan *planner.Plan) ([]byte, []UncompressedRange, error) {
	decide := func(path string) (bool, format.DeflateParams) {
		for _, e := range plan.Entries {
			if e.Path == path && (e.Option == format.UncompressOld || e.Option == format.UncompressBoth) {
				return true, *e.OldDeflateParams
			}
		}
		return false, format.DeflateParams{}
	}

	blob, emitted, err := build(ctx, archive, decide)
	if err != nil {
		return nil, nil, err
	}

	ranges := make([]UncompressedRange, len(emitted))
	for i, e := range emitted {
		ranges[i] = UncompressedRange{ArchiveRange: e.archiveRange, Params: e.params}
	}

	return blob, ranges, nil
}

// BuildNew materializes the new archive's delta-friendly blob, per plan's
// UncompressNew/UncompressBoth decisions.
func BuildNew(ctx context.Context, archive *zipfmt.MinimalZipArchive, plan *planner.Plan) ([]byte, []RecompressedRange, error) {
	decide := func(path string) (bool, format.DeflateParams) {
		for _, e := range plan.Entries {
			if e.Path == path && (e.Option == format.UncompressNew || e.Option == format.UncompressBoth) {
				return true, *e.NewDeflateParams
			}
		}
		return false, format.DeflateParams{}
	}

	blob, emitted, err := build(ctx, archive, decide)
	if err != nil {
		return nil, nil, err
	}

	ranges := make([]RecompressedRange, len(emitted))
	for i, e := range emitted {
		ranges[i] = RecompressedRange{BlobRange: e.blobRange, Params: e.params}
	}

	return blob, ranges, nil
}

type emittedRange struct {
	archiveRange bytesource.Range
	blobRange    bytesource.Range
	params       format.DeflateParams
}

// build walks archive's entries in on-disk (local header offset) order,
// copying bytes unchanged except where decide chooses to inflate a
// payload. Bytes before the first entry, between entries, and after the
// last entry (the central directory and EOCD) always pass through
// unchanged.
func build(ctx context.Context, archive *zipfmt.MinimalZipArchive, decide decisionFunc) ([]byte, []emittedRange, error) {
	entries := make([]zipfmt.MinimalZipEntry, len(archive.Entries))
	copy(entries, archive.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LocalHeaderOffset < entries[j].LocalHeaderOffset
	})

	out := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(out)
	var emitted []emittedRange
	pos := int64(0)

	copyThrough := func(r bytesource.Range) error {
		if r.Empty() {
			return nil
		}
		chunk, err := bytesource.ReadRange(archive.Source, r)
		if err != nil {
			return err
		}
		out.MustWrite(chunk)
		return nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errs.ErrCanceled, err)
		}

		if e.LocalHeaderRange.Offset < pos {
			return nil, nil, fmt.Errorf("%w: entry %q overlaps the previous entry", errs.ErrMalformedArchive, e.Path)
		}

		if err := copyThrough(bytesource.Range{Offset: pos, Length: e.LocalHeaderRange.Offset - pos}); err != nil {
			return nil, nil, err
		}
		if err := copyThrough(e.LocalHeaderRange); err != nil {
			return nil, nil, err
		}

		uncompress, params := decide(e.Path)
		if uncompress {
			payload, err := bytesource.ReadRange(archive.Source, e.PayloadRange)
			if err != nil {
				return nil, nil, err
			}
			inflated, err := deflate.Inflate(payload)
			if err != nil {
				return nil, nil, fmt.Errorf("deltablob: inflating %q: %w", e.Path, err)
			}

			blobOffset := int64(out.Len())
			if _, err := out.Write(inflated); err != nil {
				return nil, nil, err
			}

			emitted = append(emitted, emittedRange{
				archiveRange: e.PayloadRange,
				blobRange:    bytesource.Range{Offset: blobOffset, Length: int64(len(inflated))},
				params:       params,
			})
		} else {
			if err := copyThrough(e.PayloadRange); err != nil {
				return nil, nil, err
			}
		}

		pos = e.PayloadRange.End()
	}

	if err := copyThrough(bytesource.Range{Offset: pos, Length: archive.Source.Size() - pos}); err != nil {
		return nil, nil, err
	}

	// Copy out of the pooled buffer: PutBlobBuffer (deferred above) returns
	// out to the pool for reuse, and a later caller must not see its bytes
	// mutated out from under it.
	blob := make([]byte, out.Len())
	copy(blob, out.Bytes())

	return blob, emitted, nil
}
