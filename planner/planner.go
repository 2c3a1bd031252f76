// Package planner decides, for each path present in both the old and new
// archive, whether the binary delta engine should see that entry's raw
// (possibly compressed) bytes or its uncompressed form.
//
// DEFLATE output is bit-sensitive to its input in a way that defeats
// byte-level diffing: a one-byte change anywhere in an entry's
// uncompressed content typically changes every compressed byte after that
// point. Diffing the uncompressed form instead lets the delta engine find
// the real edit, at the cost of needing to recompress that range back to
// bytes identical to what the archive originally held. The planner decides
// where that trade is worth making.
package planner

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/archive-patcher-sub004/deflate"
	"github.com/google/archive-patcher-sub004/format"
	"github.com/google/archive-patcher-sub004/internal/bytesource"
	"github.com/google/archive-patcher-sub004/zipfmt"
)

// PreDiffPlanEntry is the planner's decision for one path present in both
// archives.
type PreDiffPlanEntry struct {
	Path string

	OldEntry zipfmt.MinimalZipEntry
	NewEntry zipfmt.MinimalZipEntry

	Option format.UncompressOption
	Reason format.PlanEntryReason

	// OldDeflateParams and NewDeflateParams are set exactly when Option
	// uncompresses that side and the side is DEFLATE-compressed; nil when
	// the side is already STORED or is not being uncompressed.
	OldDeflateParams *format.DeflateParams
	NewDeflateParams *format.DeflateParams
}

// Plan is the full set of per-path decisions for a pair of archives, plus
// the paths that exist on only one side.
type Plan struct {
	Entries []PreDiffPlanEntry

	// AddedPaths exist only in the new archive; RemovedPaths exist only in
	// the old archive. Neither participates in the decision table: the
	// delta-friendly blob builder copies them verbatim.
	AddedPaths   []string
	RemovedPaths []string
}

// Modifier lets a caller apply policy on top of the decision table, e.g.
// refusing to uncompress entries under a path prefix regardless of what the
// table would otherwise choose. Adjust may only downgrade Option toward
// format.UncompressNeither; Build rejects a Modifier that tries to upgrade
// a decision.
type Modifier interface {
	Adjust(entry *PreDiffPlanEntry)
}

// Build runs the decision table over every path common to oldArchive and
// newArchive, in newArchive's central-directory order, and applies
// modifiers (in order) to each resulting entry.
func Build(ctx context.Context, oldArchive, newArchive *zipfmt.MinimalZipArchive, oracle *deflate.Oracle, modifiers ...Modifier) (*Plan, error) {
	oldByPath := make(map[string]zipfmt.MinimalZipEntry, len(oldArchive.Entries))
	for _, e := range oldArchive.Entries {
		if _, exists := oldByPath[e.Path]; !exists {
			oldByPath[e.Path] = e
		}
	}

	seenOld := make(map[string]bool, len(oldArchive.Entries))

	plan := &Plan{}

	for _, newEntry := range newArchive.Entries {
		oldEntry, ok := oldByPath[newEntry.Path]
		if !ok {
			plan.AddedPaths = append(plan.AddedPaths, newEntry.Path)
			continue
		}
		seenOld[newEntry.Path] = true

		entry, err := decide(ctx, oldArchive.Source, newArchive.Source, oldEntry, newEntry, oracle)
		if err != nil {
			return nil, fmt.Errorf("planner: %q: %w", newEntry.Path, err)
		}

		for _, m := range modifiers {
			before := entry.Option
			m.Adjust(&entry)
			if rank(entry.Option) > rank(before) {
				return nil, fmt.Errorf("planner: modifier upgraded %q from %s to %s, which is not permitted",
					newEntry.Path, before, entry.Option)
			}
		}

		plan.Entries = append(plan.Entries, entry)
	}

	for _, oldEntry := range oldArchive.Entries {
		if !seenOld[oldEntry.Path] {
			plan.RemovedPaths = append(plan.RemovedPaths, oldEntry.Path)
		}
	}
	sort.Strings(plan.RemovedPaths)

	return plan, nil
}

// rank orders UncompressOption from least to most invasive, so a Modifier
// can only move a decision toward UncompressNeither.
func rank(o format.UncompressOption) int {
	switch o {
	case format.UncompressNeither:
		return 0
	case format.UncompressOld, format.UncompressNew:
		return 1
	case format.UncompressBoth:
		return 2
	default:
		return 2
	}
}

// decide applies the decision table to a single matched (old, new) entry
// pair. Rows are evaluated top to bottom; the first match wins.
func decide(ctx context.Context, oldSrc, newSrc bytesource.Source, oldEntry, newEntry zipfmt.MinimalZipEntry, oracle *deflate.Oracle) (PreDiffPlanEntry, error) {
	result := PreDiffPlanEntry{Path: newEntry.Path, OldEntry: oldEntry, NewEntry: newEntry}

	oldPayload, err := bytesource.ReadRange(oldSrc, oldEntry.PayloadRange)
	if err != nil {
		return result, err
	}
	newPayload, err := bytesource.ReadRange(newSrc, newEntry.PayloadRange)
	if err != nil {
		return result, err
	}

	oldStored := oldEntry.CompressionMethod == uint16(format.MethodStored)
	newStored := newEntry.CompressionMethod == uint16(format.MethodStored)
	oldDeflate := oldEntry.CompressionMethod == uint16(format.MethodDeflate)
	newDeflate := newEntry.CompressionMethod == uint16(format.MethodDeflate)

	// Row 1: both sides are already uncompressed; nothing to do.
	if oldStored && newStored {
		result.Option = format.UncompressNeither
		result.Reason = format.ReasonBothUncompressed
		return result, nil
	}

	// Row 2: identical compressed bytes need no uncompression; the delta
	// engine trivially finds the unchanged region.
	if bytes.Equal(oldPayload, newPayload) {
		result.Option = format.UncompressNeither
		result.Reason = format.ReasonCompressedBytesIdentical
		return result, nil
	}

	// Row 6 (UNSUITABLE), checked ahead of rows 3-5 because those only
	// match STORED/DEFLATE pairs: an entry compressed with anything but
	// STORED/DEFLATE (e.g. a ZIP holding a BZIP2 member via method 12)
	// cannot be reasoned about by the oracle at all.
	if (!oldStored && !oldDeflate) || (!newStored && !newDeflate) {
		result.Option = format.UncompressNeither
		result.Reason = format.ReasonUnsuitable
		return result, nil
	}

	var oldParams, newParams format.DeflateParams

	if oldDeflate {
		uncompressed, err := deflate.Inflate(oldPayload)
		if err != nil {
			return result, err
		}
		params, ok, err := oracle.Suggest(ctx, oldEntry.Path, uncompressed, oldPayload)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Option = format.UncompressNeither
			result.Reason = format.ReasonDeflateUnsuitable
			return result, nil
		}
		oldParams = params
	}

	if newDeflate {
		uncompressed, err := deflate.Inflate(newPayload)
		if err != nil {
			return result, err
		}
		params, ok, err := oracle.Suggest(ctx, newEntry.Path, uncompressed, newPayload)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Option = format.UncompressNeither
			result.Reason = format.ReasonDeflateUnsuitable
			return result, nil
		}
		newParams = params
	}

	switch {
	case oldStored && newDeflate:
		result.Option = format.UncompressNew
		result.Reason = format.ReasonUncompressedChangedToCompressed
		result.NewDeflateParams = &newParams
	case oldDeflate && newStored:
		result.Option = format.UncompressOld
		result.Reason = format.ReasonCompressedChangedToUncompressed
		result.OldDeflateParams = &oldParams
	default: // oldDeflate && newDeflate
		result.Option = format.UncompressBoth
		result.Reason = format.ReasonCompressedBytesChanged
		result.OldDeflateParams = &oldParams
		result.NewDeflateParams = &newParams
	}

	return result, nil
}
