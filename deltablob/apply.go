package deltablob

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/archive-patcher-sub004/deflate"
	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/internal/bytesource"
)

// ApplyOld reconstructs the old delta-friendly blob that BuildOld produced
// at generate time, from the real old archive the applier has on disk and
// the UncompressedRanges the patch recorded. It needs no knowledge of the
// archive's ZIP structure: the ranges alone say which byte spans to
// inflate, so every other byte copies straight through.
func ApplyOld(archiveSrc bytesource.Source, ranges []UncompressedRange) ([]byte, error) {
	sorted := append([]UncompressedRange{}, ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ArchiveRange.Offset < sorted[j].ArchiveRange.Offset
	})

	var out bytes.Buffer
	pos := int64(0)

	for _, r := range sorted {
		if r.ArchiveRange.Offset < pos {
			return nil, fmt.Errorf("%w: uncompress ranges overlap at offset %d", errs.ErrOffsetDiscontinuity, r.ArchiveRange.Offset)
		}

		if r.ArchiveRange.Offset > pos {
			chunk, err := bytesource.ReadRange(archiveSrc, bytesource.Range{Offset: pos, Length: r.ArchiveRange.Offset - pos})
			if err != nil {
				return nil, err
			}
			if _, err := out.Write(chunk); err != nil {
				return nil, err
			}
		}

		payload, err := bytesource.ReadRange(archiveSrc, r.ArchiveRange)
		if err != nil {
			return nil, err
		}
		inflated, err := deflate.Inflate(payload)
		if err != nil {
			return nil, fmt.Errorf("deltablob: inflating range %s: %w", r.ArchiveRange, err)
		}
		if _, err := out.Write(inflated); err != nil {
			return nil, err
		}

		pos = r.ArchiveRange.End()
	}

	if pos < archiveSrc.Size() {
		chunk, err := bytesource.ReadRange(archiveSrc, bytesource.Range{Offset: pos, Length: archiveSrc.Size() - pos})
		if err != nil {
			return nil, err
		}
		if _, err := out.Write(chunk); err != nil {
			return nil, err
		}
	}

	return out.Bytes(), nil
}
