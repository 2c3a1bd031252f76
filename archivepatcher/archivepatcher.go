// Package archivepatcher computes and applies compact binary patches
// between two versions of a ZIP-family archive (ZIP, JAR, APK).
//
// A naive byte-level diff between two archives is nearly useless: DEFLATE
// is bit-sensitive, so even a one-byte change to an entry's content
// rewrites every compressed byte that follows it. GenerateDelta works
// around this by inflating the entries the pre-diff planner judges safe
// to inflate, diffing the resulting "delta-friendly" blobs with a
// suffix-sort binary delta, and recording exactly how to recompress the
// result back to byte-identical archive output. ApplyDelta reverses every
// step.
//
// # Basic usage
//
//	err := archivepatcher.GenerateDelta(ctx, "v1.apk", "v2.apk", "v1-to-v2.patch")
//
//	err := archivepatcher.ApplyDelta(ctx, "v1.apk", "v1-to-v2.patch", "v2.apk")
//
// Both entry points accept Options (WithTempDir, WithModifiers) for
// controlling staging location and pre-diff policy.
package archivepatcher

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/archive-patcher-sub004/bsdiff"
	"github.com/google/archive-patcher-sub004/deflate"
	"github.com/google/archive-patcher-sub004/deltablob"
	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/format"
	"github.com/google/archive-patcher-sub004/internal/bytesource"
	"github.com/google/archive-patcher-sub004/internal/tempfile"
	"github.com/google/archive-patcher-sub004/patch"
	"github.com/google/archive-patcher-sub004/planner"
	"github.com/google/archive-patcher-sub004/zipfmt"
)

// GenerateDelta builds a patch that transforms oldPath into newPath and
// writes it to patchOutPath.
func GenerateDelta(ctx context.Context, oldPath, newPath, patchOutPath string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	oldFile, err := os.Open(oldPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: opening old archive: %w", err)
	}
	defer oldFile.Close()

	newFile, err := os.Open(newPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: opening new archive: %w", err)
	}
	defer newFile.Close()

	oldSrc, err := bytesource.NewFileSource(oldFile)
	if err != nil {
		return err
	}
	newSrc, err := bytesource.NewFileSource(newFile)
	if err != nil {
		return err
	}

	oldArchive, err := zipfmt.Parse(oldSrc)
	if err != nil {
		return fmt.Errorf("archivepatcher: parsing old archive: %w", err)
	}
	newArchive, err := zipfmt.Parse(newSrc)
	if err != nil {
		return fmt.Errorf("archivepatcher: parsing new archive: %w", err)
	}

	oracle := deflate.NewOracle()

	plan, err := planner.Build(ctx, oldArchive, newArchive, oracle, o.modifiers...)
	if err != nil {
		return fmt.Errorf("archivepatcher: planning: %w", err)
	}

	oldBlob, uncompressRanges, err := deltablob.BuildOld(ctx, oldArchive, plan)
	if err != nil {
		return fmt.Errorf("archivepatcher: building old delta-friendly blob: %w", err)
	}

	newBlob, recompressRanges, err := deltablob.BuildNew(ctx, newArchive, plan)
	if err != nil {
		return fmt.Errorf("archivepatcher: building new delta-friendly blob: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCanceled, err)
	}

	deltaBytes, err := bsdiff.Generate(oldBlob, newBlob)
	if err != nil {
		return fmt.Errorf("archivepatcher: computing binary delta: %w", err)
	}

	p := &patch.Patch{
		DeltaFriendlyOldFileSize: int64(len(oldBlob)),
		DeltaFriendlyNewFileSize: int64(len(newBlob)),
		UncompressRanges:         toPatchUncompressRanges(uncompressRanges),
		RecompressRanges:         toPatchRecompressRanges(recompressRanges),
		Deltas: []patch.DeltaDescriptor{
			{
				Format:        format.DeltaFormatBsdiff,
				OldBlobOffset: 0,
				OldBlobLength: int64(len(oldBlob)),
				NewBlobOffset: 0,
				NewBlobLength: int64(len(newBlob)),
				DeltaBytes:    deltaBytes,
			},
		},
	}

	out, err := os.Create(patchOutPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: creating patch file: %w", err)
	}
	defer out.Close()

	if err := p.Write(out); err != nil {
		return fmt.Errorf("archivepatcher: writing patch: %w", err)
	}

	return nil
}

// ApplyDelta reconstructs the new archive at newOutPath from oldPath and a
// patch produced by GenerateDelta.
func ApplyDelta(ctx context.Context, oldPath, patchPath, newOutPath string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	oldFile, err := os.Open(oldPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: opening old archive: %w", err)
	}
	defer oldFile.Close()

	oldSrc, err := bytesource.NewFileSource(oldFile)
	if err != nil {
		return err
	}

	patchFile, err := os.Open(patchPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: opening patch: %w", err)
	}
	defer patchFile.Close()

	p, err := patch.Read(patchFile)
	if err != nil {
		return fmt.Errorf("archivepatcher: reading patch: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCanceled, err)
	}

	oldBlob, err := deltablob.ApplyOld(oldSrc, toDeltablobUncompressRanges(p.UncompressRanges))
	if err != nil {
		return fmt.Errorf("archivepatcher: rebuilding old delta-friendly blob: %w", err)
	}
	if int64(len(oldBlob)) != p.DeltaFriendlyOldFileSize {
		return fmt.Errorf("%w: rebuilt old blob is %d bytes, patch expected %d", errs.ErrSizeMismatch, len(oldBlob), p.DeltaFriendlyOldFileSize)
	}

	staged, err := tempfile.Create(o.tempDir, "archive-patcher-new-blob")
	if err != nil {
		return err
	}
	defer staged.Remove()

	if err := reconstructNewBlob(oldBlob, p, staged); err != nil {
		return err
	}

	newBlobBytes, err := os.ReadFile(staged.Path())
	if err != nil {
		return fmt.Errorf("archivepatcher: reading reconstructed new blob: %w", err)
	}
	if int64(len(newBlobBytes)) != p.DeltaFriendlyNewFileSize {
		return fmt.Errorf("%w: reconstructed new blob is %d bytes, patch expected %d", errs.ErrSizeMismatch, len(newBlobBytes), p.DeltaFriendlyNewFileSize)
	}

	if len(p.RecompressRanges) > 0 {
		if err := deflate.CheckCompatibility(); err != nil {
			return fmt.Errorf("archivepatcher: %w", err)
		}
	}

	out, err := os.Create(newOutPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: creating output archive: %w", err)
	}
	defer out.Close()

	stream := deflate.NewRecompressionStream(out, toRangeParams(p.RecompressRanges))
	if _, err := bytes.NewReader(newBlobBytes).WriteTo(stream); err != nil {
		return fmt.Errorf("archivepatcher: recompressing output archive: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("archivepatcher: recompressing output archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("archivepatcher: recompressing output archive: %w", err)
	}

	if err := verifyOutputCRC32(newOutPath); err != nil {
		os.Remove(newOutPath)
		return err
	}

	return nil
}

// verifyOutputCRC32 re-parses the just-written archive and confirms every
// entry's uncompressed bytes hash to the CRC-32 its own central directory
// records. spec.md §9 calls this a SHOULD for defense-in-depth; this port
// resolves it to a MUST (see SPEC_FULL.md Open Question Decisions): a
// defective DEFLATE implementation or a bug anywhere upstream in the
// pipeline would otherwise silently produce output an ordinary unzip tool
// rejects, with no signal at patch-apply time.
func verifyOutputCRC32(outPath string) error {
	f, err := os.Open(outPath)
	if err != nil {
		return fmt.Errorf("archivepatcher: reopening output archive for verification: %w", err)
	}
	defer f.Close()

	src, err := bytesource.NewFileSource(f)
	if err != nil {
		return err
	}

	archive, err := zipfmt.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: output archive failed to parse: %v", errs.ErrOutputMismatch, err)
	}

	for _, e := range archive.Entries {
		payload, err := bytesource.ReadRange(src, e.PayloadRange)
		if err != nil {
			return fmt.Errorf("%w: reading %q: %v", errs.ErrOutputMismatch, e.Path, err)
		}

		var uncompressed []byte
		switch format.CompressionMethod(e.CompressionMethod) {
		case format.MethodStored:
			uncompressed = payload
		case format.MethodDeflate:
			uncompressed, err = deflate.Inflate(payload)
			if err != nil {
				return fmt.Errorf("%w: inflating %q: %v", errs.ErrOutputMismatch, e.Path, err)
			}
		default:
			continue
		}

		if bytesource.CRC32(uncompressed) != e.CRC32 {
			return fmt.Errorf("%w: %q CRC-32 mismatch: got %08x, want %08x",
				errs.ErrOutputMismatch, e.Path, bytesource.CRC32(uncompressed), e.CRC32)
		}
	}

	return nil
}

// reconstructNewBlob applies every DeltaDescriptor in order, writing the
// reconstructed new delta-friendly blob to staged.
func reconstructNewBlob(oldBlob []byte, p *patch.Patch, staged *tempfile.File) error {
	for i, d := range p.Deltas {
		if d.Format != format.DeltaFormatBsdiff {
			return fmt.Errorf("%w: delta descriptor %d uses unsupported format %s", errs.ErrPatchCorrupt, i, d.Format)
		}

		oldRange := oldBlob[d.OldBlobOffset : d.OldBlobOffset+d.OldBlobLength]
		if err := bsdiff.Apply(oldRange, d.DeltaBytes, d.NewBlobLength, staged); err != nil {
			return fmt.Errorf("archivepatcher: applying delta descriptor %d: %w", i, err)
		}
	}

	return nil
}

func toPatchUncompressRanges(rs []deltablob.UncompressedRange) []patch.UncompressRange {
	out := make([]patch.UncompressRange, len(rs))
	for i, r := range rs {
		out[i] = patch.UncompressRange{ArchiveOffset: r.ArchiveRange.Offset, ArchiveLength: r.ArchiveRange.Length, Params: r.Params}
	}
	return out
}

func toPatchRecompressRanges(rs []deltablob.RecompressedRange) []patch.RecompressRange {
	out := make([]patch.RecompressRange, len(rs))
	for i, r := range rs {
		out[i] = patch.RecompressRange{BlobOffset: r.BlobRange.Offset, BlobLength: r.BlobRange.Length, Params: r.Params}
	}
	return out
}

func toDeltablobUncompressRanges(rs []patch.UncompressRange) []deltablob.UncompressedRange {
	out := make([]deltablob.UncompressedRange, len(rs))
	for i, r := range rs {
		out[i] = deltablob.UncompressedRange{ArchiveRange: bytesource.Range{Offset: r.ArchiveOffset, Length: r.ArchiveLength}, Params: r.Params}
	}
	return out
}

func toRangeParams(rs []patch.RecompressRange) []deflate.RangeParams {
	out := make([]deflate.RangeParams, len(rs))
	for i, r := range rs {
		out[i] = deflate.RangeParams{Range: bytesource.Range{Offset: r.BlobOffset, Length: r.BlobLength}, Params: r.Params}
	}
	return out
}
