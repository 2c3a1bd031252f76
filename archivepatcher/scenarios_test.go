package archivepatcher

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/archive-patcher-sub004/format"
	"github.com/google/archive-patcher-sub004/planner"
)

// flateNewWriter wraps klauspost/compress/flate.NewWriter as a zip.Compressor
// so test fixtures are built with the exact DEFLATE implementation the
// reproducibility oracle probes against (see deflate.compressWith): using
// the standard library's compress/flate here would make some of these
// fixtures DEFLATE_UNSUITABLE instead of exercising the intended scenario.
func flateNewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return flate.NewWriter(w, level)
}

// forceNeitherModifier downgrades every entry to UncompressNeither,
// exercising the Modifier hook end to end through GenerateDelta.
type forceNeitherModifier struct{}

func (forceNeitherModifier) Adjust(entry *planner.PreDiffPlanEntry) {
	entry.Option = format.UncompressNeither
	entry.Reason = format.ReasonUnsuitable
}

func TestGenerateDelta_ModifierForcesNeitherStillRoundTrips(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.zip")
	newPath := filepath.Join(dir, "new.zip")
	patchPath := filepath.Join(dir, "delta.patch")
	rebuiltPath := filepath.Join(dir, "rebuilt.zip")

	writeZip(t, oldPath, []zipEntrySpec{{name: "a.txt", content: []byte("version one of the content"), method: zip.Deflate}})
	writeZip(t, newPath, []zipEntrySpec{{name: "a.txt", content: []byte("version two of the content!"), method: zip.Deflate}})

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath, WithModifiers(forceNeitherModifier{})))
	require.NoError(t, ApplyDelta(ctx, oldPath, patchPath, rebuiltPath))

	want := readZipEntries(t, newPath)
	got := readZipEntries(t, rebuiltPath)
	assert.Equal(t, want, got)
}

func TestApplyDelta_WithCustomTempDir(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.zip")
	newPath := filepath.Join(dir, "new.zip")
	patchPath := filepath.Join(dir, "delta.patch")
	rebuiltPath := filepath.Join(dir, "rebuilt.zip")
	stagingDir := filepath.Join(dir, "staging")
	require.NoError(t, os.Mkdir(stagingDir, 0o755))

	writeZip(t, oldPath, []zipEntrySpec{{name: "a.txt", content: []byte("old content here"), method: zip.Deflate}})
	writeZip(t, newPath, []zipEntrySpec{{name: "a.txt", content: []byte("new content here"), method: zip.Deflate}})

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath))
	require.NoError(t, ApplyDelta(ctx, oldPath, patchPath, rebuiltPath, WithTempDir(stagingDir)))

	want := readZipEntries(t, newPath)
	got := readZipEntries(t, rebuiltPath)
	assert.Equal(t, want, got)

	leftovers, err := os.ReadDir(stagingDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "staged blob should be removed after ApplyDelta returns")
}

func TestApplyDelta_RejectsTruncatedPatch(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.zip")
	newPath := filepath.Join(dir, "new.zip")
	patchPath := filepath.Join(dir, "delta.patch")
	truncatedPath := filepath.Join(dir, "truncated.patch")
	rebuiltPath := filepath.Join(dir, "rebuilt.zip")

	writeZip(t, oldPath, []zipEntrySpec{{name: "a.txt", content: []byte("abc"), method: zip.Deflate}})
	writeZip(t, newPath, []zipEntrySpec{{name: "a.txt", content: []byte("abcdef"), method: zip.Deflate}})

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath))

	full, err := os.ReadFile(patchPath)
	require.NoError(t, err)
	require.True(t, len(full) > 10)
	require.NoError(t, os.WriteFile(truncatedPath, full[:len(full)-5], 0o644))

	err = ApplyDelta(ctx, oldPath, truncatedPath, rebuiltPath)
	assert.Error(t, err)
}

func TestApplyDelta_RejectsWrongOldArchive(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.zip")
	otherOldPath := filepath.Join(dir, "other-old.zip")
	newPath := filepath.Join(dir, "new.zip")
	patchPath := filepath.Join(dir, "delta.patch")
	rebuiltPath := filepath.Join(dir, "rebuilt.zip")

	writeZip(t, oldPath, []zipEntrySpec{{name: "a.txt", content: []byte("the original old content"), method: zip.Deflate}})
	writeZip(t, otherOldPath, []zipEntrySpec{{name: "a.txt", content: []byte("a completely different old file"), method: zip.Deflate}})
	writeZip(t, newPath, []zipEntrySpec{{name: "a.txt", content: []byte("the original new content"), method: zip.Deflate}})

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath))

	err := ApplyDelta(ctx, otherOldPath, patchPath, rebuiltPath)
	assert.Error(t, err)
}

func TestGenerateDelta_RejectsMissingOldArchive(t *testing.T) {
	dir := t.TempDir()
	newPath := filepath.Join(dir, "new.zip")
	patchPath := filepath.Join(dir, "delta.patch")
	writeZip(t, newPath, []zipEntrySpec{{name: "a.txt", content: []byte("abc"), method: zip.Store}})

	err := GenerateDelta(context.Background(), filepath.Join(dir, "does-not-exist.zip"), newPath, patchPath)
	assert.Error(t, err)
}

func TestRoundTrip_DeflateLevelChangeSameContent(t *testing.T) {
	content := bytes.Repeat([]byte("the same bytes compressed at two different levels "), 80)

	oldPath, newPath, patchPath, rebuiltPath := scenarioPaths(t)
	writeZipWithLevel(t, oldPath, "data.bin", content, 6)
	writeZipWithLevel(t, newPath, "data.bin", content, 9)

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath))
	require.NoError(t, ApplyDelta(ctx, oldPath, patchPath, rebuiltPath))

	want := readZipEntries(t, newPath)
	got := readZipEntries(t, rebuiltPath)
	assert.Equal(t, want, got)
}

func TestRoundTrip_DeflatedToStoredWithContentChange(t *testing.T) {
	oldPath, newPath, patchPath, rebuiltPath := scenarioPaths(t)
	writeZip(t, oldPath, []zipEntrySpec{{name: "x.bin", content: bytes.Repeat([]byte("compressible filler "), 30), method: zip.Deflate}})
	writeZip(t, newPath, []zipEntrySpec{{name: "x.bin", content: []byte("totally different, short, and stored")}})

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath))
	require.NoError(t, ApplyDelta(ctx, oldPath, patchPath, rebuiltPath))

	want := readZipEntries(t, newPath)
	got := readZipEntries(t, rebuiltPath)
	assert.Equal(t, want, got)
}

// methodBzip2 mimics an entry using a compression method the planner cannot
// reason about (spec.md §8 scenario 4): the oracle and deflate.Inflate only
// understand STORED/DEFLATE, so such an entry must flow through the binary
// delta untouched while everything else in the archive still round-trips.
const methodBzip2 uint16 = 12

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

func init() {
	zip.RegisterCompressor(methodBzip2, func(w io.Writer) (io.WriteCloser, error) {
		return nopWriteCloser{w}, nil
	})
	zip.RegisterDecompressor(methodBzip2, func(r io.Reader) io.ReadCloser {
		return nopReadCloser{r}
	})
}

func TestRoundTrip_UnsupportedCompressionMethodPassesThrough(t *testing.T) {
	oldPath, newPath, patchPath, rebuiltPath := scenarioPaths(t)
	writeZip(t, oldPath, []zipEntrySpec{
		{name: "plain.txt", content: []byte("ordinary deflate entry"), method: zip.Deflate},
		{name: "odd.dat", content: []byte("old bzip2-tagged bytes"), method: methodBzip2},
	})
	writeZip(t, newPath, []zipEntrySpec{
		{name: "plain.txt", content: []byte("ordinary deflate entry, now longer"), method: zip.Deflate},
		{name: "odd.dat", content: []byte("new bzip2-tagged bytes, different"), method: methodBzip2},
	})

	ctx := context.Background()
	require.NoError(t, GenerateDelta(ctx, oldPath, newPath, patchPath))
	require.NoError(t, ApplyDelta(ctx, oldPath, patchPath, rebuiltPath))

	want := readZipEntries(t, newPath)
	got := readZipEntries(t, rebuiltPath)
	assert.Equal(t, want, got)
}

// TestPatchSmallerThanNewArchive exercises spec.md §8's "patch is strictly
// smaller than the new archive bytes" expectation for a realistic multi-entry
// archive with mostly-similar content across versions.
func TestPatchSmallerThanNewArchive(t *testing.T) {
	mk := func(seed string) []byte { return bytes.Repeat([]byte(seed), 200) }

	oldPath, newPath, patchPath, _ := scenarioPaths(t)
	writeZip(t, oldPath, []zipEntrySpec{
		{name: "one.txt", content: mk("alpha bravo charlie delta "), method: zip.Deflate},
		{name: "two.txt", content: mk("echo foxtrot golf hotel "), method: zip.Deflate},
		{name: "three.bin", content: mk("\x00\x01\x02\x03"), method: zip.Store},
	})
	writeZip(t, newPath, []zipEntrySpec{
		{name: "one.txt", content: mk("alpha bravo charlie delta "), method: zip.Deflate},
		{name: "two.txt", content: append(mk("echo foxtrot golf hotel "), []byte("! one more word")...), method: zip.Deflate},
		{name: "three.bin", content: mk("\x00\x01\x02\x03"), method: zip.Store},
	})

	require.NoError(t, GenerateDelta(context.Background(), oldPath, newPath, patchPath))

	patchInfo, err := os.Stat(patchPath)
	require.NoError(t, err)
	newInfo, err := os.Stat(newPath)
	require.NoError(t, err)
	assert.Less(t, patchInfo.Size(), newInfo.Size())
}

func scenarioPaths(t *testing.T) (oldPath, newPath, patchPath, rebuiltPath string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "old.zip"), filepath.Join(dir, "new.zip"), filepath.Join(dir, "delta.patch"), filepath.Join(dir, "rebuilt.zip")
}

func writeZipWithLevel(t *testing.T, path, name string, content []byte, level int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flateNewWriter(out, level)
	})

	fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
