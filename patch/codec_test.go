package patch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/format"
)

func samplePatch() *Patch {
	return &Patch{
		Flags:                    0,
		DeltaFriendlyOldFileSize: 1000,
		DeltaFriendlyNewFileSize: 2000,
		UncompressRanges: []UncompressRange{
			{ArchiveOffset: 10, ArchiveLength: 100, Params: format.DeflateParams{Level: 6, Strategy: format.StrategyDefault, NoWrap: true}},
		},
		RecompressRanges: []RecompressRange{
			{BlobOffset: 20, BlobLength: 150, Params: format.DeflateParams{Level: 9, Strategy: format.StrategyHuffmanOnly, NoWrap: true}},
		},
		Deltas: []DeltaDescriptor{
			{Format: format.DeltaFormatBsdiff, OldBlobOffset: 0, OldBlobLength: 1000, NewBlobOffset: 0, NewBlobLength: 2000, DeltaBytes: []byte("some delta bytes")},
		},
	}
}

func TestPatch_WriteReadRoundTrips(t *testing.T) {
	p := samplePatch()

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, p, got)
}

func TestRead_RejectsBadMagic(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("NOTAPATCH_somejunkafterward")))
	assert.ErrorIs(t, err, errs.ErrPatchCorrupt)
}

func TestRead_RejectsTruncated(t *testing.T) {
	p := samplePatch()
	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	truncated := buf.Bytes()[:len(buf.Bytes())-5]
	_, err := Read(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, errs.ErrPatchCorrupt)
}

func TestRead_RejectsOverlappingDeltaDescriptors(t *testing.T) {
	p := &Patch{
		Deltas: []DeltaDescriptor{
			{NewBlobOffset: 0, NewBlobLength: 100},
			{NewBlobOffset: 50, NewBlobLength: 100},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	_, err := Read(&buf)
	assert.ErrorIs(t, err, errs.ErrPatchCorrupt)
}

func TestRead_RejectsGapBetweenDeltaDescriptors(t *testing.T) {
	p := &Patch{
		DeltaFriendlyNewFileSize: 250,
		Deltas: []DeltaDescriptor{
			{NewBlobOffset: 0, NewBlobLength: 100},
			{NewBlobOffset: 150, NewBlobLength: 100},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	_, err := Read(&buf)
	assert.ErrorIs(t, err, errs.ErrPatchCorrupt)
}

func TestRead_RejectsDeltasNotCoveringWholeNewBlob(t *testing.T) {
	p := &Patch{
		DeltaFriendlyNewFileSize: 200,
		Deltas: []DeltaDescriptor{
			{NewBlobOffset: 0, NewBlobLength: 100},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	_, err := Read(&buf)
	assert.ErrorIs(t, err, errs.ErrPatchCorrupt)
}

func TestPatch_EmptyRoundTrips(t *testing.T) {
	p := &Patch{}

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, p.Flags, got.Flags)
	assert.Empty(t, got.UncompressRanges)
	assert.Empty(t, got.RecompressRanges)
	assert.Empty(t, got.Deltas)
}
