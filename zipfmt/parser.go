package zipfmt

import (
	"fmt"

	"github.com/google/archive-patcher-sub004/endian"
	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/internal/bytesource"
)

var le = endian.GetLittleEndianEngine()

// Parse reads src's ZIP structural layout: the end-of-central-directory
// record, every central-directory entry, and the local header each one
// points at. It returns errs.ErrMalformedArchive if the structure is
// inconsistent and errs.ErrUnsupportedArchive for ZIP64 archives, archives
// using a trailing data descriptor, or a spanned/split archive — none of
// which the rest of the pipeline handles.
func Parse(src bytesource.Source) (*MinimalZipArchive, error) {
	eocdOffset, eocdRange, err := findEOCD(src)
	if err != nil {
		return nil, err
	}

	eocd, err := bytesource.ReadRange(src, bytesource.Range{Offset: eocdOffset, Length: eocdFixedLen})
	if err != nil {
		return nil, err
	}

	diskNumber := le.Uint16(eocd[4:6])
	centralDirDisk := le.Uint16(eocd[6:8])
	entriesOnDisk := le.Uint16(eocd[8:10])
	totalEntries := le.Uint16(eocd[10:12])
	centralDirSize := le.Uint32(eocd[12:16])
	centralDirOffset := le.Uint32(eocd[16:20])

	if diskNumber != 0 || centralDirDisk != 0 || entriesOnDisk != totalEntries {
		return nil, fmt.Errorf("%w: spanned/split archives are not supported", errs.ErrUnsupportedArchive)
	}
	if centralDirOffset == zip64Marker || centralDirSize == zip64Marker || totalEntries == 0xffff {
		return nil, fmt.Errorf("%w: ZIP64 archives are not supported", errs.ErrUnsupportedArchive)
	}

	cdRange := bytesource.Range{Offset: int64(centralDirOffset), Length: int64(centralDirSize)}
	entries, err := parseCentralDirectory(src, cdRange, int(totalEntries))
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if err := resolveLocalHeader(src, &entries[i]); err != nil {
			return nil, err
		}
	}

	return &MinimalZipArchive{
		Source:                src,
		Entries:               entries,
		CentralDirectoryRange: cdRange,
		EOCDRange:             eocdRange,
	}, nil
}

// findEOCD scans backward from the end of src for the end-of-central-
// directory signature. The comment field is variable length (0-65535
// bytes), so the signature is not at a fixed offset from the end of the
// file; every candidate position within the maximum possible comment
// window is checked against the recorded comment length for consistency.
func findEOCD(src bytesource.Source) (offset int64, r bytesource.Range, err error) {
	size := src.Size()
	if size < eocdFixedLen {
		return 0, r, fmt.Errorf("%w: file too small to contain an EOCD record", errs.ErrMalformedArchive)
	}

	windowLen := int64(eocdFixedLen + maxCommentLen)
	if windowLen > size {
		windowLen = size
	}
	windowOffset := size - windowLen

	window, err := bytesource.ReadRange(src, bytesource.Range{Offset: windowOffset, Length: windowLen})
	if err != nil {
		return 0, r, err
	}

	for i := len(window) - eocdFixedLen; i >= 0; i-- {
		if le.Uint32(window[i:i+4]) != eocdSignature {
			continue
		}

		commentLen := int(le.Uint16(window[i+20 : i+22]))
		if i+eocdFixedLen+commentLen != len(window) {
			// Signature bytes that happen to occur inside the comment of an
			// earlier candidate; keep scanning backward.
			continue
		}

		eocdOffset := windowOffset + int64(i)
		return eocdOffset, bytesource.Range{Offset: eocdOffset, Length: int64(eocdFixedLen + commentLen)}, nil
	}

	return 0, r, fmt.Errorf("%w: no end-of-central-directory record found", errs.ErrMalformedArchive)
}

// parseCentralDirectory reads wantEntries fixed-layout central-directory
// records from cdRange, in on-disk order.
func parseCentralDirectory(src bytesource.Source, cdRange bytesource.Range, wantEntries int) ([]MinimalZipEntry, error) {
	buf, err := bytesource.ReadRange(src, cdRange)
	if err != nil {
		return nil, err
	}

	entries := make([]MinimalZipEntry, 0, wantEntries)
	pos := 0

	for len(entries) < wantEntries {
		if pos+centralDirectoryFixedLen > len(buf) {
			return nil, fmt.Errorf("%w: central directory record truncated", errs.ErrMalformedArchive)
		}
		rec := buf[pos:]

		if le.Uint32(rec[0:4]) != centralDirectorySignature {
			return nil, fmt.Errorf("%w: bad central directory signature at entry %d", errs.ErrMalformedArchive, len(entries))
		}

		gpFlag := le.Uint16(rec[8:10])
		method := le.Uint16(rec[10:12])
		crc32 := le.Uint32(rec[16:20])
		compressedSize := le.Uint32(rec[20:24])
		uncompressedSize := le.Uint32(rec[24:28])
		nameLen := int(le.Uint16(rec[28:30]))
		extraLen := int(le.Uint16(rec[30:32]))
		commentLen := int(le.Uint16(rec[32:34]))
		diskStart := le.Uint16(rec[34:36])
		localHeaderOffset := le.Uint32(rec[42:46])

		recLen := centralDirectoryFixedLen + nameLen + extraLen + commentLen
		if pos+recLen > len(buf) {
			return nil, fmt.Errorf("%w: central directory record %d overruns directory", errs.ErrMalformedArchive, len(entries))
		}

		if diskStart != 0 {
			return nil, fmt.Errorf("%w: spanned/split archives are not supported", errs.ErrUnsupportedArchive)
		}
		if gpFlag&gpFlagDataDescriptor != 0 {
			return nil, fmt.Errorf("%w: entries using a trailing data descriptor are not supported", errs.ErrUnsupportedArchive)
		}
		if compressedSize == zip64Marker || uncompressedSize == zip64Marker || localHeaderOffset == zip64Marker {
			return nil, fmt.Errorf("%w: ZIP64 archives are not supported", errs.ErrUnsupportedArchive)
		}

		name := string(rec[centralDirectoryFixedLen : centralDirectoryFixedLen+nameLen])

		entries = append(entries, MinimalZipEntry{
			Path:                name,
			CompressionMethod:   method,
			GeneralPurposeFlag:  gpFlag,
			CRC32:               crc32,
			CompressedSize:      int64(compressedSize),
			UncompressedSize:    int64(uncompressedSize),
			LocalHeaderOffset:   int64(localHeaderOffset),
		})

		pos += recLen
	}

	return entries, nil
}

// resolveLocalHeader reads the local header entry.LocalHeaderOffset points
// at and fills in LocalHeaderRange and PayloadRange. The local header's own
// filename/extra-field lengths, not the central directory's, determine
// where the payload actually starts: some tools pad or omit the extra
// field differently between the two copies.
func resolveLocalHeader(src bytesource.Source, entry *MinimalZipEntry) error {
	head, err := bytesource.ReadRange(src, bytesource.Range{Offset: entry.LocalHeaderOffset, Length: localHeaderFixedLen})
	if err != nil {
		return fmt.Errorf("%w: reading local header for %q: %v", errs.ErrMalformedArchive, entry.Path, err)
	}

	if le.Uint32(head[0:4]) != localHeaderSignature {
		return fmt.Errorf("%w: bad local header signature for %q", errs.ErrMalformedArchive, entry.Path)
	}

	nameLen := int(le.Uint16(head[26:28]))
	extraLen := int(le.Uint16(head[28:30]))

	payloadOffset := entry.LocalHeaderOffset + localHeaderFixedLen + int64(nameLen) + int64(extraLen)

	entry.LocalHeaderRange = bytesource.Range{
		Offset: entry.LocalHeaderOffset,
		Length: payloadOffset - entry.LocalHeaderOffset,
	}
	entry.PayloadRange = bytesource.Range{
		Offset: payloadOffset,
		Length: entry.CompressedSize,
	}

	if entry.PayloadRange.End() > src.Size() {
		return fmt.Errorf("%w: payload for %q extends past end of archive", errs.ErrMalformedArchive, entry.Path)
	}

	return nil
}
