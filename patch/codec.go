package patch

import (
	"fmt"
	"io"

	"github.com/google/archive-patcher-sub004/endian"
	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/format"
)

var be = endian.GetBigEndianEngine()

// deflateParamsLen is the packed wire size of a format.DeflateParams: one
// signed byte for Level (covers 1-9 and flate.HuffmanOnly's -2), one byte
// for Strategy, one byte for NoWrap.
const deflateParamsLen = 3

func appendDeflateParams(buf []byte, p format.DeflateParams) []byte {
	buf = append(buf, byte(int8(p.Level)))
	buf = append(buf, byte(p.Strategy))
	if p.NoWrap {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func readDeflateParams(buf []byte) format.DeflateParams {
	return format.DeflateParams{
		Level:    int(int8(buf[0])),
		Strategy: format.DeflateStrategy(buf[1]),
		NoWrap:   buf[2] != 0,
	}
}

func appendUncompressRange(buf []byte, r UncompressRange) []byte {
	buf = be.AppendUint64(buf, uint64(r.ArchiveOffset))
	buf = be.AppendUint64(buf, uint64(r.ArchiveLength))
	return appendDeflateParams(buf, r.Params)
}

func appendRecompressRange(buf []byte, r RecompressRange) []byte {
	buf = be.AppendUint64(buf, uint64(r.BlobOffset))
	buf = be.AppendUint64(buf, uint64(r.BlobLength))
	return appendDeflateParams(buf, r.Params)
}

func appendDeltaDescriptor(buf []byte, d DeltaDescriptor) []byte {
	buf = append(buf, byte(d.Format))
	buf = be.AppendUint64(buf, uint64(d.OldBlobOffset))
	buf = be.AppendUint64(buf, uint64(d.OldBlobLength))
	buf = be.AppendUint64(buf, uint64(d.NewBlobOffset))
	buf = be.AppendUint64(buf, uint64(d.NewBlobLength))
	buf = be.AppendUint64(buf, uint64(len(d.DeltaBytes)))
	buf = append(buf, d.DeltaBytes...)
	return buf
}

// Write serializes p to w as a single framed patch container.
func (p *Patch) Write(w io.Writer) error {
	buf := make([]byte, 0, 256+len(p.Deltas)*64)

	buf = append(buf, Magic...)
	buf = be.AppendUint32(buf, p.Flags)
	buf = be.AppendUint64(buf, uint64(p.DeltaFriendlyOldFileSize))
	buf = be.AppendUint64(buf, uint64(p.DeltaFriendlyNewFileSize))

	buf = be.AppendUint32(buf, uint32(len(p.UncompressRanges)))
	for _, r := range p.UncompressRanges {
		buf = appendUncompressRange(buf, r)
	}

	buf = be.AppendUint32(buf, uint32(len(p.RecompressRanges)))
	for _, r := range p.RecompressRanges {
		buf = appendRecompressRange(buf, r)
	}

	buf = be.AppendUint32(buf, uint32(len(p.Deltas)))
	for _, d := range p.Deltas {
		buf = appendDeltaDescriptor(buf, d)
	}

	_, err := w.Write(buf)
	return err
}

// cursor reads sequentially from buf, failing closed (returning
// errs.ErrPatchCorrupt) the moment a read would run past the end of buf.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("%w: patch container truncated", errs.ErrPatchCorrupt)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return be.Uint32(b), nil
}

func (c *cursor) uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return be.Uint64(b), nil
}

func (c *cursor) deflateParams() (format.DeflateParams, error) {
	b, err := c.take(deflateParamsLen)
	if err != nil {
		return format.DeflateParams{}, err
	}
	return readDeflateParams(b), nil
}

// Read parses a patch container previously produced by (*Patch).Write.
func Read(r io.Reader) (*Patch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("patch: reading container: %w", err)
	}

	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: bad patch magic", errs.ErrPatchCorrupt)
	}

	c := &cursor{buf: data, pos: len(Magic)}

	flags, err := c.uint32()
	if err != nil {
		return nil, err
	}
	oldSize, err := c.uint64()
	if err != nil {
		return nil, err
	}
	newSize, err := c.uint64()
	if err != nil {
		return nil, err
	}

	p := &Patch{
		Flags:                    flags,
		DeltaFriendlyOldFileSize: int64(oldSize),
		DeltaFriendlyNewFileSize: int64(newSize),
	}

	uncompressCount, err := c.uint32()
	if err != nil {
		return nil, err
	}
	p.UncompressRanges = make([]UncompressRange, uncompressCount)
	for i := range p.UncompressRanges {
		offset, err := c.uint64()
		if err != nil {
			return nil, err
		}
		length, err := c.uint64()
		if err != nil {
			return nil, err
		}
		params, err := c.deflateParams()
		if err != nil {
			return nil, err
		}
		p.UncompressRanges[i] = UncompressRange{ArchiveOffset: int64(offset), ArchiveLength: int64(length), Params: params}
	}

	recompressCount, err := c.uint32()
	if err != nil {
		return nil, err
	}
	p.RecompressRanges = make([]RecompressRange, recompressCount)
	for i := range p.RecompressRanges {
		offset, err := c.uint64()
		if err != nil {
			return nil, err
		}
		length, err := c.uint64()
		if err != nil {
			return nil, err
		}
		params, err := c.deflateParams()
		if err != nil {
			return nil, err
		}
		p.RecompressRanges[i] = RecompressRange{BlobOffset: int64(offset), BlobLength: int64(length), Params: params}
	}

	deltaCount, err := c.uint32()
	if err != nil {
		return nil, err
	}
	p.Deltas = make([]DeltaDescriptor, deltaCount)
	for i := range p.Deltas {
		formatByte, err := c.take(1)
		if err != nil {
			return nil, err
		}
		oldOffset, err := c.uint64()
		if err != nil {
			return nil, err
		}
		oldLength, err := c.uint64()
		if err != nil {
			return nil, err
		}
		newOffset, err := c.uint64()
		if err != nil {
			return nil, err
		}
		newLength, err := c.uint64()
		if err != nil {
			return nil, err
		}
		deltaLen, err := c.uint64()
		if err != nil {
			return nil, err
		}
		deltaBytes, err := c.take(int(deltaLen))
		if err != nil {
			return nil, err
		}

		p.Deltas[i] = DeltaDescriptor{
			Format:        format.DeltaFormat(formatByte[0]),
			OldBlobOffset: int64(oldOffset),
			OldBlobLength: int64(oldLength),
			NewBlobOffset: int64(newOffset),
			NewBlobLength: int64(newLength),
			DeltaBytes:    append([]byte{}, deltaBytes...),
		}
	}

	if err := validateDeltaOrdering(p.Deltas, p.DeltaFriendlyNewFileSize); err != nil {
		return nil, err
	}

	return p, nil
}

// validateDeltaOrdering enforces that DeltaDescriptors cover strictly
// increasing, gap-free, non-overlapping ranges of the new delta-friendly
// blob whose union is exactly [0, newFileSize): the applier reconstructs
// the new blob by writing each descriptor's output in order, and a corrupt
// or adversarial patch that overlapped or skipped ranges could make it
// write past where it validated bounds, or leave part of the output
// unwritten.
func validateDeltaOrdering(deltas []DeltaDescriptor, newFileSize int64) error {
	var prevEnd int64
	for i, d := range deltas {
		if d.NewBlobLength < 0 || d.OldBlobLength < 0 {
			return fmt.Errorf("%w: delta descriptor %d has a negative length", errs.ErrPatchCorrupt, i)
		}
		if d.NewBlobOffset != prevEnd {
			return fmt.Errorf("%w: delta descriptor %d new-blob offset %d does not match previous end %d",
				errs.ErrPatchCorrupt, i, d.NewBlobOffset, prevEnd)
		}
		prevEnd = d.NewBlobOffset + d.NewBlobLength
	}
	if prevEnd != newFileSize {
		return fmt.Errorf("%w: delta descriptors cover %d bytes, expected %d", errs.ErrPatchCorrupt, prevEnd, newFileSize)
	}
	return nil
}
