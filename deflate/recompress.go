package deflate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/google/archive-patcher-sub004/format"
	"github.com/google/archive-patcher-sub004/internal/bytesource"
)

// RangeParams pairs a byte range in the delta-friendly new blob's logical
// address space with the DEFLATE parameters the oracle discovered for it.
// Ranges must be supplied to NewRecompressionStream sorted by Offset and
// non-overlapping; RecompressionStream re-deflates exactly those bytes and
// passes every other byte through unchanged.
type RangeParams struct {
	Range  bytesource.Range
	Params format.DeflateParams
}

// RecompressionStream consumes the fully-reconstructed delta-friendly new
// blob, byte by byte, in order, and writes the final target archive to an
// underlying io.Writer: bytes inside a recompression range are buffered and
// re-deflated with that range's DeflateParams once the range closes; every
// other byte is copied through unchanged.
//
// Ranges are consumed strictly in order; Write must be called with the
// blob's bytes in ascending offset order (callers never seek backward
// while reconstructing the new blob, so this holds naturally).
type RecompressionStream struct {
	w      io.Writer
	ranges []RangeParams
	next   int // index into ranges of the next range to enter

	pos int64 // logical offset of the next byte Write will receive

	active    bool
	activeEnd int64
	buf       bytes.Buffer
	params    format.DeflateParams
}

// NewRecompressionStream returns a stream that writes the recompressed
// archive to w. ranges must be sorted by Range.Offset and non-overlapping.
func NewRecompressionStream(w io.Writer, ranges []RangeParams) *RecompressionStream {
	return &RecompressionStream{w: w, ranges: ranges}
}

// Write implements io.Writer. It must be called with the new blob's bytes
// delivered in contiguous, ascending logical order; short writes do not
// occur except on the underlying writer's error.
func (s *RecompressionStream) Write(p []byte) (int, error) {
	total := len(p)

	for len(p) > 0 {
		if !s.active {
			if err := s.maybeEnterRange(); err != nil {
				return total - len(p), err
			}
		}

		if s.active {
			remaining := s.activeEnd - s.pos
			n := int64(len(p))
			if n > remaining {
				n = remaining
			}

			if _, err := s.buf.Write(p[:n]); err != nil {
				return total - len(p), err
			}
			p = p[n:]
			s.pos += n

			if s.pos == s.activeEnd {
				if err := s.flushActive(); err != nil {
					return total - len(p), err
				}
			}

			continue
		}

		// Passthrough until the next range begins, or to the end of p.
		n := int64(len(p))
		if s.next < len(s.ranges) {
			untilNext := s.ranges[s.next].Range.Offset - s.pos
			if untilNext < n {
				n = untilNext
			}
		}
		if n == 0 {
			// maybeEnterRange above should have activated; avoid an
			// infinite loop defensively.
			n = int64(len(p))
		}

		if _, err := s.w.Write(p[:n]); err != nil {
			return total - len(p), err
		}
		p = p[n:]
		s.pos += n
	}

	return total, nil
}

func (s *RecompressionStream) maybeEnterRange() error {
	if s.next >= len(s.ranges) {
		return nil
	}

	r := s.ranges[s.next]
	if s.pos < r.Range.Offset {
		return nil
	}
	if s.pos != r.Range.Offset {
		return fmt.Errorf("deflate: recompression range %s begins before current position %d", r.Range, s.pos)
	}

	s.active = true
	s.activeEnd = r.Range.End()
	s.params = r.Params
	s.buf.Reset()
	s.next++

	return nil
}

func (s *RecompressionStream) flushActive() error {
	level := s.params.Level
	if s.params.Strategy == format.StrategyHuffmanOnly {
		level = flate.HuffmanOnly
	}

	fw, err := flate.NewWriter(s.w, level)
	if err != nil {
		return fmt.Errorf("deflate: recompress: %w", err)
	}
	if _, err := fw.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("deflate: recompress: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("deflate: recompress: %w", err)
	}

	s.active = false
	s.buf.Reset()

	return nil
}

// Close verifies the stream ended cleanly: no range was left partially
// written.
func (s *RecompressionStream) Close() error {
	if s.active {
		return fmt.Errorf("deflate: recompression stream closed mid-range at offset %d", s.pos)
	}

	return nil
}
