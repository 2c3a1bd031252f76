// Package deflate reproduces and re-applies the DEFLATE compression a ZIP
// entry was originally built with.
//
// A patch built from the uncompressed form of an entry is only useful if
// the applier can re-deflate it back to exactly the bytes the target
// archive expects; otherwise the recompressed entry's CRC-32 and the
// archive's central directory would disagree with what a verifier computes
// from the live bytes. Oracle exists to find which of the DEFLATE
// parameter combinations klauspost/compress/flate supports reproduces a
// given entry's compressed bytes, so the planner can decide whether that
// entry is eligible for uncompression at all.
package deflate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/google/archive-patcher-sub004/errs"
	"github.com/google/archive-patcher-sub004/format"
)

// Inflate decompresses a raw (nowrap) DEFLATE stream, as stored in a ZIP
// entry's payload.
func Inflate(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate: inflate: %w", err)
	}

	return out, nil
}

// sentinelInput is the fixed probe payload for the compressibility-window
// pre-check: a short but non-trivial input whose compressed form must
// round-trip and must be produced deterministically by compressWith.
var sentinelInput = []byte("archive-patcher deflate compatibility window probe 0123456789 0123456789")

// probeCompatible runs the compressibility-window pre-check: deflate
// sentinelInput twice with a fixed parameter set and confirm both runs
// agree byte-for-byte, then inflate the result and confirm it reproduces
// sentinelInput exactly. A DEFLATE implementation that fails either check
// cannot be trusted to reproduce any entry's compressed bytes, so the
// oracle must treat every entry as NOT_REPRODUCIBLE rather than risk
// reporting a false match.
func probeCompatible() bool {
	p := format.DeflateParams{Level: 6, Strategy: format.StrategyDefault, NoWrap: true}

	a, err := compressWith(p, sentinelInput)
	if err != nil {
		return false
	}
	b, err := compressWith(p, sentinelInput)
	if err != nil || !bytes.Equal(a, b) {
		return false
	}

	out, err := Inflate(a)
	if err != nil {
		return false
	}

	return bytes.Equal(out, sentinelInput)
}

// CheckCompatibility runs the compressibility-window pre-check fresh (it is
// not cached across calls, per the "compute once per operation, never
// across clients" rule) and reports errs.ErrIncompatibleDeflate if the
// local klauspost/compress/flate build cannot reproduce its own output.
// The applier must call this before recompressing any range: unlike the
// generator, which can fall back to DEFLATE_UNSUITABLE plans, the applier
// has no fallback once a patch already commits to specific DEFLATE
// parameters.
func CheckCompatibility() error {
	if !probeCompatible() {
		return errs.ErrIncompatibleDeflate
	}
	return nil
}

// Oracle searches format.AllCandidates() for the DEFLATE parameters that
// reproduce a given entry's compressed bytes from its uncompressed form.
// An Oracle instance caches the most recently successful parameters per
// file extension, since archives routinely compress many entries of the
// same type with the same tool and settings; it does not cache anything
// globally across Oracle instances, matching the per-operation scope the
// rest of the generate/apply pipeline uses.
type Oracle struct {
	mu         sync.Mutex
	preferred  map[string]format.DeflateParams
	compatible bool
}

// NewOracle returns an Oracle with an empty preference cache, after running
// the compressibility-window pre-check once. If the check fails, Suggest
// reports NOT_REPRODUCIBLE (ok=false, no error) for every entry rather than
// erroring outright, matching spec.md §6: generation MAY still succeed
// using fallback DEFLATE_UNSUITABLE plans when the DEFLATE implementation
// is incompatible.
func NewOracle() *Oracle {
	return &Oracle{preferred: make(map[string]format.DeflateParams), compatible: probeCompatible()}
}

// Suggest searches for DEFLATE parameters that compress uncompressed to
// exactly compressed. pathHint is the entry's archive path, used only to
// key the per-extension preference cache; it does not affect correctness.
//
// It returns ok=false, with no error, if no candidate reproduces the
// bytes: that is the expected outcome for entries compressed by a tool
// klauspost/compress/flate cannot emulate; see format.ReasonDeflateUnsuitable.
func (o *Oracle) Suggest(ctx context.Context, pathHint string, uncompressed, compressed []byte) (format.DeflateParams, bool, error) {
	if !o.compatible {
		return format.DeflateParams{}, false, nil
	}

	ext := strings.ToLower(filepath.Ext(pathHint))

	candidates := o.orderedCandidates(ext)

	// Filtered and Default strategies are indistinguishable to this
	// engine (see compressWith), so once a given level's Default/Filtered
	// output has been tried it never needs recomputing for the other.
	tried := make(map[string][]byte, len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return format.DeflateParams{}, false, fmt.Errorf("%w: %v", errs.ErrCanceled, err)
		}

		key := effectiveKey(c)
		out, ok := tried[key]
		if !ok {
			var err error
			out, err = compressWith(c, uncompressed)
			if err != nil {
				return format.DeflateParams{}, false, fmt.Errorf("deflate: candidate %+v: %w", c, err)
			}
			tried[key] = out
		}

		if bytes.Equal(out, compressed) {
			o.remember(ext, c)
			return c, true, nil
		}
	}

	return format.DeflateParams{}, false, nil
}

// orderedCandidates returns format.AllCandidates() with ext's previously
// successful parameters (if any) moved to the front, so repeat entries of
// the same type resolve in a single compression attempt.
func (o *Oracle) orderedCandidates(ext string) []format.DeflateParams {
	all := format.AllCandidates()

	o.mu.Lock()
	preferred, ok := o.preferred[ext]
	o.mu.Unlock()
	if !ok {
		return all
	}

	ordered := make([]format.DeflateParams, 0, len(all)+1)
	ordered = append(ordered, preferred)
	for _, c := range all {
		if c != preferred {
			ordered = append(ordered, c)
		}
	}

	return ordered
}

func (o *Oracle) remember(ext string, p format.DeflateParams) {
	o.mu.Lock()
	o.preferred[ext] = p
	o.mu.Unlock()
}

// effectiveKey collapses candidates that compressWith cannot tell apart:
// klauspost/compress/flate, like the standard library it mirrors, exposes
// Huffman-only encoding as a distinct pseudo-level (flate.HuffmanOnly) but
// has no equivalent of zlib's Z_FILTERED strategy, so StrategyFiltered
// compresses identically to StrategyDefault at the same level under this
// engine. Both are still offered by format.AllCandidates() for parity with
// the wire format's strategy field, but only one is ever actually run.
func effectiveKey(p format.DeflateParams) string {
	if p.Strategy == format.StrategyHuffmanOnly {
		return "huffman"
	}

	return fmt.Sprintf("level:%d", p.Level)
}

// compressWith deflates data with p, returning the raw (nowrap) DEFLATE
// stream bytes.
func compressWith(p format.DeflateParams, data []byte) ([]byte, error) {
	level := p.Level
	if p.Strategy == format.StrategyHuffmanOnly {
		level = flate.HuffmanOnly
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
