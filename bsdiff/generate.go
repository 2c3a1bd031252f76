package bsdiff

import "github.com/google/archive-patcher-sub004/internal/pool"

// Generate computes a binary delta from oldBlob to newBlob: an encoded
// sequence of controlRecords plus the diff and extra byte streams they
// reference, serialized via encode. Apply(oldBlob, the returned bytes,
// len(newBlob), w) reconstructs newBlob exactly.
func Generate(oldBlob, newBlob []byte) ([]byte, error) {
	sa, release := buildSuffixArray(oldBlob)
	defer release()

	oldSize := len(oldBlob)
	newSize := len(newBlob)

	diffBuf := pool.GetStagingBuffer()
	defer pool.PutStagingBuffer(diffBuf)
	extraBuf := pool.GetStagingBuffer()
	defer pool.PutStagingBuffer(extraBuf)

	var controls []controlRecord
	diff := diffBuf.B
	extra := extraBuf.B

	scan, length := 0, 0
	lastScan, lastPos, lastOffset := 0, 0, 0
	var pos int32

	for scan < newSize {
		oldScore := 0
		scan += length
		scsc := scan

		for ; scan < newSize; scan++ {
			var l int
			l, pos = search(sa, oldBlob, newBlob[scan:], 0, oldSize)
			length = l

			for ; scsc < scan+length; scsc++ {
				if scsc+lastOffset < oldSize && oldBlob[scsc+lastOffset] == newBlob[scsc] {
					oldScore++
				}
			}

			if (length == oldScore && length != 0) || length > oldScore+8 {
				break
			}

			if scan+lastOffset < oldSize && oldBlob[scan+lastOffset] == newBlob[scan] {
				oldScore--
			}
		}

		if length == oldScore && scan != newSize {
			continue
		}

		// Extend the match backward from scan into the previous
		// unmatched region, and forward from lastScan, so the literal
		// diff/extra runs in between are as short as possible.
		s, sf, lenf := 0, 0, 0
		i := 0
		for lastScan+i < scan && lastPos+i < oldSize {
			if oldBlob[lastPos+i] == newBlob[lastScan+i] {
				s++
			}
			i++
			if s*2-i > sf*2-lenf {
				sf = s
				lenf = i
			}
		}

		lenb := 0
		if scan < newSize {
			s, sb := 0, 0
			for i := 1; scan >= lastScan+i && int(pos) >= i; i++ {
				if oldBlob[int(pos)-i] == newBlob[scan-i] {
					s++
				}
				if s*2-i > sb*2-lenb {
					sb = s
					lenb = i
				}
			}
		}

		if lastScan+lenf > scan-lenb {
			overlap := (lastScan + lenf) - (scan - lenb)
			s, ss, lens := 0, 0, 0
			for i := 0; i < overlap; i++ {
				if newBlob[lastScan+lenf-overlap+i] == oldBlob[lastPos+lenf-overlap+i] {
					s++
				}
				if newBlob[scan-lenb+i] == oldBlob[int(pos)-lenb+i] {
					s--
				}
				if s > ss {
					ss = s
					lens = i + 1
				}
			}

			lenf += lens - overlap
			lenb -= lens
		}

		for i := 0; i < lenf; i++ {
			diff = append(diff, newBlob[lastScan+i]-oldBlob[lastPos+i])
		}

		extraLen := (scan - lenb) - (lastScan + lenf)
		extra = append(extra, newBlob[lastScan+lenf:lastScan+lenf+extraLen]...)

		controls = append(controls, controlRecord{
			Copy:   int64(lenf),
			Insert: int64(extraLen),
			Seek:   int64(int(pos) - lenb - (lastPos + lenf)),
		})

		lastScan = scan - lenb
		lastPos = int(pos) - lenb
		lastOffset = int(pos) - scan
	}

	diffBuf.B = diff
	extraBuf.B = extra

	return encode(controls, diff, extra), nil
}
