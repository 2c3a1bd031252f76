package bsdiff

import (
	"fmt"

	"github.com/google/archive-patcher-sub004/errs"
)

// controlRecordLen is the on-wire size of one controlRecord: three
// sign-magnitude int64 fields.
const controlRecordLen = 24

// encode serializes controls, diff, and extra into the self-contained byte
// stream Apply expects: a 24-byte header giving each section's length,
// followed by the three sections back to back.
func encode(controls []controlRecord, diff, extra []byte) []byte {
	controlLen := len(controls) * controlRecordLen

	out := make([]byte, 24+controlLen+len(diff)+len(extra))
	putInt64(out[0:8], int64(controlLen))
	putInt64(out[8:16], int64(len(diff)))
	putInt64(out[16:24], int64(len(extra)))

	pos := 24
	for _, c := range controls {
		putInt64(out[pos:pos+8], c.Copy)
		putInt64(out[pos+8:pos+16], c.Insert)
		putInt64(out[pos+16:pos+24], c.Seek)
		pos += controlRecordLen
	}

	copy(out[pos:], diff)
	pos += len(diff)
	copy(out[pos:], extra)

	return out
}

// decode parses the byte stream encode produces.
func decode(data []byte) (controls []controlRecord, diff, extra []byte, err error) {
	if len(data) < 24 {
		return nil, nil, nil, fmt.Errorf("%w: bsdiff stream shorter than its header", errs.ErrPatchCorrupt)
	}

	controlLen := getInt64(data[0:8])
	diffLen := getInt64(data[8:16])
	extraLen := getInt64(data[16:24])

	if controlLen < 0 || diffLen < 0 || extraLen < 0 || controlLen%controlRecordLen != 0 {
		return nil, nil, nil, fmt.Errorf("%w: bsdiff stream has an invalid header", errs.ErrPatchCorrupt)
	}

	want := 24 + controlLen + diffLen + extraLen
	if int64(len(data)) != want {
		return nil, nil, nil, fmt.Errorf("%w: bsdiff stream length %d does not match header (want %d)", errs.ErrPatchCorrupt, len(data), want)
	}

	n := int(controlLen / controlRecordLen)
	controls = make([]controlRecord, n)
	pos := 24
	for i := 0; i < n; i++ {
		controls[i] = controlRecord{
			Copy:   getInt64(data[pos : pos+8]),
			Insert: getInt64(data[pos+8 : pos+16]),
			Seek:   getInt64(data[pos+16 : pos+24]),
		}
		pos += controlRecordLen
	}

	diff = data[pos : pos+int(diffLen)]
	pos += int(diffLen)
	extra = data[pos : pos+int(extraLen)]

	return controls, diff, extra, nil
}
