package bsdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt64Codec_RoundTrips(t *testing.T) {
	cases := []int64{0, 1, -1, 255, -255, 1 << 40, -(1 << 40), 1<<55 - 1, -(1<<55 - 1)}

	for _, x := range cases {
		buf := make([]byte, 8)
		putInt64(buf, x)
		assert.Equal(t, x, getInt64(buf), "x=%d", x)
	}
}

func TestInt64Codec_SignBitIsTopBitOfLastByte(t *testing.T) {
	buf := make([]byte, 8)
	putInt64(buf, -5)
	assert.NotZero(t, buf[7]&0x80)

	putInt64(buf, 5)
	assert.Zero(t, buf[7]&0x80)
}

func TestEncodeDecode_RoundTrips(t *testing.T) {
	controls := []controlRecord{
		{Copy: 10, Insert: 2, Seek: -3},
		{Copy: 0, Insert: 5, Seek: 100},
	}
	diff := []byte("0123456789")
	extra := []byte("ab12345")

	encoded := encode(controls, diff, extra)
	gotControls, gotDiff, gotExtra, err := decode(encoded)
	assert.NoError(t, err)
	assert.Equal(t, controls, gotControls)
	assert.Equal(t, diff, gotDiff)
	assert.Equal(t, extra, gotExtra)
}

func TestDecode_RejectsTooShort(t *testing.T) {
	_, _, _, err := decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecode_RejectsBadControlLength(t *testing.T) {
	buf := make([]byte, 24)
	putInt64(buf[0:8], 7) // not a multiple of controlRecordLen
	_, _, _, err := decode(buf)
	assert.Error(t, err)
}
