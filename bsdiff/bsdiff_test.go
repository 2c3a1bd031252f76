package bsdiff

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, oldBlob, newBlob []byte) {
	t.Helper()

	patch, err := Generate(oldBlob, newBlob)
	require.NoError(t, err)

	var out bytes.Buffer
	err = Apply(oldBlob, patch, int64(len(newBlob)), &out)
	require.NoError(t, err)

	assert.Equal(t, newBlob, out.Bytes())
}

func TestRoundTrip_LiteralStrings(t *testing.T) {
	roundTrip(t, []byte("the quick brown fox jumps over the lazy dog"),
		[]byte("the quick brown fox leaps over the lazy dogs"))
}

func TestRoundTrip_EmptyOld(t *testing.T) {
	roundTrip(t, []byte{}, []byte("brand new content with no predecessor"))
}

func TestRoundTrip_EmptyNew(t *testing.T) {
	roundTrip(t, []byte("everything here gets deleted"), []byte{})
}

func TestRoundTrip_IdenticalBlobs(t *testing.T) {
	data := bytes.Repeat([]byte("identical payload segment "), 200)
	roundTrip(t, data, append([]byte{}, data...))
}

func TestRoundTrip_SmallInsertInMiddle(t *testing.T) {
	old := bytes.Repeat([]byte("ABCDEFGH"), 500)
	newBlob := append(append(append([]byte{}, old[:2000]...), []byte("---INSERTED---")...), old[2000:]...)
	roundTrip(t, old, newBlob)
}

func TestRoundTrip_RandomBytes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 5; trial++ {
		old := make([]byte, 2000+rng.Intn(5000))
		rng.Read(old)

		newBlob := append([]byte{}, old...)
		// Apply a handful of random edits: byte flips, small insertions,
		// small deletions, so there is genuine structure for the matcher
		// to find instead of pure noise.
		for e := 0; e < 20; e++ {
			switch rng.Intn(3) {
			case 0:
				if len(newBlob) > 0 {
					newBlob[rng.Intn(len(newBlob))] = byte(rng.Intn(256))
				}
			case 1:
				idx := rng.Intn(len(newBlob) + 1)
				ins := make([]byte, 1+rng.Intn(32))
				rng.Read(ins)
				newBlob = append(newBlob[:idx], append(ins, newBlob[idx:]...)...)
			case 2:
				if len(newBlob) > 32 {
					idx := rng.Intn(len(newBlob) - 16)
					n := 1 + rng.Intn(16)
					newBlob = append(newBlob[:idx], newBlob[idx+n:]...)
				}
			}
		}

		roundTrip(t, old, newBlob)
	}
}

func TestRoundTrip_RepetitiveData(t *testing.T) {
	old := bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 10000)
	newBlob := bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 10000)
	newBlob[5000] = 0xFF
	roundTrip(t, old, newBlob)
}

func TestApply_RejectsCorruptHeader(t *testing.T) {
	var out bytes.Buffer
	err := Apply([]byte("old"), []byte{1, 2, 3}, 3, &out)
	assert.Error(t, err)
}

func TestApply_RejectsLengthMismatch(t *testing.T) {
	patch, err := Generate([]byte("old content"), []byte("new content"))
	require.NoError(t, err)

	var out bytes.Buffer
	err = Apply([]byte("old content"), patch, 999, &out)
	assert.Error(t, err)
}
