package tempfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_WritableAndUnique(t *testing.T) {
	f1, err := Create(t.TempDir(), "oldblob")
	require.NoError(t, err)
	defer f1.Remove()

	f2, err := Create(t.TempDir(), "oldblob")
	require.NoError(t, err)
	defer f2.Remove()

	assert.NotEqual(t, f1.Path(), f2.Path())

	_, err = f1.Write([]byte("hello"))
	require.NoError(t, err)
}

func TestRemove_DeletesFile(t *testing.T) {
	f, err := Create(t.TempDir(), "staging")
	require.NoError(t, err)

	path := f.Path()
	require.NoError(t, f.Remove())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemove_SafeToCallTwice(t *testing.T) {
	f, err := Create(t.TempDir(), "staging")
	require.NoError(t, err)

	assert.NoError(t, f.Remove())
	assert.NoError(t, f.Remove())
}
