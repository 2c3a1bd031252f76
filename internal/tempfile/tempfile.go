// Package tempfile provides a scoped temp-file helper for the patch
// applier. ApplyDelta stages the reconstructed new delta-friendly blob in
// one for the duration of a single apply call and removes it when that
// call returns, whether it succeeds or fails. The old delta-friendly blob
// is built in memory and does not go through this package.
package tempfile

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// File is a temp file owned by a single apply invocation.
type File struct {
	*os.File
	path   string
	closed bool
}

// Create creates a new temp file in dir (the OS default temp directory if
// dir is empty) with a random, collision-resistant name. The caller must
// call Remove when done; File is not closed or removed automatically.
func Create(dir, prefix string) (*File, error) {
	name := fmt.Sprintf("%s-%s.tmp", prefix, uuid.NewString())

	f, err := os.CreateTemp(dir, name)
	if err != nil {
		return nil, fmt.Errorf("tempfile: create: %w", err)
	}

	return &File{File: f, path: f.Name()}, nil
}

// Path returns the temp file's path on disk.
func (f *File) Path() string {
	return f.path
}

// Remove closes and deletes the temp file. Safe to call multiple times.
func (f *File) Remove() error {
	var closeErr error
	if !f.closed {
		closeErr = f.Close()
		f.closed = true
	}

	removeErr := os.Remove(f.path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("tempfile: remove %s: %w", f.path, removeErr)
	}

	return closeErr
}
