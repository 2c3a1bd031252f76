package bsdiff

import (
	"fmt"
	"io"

	"github.com/google/archive-patcher-sub004/errs"
)

// Apply reconstructs the new blob a call to Generate(oldBlob, newBlob)
// would have been computed from, given that same oldBlob, the patch bytes
// Generate returned, and the exact length the new blob must come out to
// (carried separately, in the patch container, rather than inside the
// bsdiff stream itself).
func Apply(oldBlob []byte, patch []byte, newSize int64, out io.Writer) error {
	controls, diff, extra, err := decode(patch)
	if err != nil {
		return err
	}

	var newPos, oldPos, diffPos, extraPos int64

	for _, c := range controls {
		if c.Copy < 0 || c.Insert < 0 {
			return fmt.Errorf("%w: negative control record length", errs.ErrPatchCorrupt)
		}
		if newPos+c.Copy > newSize {
			return fmt.Errorf("%w: control record copy overruns new blob length", errs.ErrPatchCorrupt)
		}
		if diffPos+c.Copy > int64(len(diff)) {
			return fmt.Errorf("%w: control record copy overruns diff stream", errs.ErrPatchCorrupt)
		}
		if oldPos < 0 || oldPos+c.Copy > int64(len(oldBlob)) {
			return fmt.Errorf("%w: control record copy reads outside the old blob", errs.ErrPatchCorrupt)
		}

		if c.Copy > 0 {
			chunk := make([]byte, c.Copy)
			for i := int64(0); i < c.Copy; i++ {
				chunk[i] = diff[diffPos+i] + oldBlob[oldPos+i]
			}
			if _, err := out.Write(chunk); err != nil {
				return err
			}
		}
		newPos += c.Copy
		oldPos += c.Copy
		diffPos += c.Copy

		if newPos+c.Insert > newSize {
			return fmt.Errorf("%w: control record insert overruns new blob length", errs.ErrPatchCorrupt)
		}
		if extraPos+c.Insert > int64(len(extra)) {
			return fmt.Errorf("%w: control record insert overruns extra stream", errs.ErrPatchCorrupt)
		}

		if c.Insert > 0 {
			if _, err := out.Write(extra[extraPos : extraPos+c.Insert]); err != nil {
				return err
			}
		}
		newPos += c.Insert
		extraPos += c.Insert

		oldPos += c.Seek
	}

	if newPos != newSize {
		return fmt.Errorf("%w: reconstructed %d bytes, expected %d", errs.ErrPatchCorrupt, newPos, newSize)
	}

	return nil
}
