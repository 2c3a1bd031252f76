package archivepatcher

import "github.com/google/archive-patcher-sub004/planner"

type options struct {
	tempDir   string
	modifiers []planner.Modifier
}

func defaultOptions() *options {
	return &options{}
}

// Option configures GenerateDelta or ApplyDelta.
type Option func(*options)

// WithTempDir sets the directory in which ApplyDelta stages the
// reconstructed new delta-friendly blob. The old delta-friendly blob is
// held in memory and is not staged to disk. The OS default temp directory
// is used if this is never set or dir is empty.
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// WithModifiers appends policy hooks that run after the pre-diff decision
// table on every matched entry, in the order given. A Modifier may only
// downgrade a decision toward not uncompressing; see planner.Modifier.
func WithModifiers(mods ...planner.Modifier) Option {
	return func(o *options) { o.modifiers = append(o.modifiers, mods...) }
}
