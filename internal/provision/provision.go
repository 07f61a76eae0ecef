// Package provision prepares the toolchain a stage needs before its steps
// run. Provisioners mutate the stage's environment overlay (never the global
// run environment directly) so a failed stage leaves no trace behind.
package provision

import (
	"context"

	"github.com/riggerci/rigger/internal/pipeline"
)

// Env is the environment surface a provisioner may mutate. Implemented by
// the engine's per-stage overlay.
type Env interface {
	// Get returns the current value of a variable.
	Get(key string) (string, bool)

	// Set writes a variable into the stage overlay.
	Set(key, value string)

	// PrependPath puts dir at the front of the overlay's PATH.
	PrependPath(dir string)
}

// Provisioner ensures a toolchain requirement is satisfied on the host.
// Implementations must be idempotent: re-ensuring an already satisfied
// requirement performs no work.
type Provisioner interface {
	Ensure(ctx context.Context, req pipeline.Toolchain, env Env) error
}
