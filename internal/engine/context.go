package engine

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RunContext is the per-invocation state shared across stages: the resolved
// environment set, the working directory, and the live output stream. The
// environment is append-only for the life of a run; stages mutate it only
// through committed overlays, so merges stay deterministic.
type RunContext struct {
	// RunID uniquely identifies this pipeline invocation.
	RunID string

	// WorkDir is the default working directory for steps.
	WorkDir string

	// Stream receives combined step output as it is produced. Nil discards.
	Stream io.Writer

	mu  sync.RWMutex
	env map[string]string
}

// NewRunContext creates a run context seeded from the inherited process
// environment.
func NewRunContext(workDir string) *RunContext {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &RunContext{
		RunID:   uuid.NewString(),
		WorkDir: workDir,
		env:     env,
	}
}

// Lookup returns the current value of an environment variable.
func (rc *RunContext) Lookup(key string) (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.env[key]
	return v, ok
}

// Environ returns the resolved environment as KEY=VALUE pairs in sorted
// order, suitable for exec.Cmd.
func (rc *RunContext) Environ() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return flatten(rc.env, nil)
}

func (rc *RunContext) merge(delta map[string]string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for k, v := range delta {
		rc.env[k] = v
	}
}

func flatten(base, overlay map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// StageEnv is a stage-isolated view of the run environment. Provisioning
// writes land in the overlay; they become visible to later stages only after
// Commit, which the executor calls once the stage succeeds.
type StageEnv struct {
	rc    *RunContext
	delta map[string]string
}

// StageOverlay creates an empty overlay on top of the run environment.
func (rc *RunContext) StageOverlay() *StageEnv {
	return &StageEnv{rc: rc, delta: make(map[string]string)}
}

// Get returns the overlay value, falling back to the run environment.
func (se *StageEnv) Get(key string) (string, bool) {
	if v, ok := se.delta[key]; ok {
		return v, true
	}
	return se.rc.Lookup(key)
}

// Set writes a variable into the overlay.
func (se *StageEnv) Set(key, value string) {
	se.delta[key] = value
}

// PrependPath puts dir at the front of the overlay's PATH.
func (se *StageEnv) PrependPath(dir string) {
	current, _ := se.Get("PATH")
	if current == "" {
		se.delta["PATH"] = dir
		return
	}
	se.delta["PATH"] = dir + string(os.PathListSeparator) + current
}

// Environ returns the overlay applied on top of the run environment as
// sorted KEY=VALUE pairs.
func (se *StageEnv) Environ() []string {
	se.rc.mu.RLock()
	defer se.rc.mu.RUnlock()
	return flatten(se.rc.env, se.delta)
}

// Commit merges the overlay into the run environment.
func (se *StageEnv) Commit() {
	se.rc.merge(se.delta)
}
