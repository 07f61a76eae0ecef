package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/riggerci/rigger/internal/errors"
	"github.com/riggerci/rigger/internal/pipeline"
)

const (
	defaultShell     = "/bin/sh"
	defaultGrace     = 10 * time.Second
	defaultTailLines = 20
)

// StepRunner executes one step's command through the shell, capturing
// combined output and verifying declared outputs afterwards.
type StepRunner struct {
	// Shell interprets step command lines. Defaults to /bin/sh.
	Shell string

	// Grace is how long a signalled step may keep running before it is
	// killed outright.
	Grace time.Duration

	// TailLines bounds the captured output attached to failures.
	TailLines int
}

// StepRequest carries everything a single step invocation needs.
type StepRequest struct {
	Stage   string
	Index   int
	Step    pipeline.Step
	WorkDir string
	Env     []string

	// Sink receives combined output as it is produced. Nil discards.
	Sink io.Writer
}

// Run executes the step and returns the declared output paths it produced
// (resolved against the step's working directory). A nonzero exit, a
// cancelled or timed-out context, or a missing declared output is an error.
func (r *StepRunner) Run(ctx context.Context, req StepRequest) ([]string, error) {
	shell := r.Shell
	if shell == "" {
		shell = defaultShell
	}
	grace := r.Grace
	if grace <= 0 {
		grace = defaultGrace
	}

	cwd := req.WorkDir
	if req.Step.Workdir != "" {
		if filepath.IsAbs(req.Step.Workdir) {
			cwd = req.Step.Workdir
		} else {
			cwd = filepath.Join(req.WorkDir, req.Step.Workdir)
		}
	}

	cmd := exec.CommandContext(ctx, shell, "-c", req.Step.Run)
	cmd.Dir = cwd
	cmd.Env = applyStepEnv(req.Env, req.Step.Env)

	var captured bytes.Buffer
	out := io.Writer(&captured)
	if req.Sink != nil {
		out = io.MultiWriter(&captured, req.Sink)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	// On cancellation, terminate gently and give the process a bounded
	// grace period before the kill.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	err := cmd.Run()
	if err != nil {
		switch {
		case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, errors.NewStepTimeoutError(req.Stage, req.Index)
		case stderrors.Is(ctx.Err(), context.Canceled):
			return nil, errors.NewStepCancelledError(req.Stage, req.Index)
		}

		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, errors.NewStepFailedError(req.Stage, req.Index, exitErr.ExitCode(), r.tail(captured.String()))
		}
		return nil, errors.Wrap(errors.ErrCodeStepFailed,
			fmt.Sprintf("stage %q step %d could not start", req.Stage, req.Index), err)
	}

	// A zero exit without the declared outputs is still a failure: the
	// artifact the pipeline promised does not exist.
	produced := make([]string, 0, len(req.Step.Outputs))
	for _, declared := range req.Step.Outputs {
		path := declared
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		if !pathExists(path) {
			return nil, errors.NewMissingOutputError(req.Stage, req.Index, declared)
		}
		produced = append(produced, path)
	}

	return produced, nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// applyStepEnv layers step-level overrides onto the stage environment.
func applyStepEnv(env []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return env
	}
	merged := make(map[string]string, len(env)+len(overrides))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// tail returns the last TailLines lines of captured output.
func (r *StepRunner) tail(output string) string {
	n := r.TailLines
	if n <= 0 {
		n = defaultTailLines
	}
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
