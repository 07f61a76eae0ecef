package provision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/riggerci/rigger/internal/errors"
	"github.com/riggerci/rigger/internal/log"
	"github.com/riggerci/rigger/internal/pipeline"
)

var versionPattern = regexp.MustCompile(`\d+(\.\d+)+`)

// Installer fetches a tool that is not on the host and returns the directory
// holding its binary. Wired in by callers that know how to download
// toolchains; the provisioner itself only probes and records.
type Installer func(ctx context.Context, req pipeline.Toolchain) (binDir string, err error)

// Local satisfies toolchain requirements from the host itself: it probes the
// search path for the tool, checks its version, and optionally falls back to
// an Installer. Satisfied requirements are cached per run so re-ensuring is
// a no-op.
type Local struct {
	// Installer handles tools missing from the host. Nil means missing
	// tools are provisioning failures.
	Installer Installer

	// Logger for provisioning events. Nil falls back to the process default.
	Logger *log.Logger

	// lookPath and probeVersion are replaceable for tests.
	lookPath     func(tool string) (string, error)
	probeVersion func(ctx context.Context, tool string) (string, error)

	mu        sync.Mutex
	satisfied map[string]string // requirement key -> resolved version
}

// NewLocal creates a host-local provisioner.
func NewLocal() *Local {
	return &Local{
		lookPath:     exec.LookPath,
		probeVersion: probeToolVersion,
		satisfied:    make(map[string]string),
	}
}

// Ensure checks that the required tool is available and version-compatible.
// On first satisfaction the result is recorded; later calls with the same
// requirement return immediately.
func (l *Local) Ensure(ctx context.Context, req pipeline.Toolchain, env Env) error {
	key := req.String()

	l.mu.Lock()
	if _, ok := l.satisfied[key]; ok {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	logger := l.logger().With("tool", req.Tool)

	path, err := l.lookPath(req.Tool)
	if err != nil {
		if l.Installer == nil {
			return errors.Wrap(errors.ErrCodeProvisionToolMissing,
				fmt.Sprintf("tool %q not found on host and no installer configured", req.Tool), err)
		}
		logger.Info("tool missing, installing", "constraint", req.Version)
		binDir, installErr := l.Installer(ctx, req)
		if installErr != nil {
			return errors.NewProvisionError(req.Tool, installErr)
		}
		env.PrependPath(binDir)
		path = binDir
	}

	version := ""
	if req.Version != "" {
		version, err = l.probeVersion(ctx, req.Tool)
		if err != nil {
			return errors.NewProvisionError(req.Tool, fmt.Errorf("version probe failed: %w", err))
		}
		if !satisfies(version, req.Version) {
			return errors.New(errors.ErrCodeProvisionConstraint,
				fmt.Sprintf("tool %q version %s does not satisfy constraint %q", req.Tool, version, req.Version))
		}
	}

	l.mu.Lock()
	l.satisfied[key] = version
	l.mu.Unlock()

	logger.Debug("toolchain satisfied", "path", path, "version", version)
	return nil
}

// Satisfied reports whether a requirement has already been ensured this run.
func (l *Local) Satisfied(req pipeline.Toolchain) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.satisfied[req.String()]
	return ok
}

func (l *Local) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.DefaultLogger()
}

// probeToolVersion runs `tool --version` and extracts the first dotted
// version number from its output.
func probeToolVersion(ctx context.Context, tool string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s --version: %w", tool, err)
	}

	match := versionPattern.FindString(out.String())
	if match == "" {
		return "", fmt.Errorf("no version number in %s --version output", tool)
	}
	return match, nil
}

// satisfies checks a resolved version against a constraint: empty matches
// anything, ">=X.Y" is a minimum, anything else is an exact-prefix match
// ("3.11" accepts "3.11.4").
func satisfies(version, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return true
	}

	if min, ok := strings.CutPrefix(constraint, ">="); ok {
		return compareVersions(version, strings.TrimSpace(min)) >= 0
	}

	return version == constraint || strings.HasPrefix(version, constraint+".")
}

// compareVersions compares dotted numeric versions component-wise.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(bs[i])
		}
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	return 0
}
