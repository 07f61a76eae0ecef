package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/riggerci/rigger/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationFailed indicates the pipeline document failed pre-flight
	// validation (cycles, unknown dependencies, malformed YAML)
	ValidationFailed = 3

	// PipelineFailed indicates a required stage failed during execution
	PipelineFailed = 4

	// PublishFailed indicates the build succeeded but artifact publishing failed
	PublishFailed = 5

	// Interrupted indicates the run was cancelled (e.g. Ctrl+C)
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded orchestrator errors map by family; anything else falls back to
// message heuristics.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var rigErr *errors.RiggerError
	if stderrors.As(err, &rigErr) {
		switch {
		case rigErr.Family("GRAPH"), rigErr.Family("PIPE"):
			return ValidationFailed
		case rigErr.Family("PROV"), rigErr.Family("STEP"):
			return PipelineFailed
		case rigErr.Family("PUBLISH"):
			return PublishFailed
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "cycle") || strings.Contains(errMsg, "unknown stage") {
		return ValidationFailed
	}
	if strings.Contains(errMsg, "required stage") && strings.Contains(errMsg, "failed") {
		return PipelineFailed
	}
	if strings.Contains(errMsg, "publish") {
		return PublishFailed
	}
	if strings.Contains(errMsg, "cancelled") || strings.Contains(errMsg, "interrupt") {
		return Interrupted
	}
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "missing argument") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationFailed:
		return "Pipeline validation failed"
	case PipelineFailed:
		return "Required stage failed"
	case PublishFailed:
		return "Artifact publishing failed"
	case Interrupted:
		return "Run interrupted"
	default:
		return "Unknown exit code"
	}
}
