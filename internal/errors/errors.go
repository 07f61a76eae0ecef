package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Graph errors (GRAPH-001 to GRAPH-099): pipeline validation failures
	// detected before any step executes.
	ErrCodeCycleDetected     ErrorCode = "GRAPH-001"
	ErrCodeUnknownDependency ErrorCode = "GRAPH-002"
	ErrCodeDuplicateStage    ErrorCode = "GRAPH-003"
	ErrCodeUnknownStage      ErrorCode = "GRAPH-004"

	// Pipeline document errors (PIPE-001 to PIPE-099)
	ErrCodePipelineNotFound  ErrorCode = "PIPE-001"
	ErrCodePipelineUnmarshal ErrorCode = "PIPE-002"
	ErrCodePipelineInvalid   ErrorCode = "PIPE-003"

	// Provisioning errors (PROV-001 to PROV-099)
	ErrCodeProvisionFailed      ErrorCode = "PROV-001"
	ErrCodeProvisionConstraint  ErrorCode = "PROV-002"
	ErrCodeProvisionToolMissing ErrorCode = "PROV-003"

	// Step execution errors (STEP-001 to STEP-099)
	ErrCodeStepFailed        ErrorCode = "STEP-001"
	ErrCodeStepTimeout       ErrorCode = "STEP-002"
	ErrCodeStepCancelled     ErrorCode = "STEP-003"
	ErrCodeStepMissingOutput ErrorCode = "STEP-004"

	// Publishing errors (PUBLISH-001 to PUBLISH-099)
	ErrCodePublishFailed   ErrorCode = "PUBLISH-001"
	ErrCodePublishBadRef   ErrorCode = "PUBLISH-002"
	ErrCodeManifestEmpty   ErrorCode = "PUBLISH-003"
	ErrCodeManifestBadFile ErrorCode = "PUBLISH-004"
)

// RiggerError represents an enhanced error with code, suggestions, and a cause chain
type RiggerError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *RiggerError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *RiggerError) Unwrap() error {
	return e.Cause
}

// New creates a new RiggerError
func New(code ErrorCode, message string) *RiggerError {
	return &RiggerError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new RiggerError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *RiggerError {
	return &RiggerError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *RiggerError) WithSuggestion(suggestion string) *RiggerError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// Family reports whether the error code belongs to the given category prefix
// (e.g. "GRAPH", "STEP").
func (e *RiggerError) Family(prefix string) bool {
	return strings.HasPrefix(string(e.Code), prefix+"-")
}

// Common error constructors for frequently used errors

// NewCycleDetectedError reports a dependency cycle in a pipeline.
// The cycle path is rendered in dependency order, e.g. "build -> package -> build".
func NewCycleDetectedError(cycle []string) *RiggerError {
	return New(ErrCodeCycleDetected, fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> "))).
		WithSuggestion("Remove one of the depends_on entries along the cycle")
}

// NewUnknownDependencyError reports a stage depending on a stage that does not exist.
func NewUnknownDependencyError(stage, missing string) *RiggerError {
	return New(ErrCodeUnknownDependency, fmt.Sprintf("stage %q depends on unknown stage %q", stage, missing)).
		WithSuggestion("Check the stage name for typos").
		WithSuggestion("Declare the missing stage in the pipeline file")
}

// NewDuplicateStageError reports two stages sharing a name.
func NewDuplicateStageError(name string) *RiggerError {
	return New(ErrCodeDuplicateStage, fmt.Sprintf("duplicate stage name %q", name))
}

// NewUnknownStageError reports a reference to a stage missing from the pipeline,
// e.g. via the --only flag.
func NewUnknownStageError(name string) *RiggerError {
	return New(ErrCodeUnknownStage, fmt.Sprintf("pipeline has no stage named %q", name))
}

// NewProvisionError reports a toolchain provisioning failure for a stage.
func NewProvisionError(tool string, cause error) *RiggerError {
	return Wrap(ErrCodeProvisionFailed, fmt.Sprintf("failed to provision tool %q", tool), cause).
		WithSuggestion("Verify the tool is installable on this host").
		WithSuggestion("Check the version constraint in the stage's toolchain requirement")
}

// NewStepFailedError reports a nonzero exit from a stage step.
func NewStepFailedError(stage string, stepIndex, exitCode int, outputTail string) *RiggerError {
	msg := fmt.Sprintf("stage %q step %d exited with status %d", stage, stepIndex, exitCode)
	if outputTail != "" {
		msg += fmt.Sprintf("\noutput tail:\n%s", outputTail)
	}
	return New(ErrCodeStepFailed, msg)
}

// NewStepTimeoutError reports a stage exceeding its wall-clock timeout.
func NewStepTimeoutError(stage string, stepIndex int) *RiggerError {
	return New(ErrCodeStepTimeout, fmt.Sprintf("stage %q step %d killed: stage timeout exceeded", stage, stepIndex)).
		WithSuggestion("Raise the stage's timeout or split the step")
}

// NewStepCancelledError reports a step terminated by run cancellation.
func NewStepCancelledError(stage string, stepIndex int) *RiggerError {
	return New(ErrCodeStepCancelled, fmt.Sprintf("stage %q step %d cancelled", stage, stepIndex))
}

// NewMissingOutputError reports a declared output absent after a zero exit.
func NewMissingOutputError(stage string, stepIndex int, path string) *RiggerError {
	return New(ErrCodeStepMissingOutput, fmt.Sprintf("stage %q step %d exited cleanly but declared output %q does not exist", stage, stepIndex, path)).
		WithSuggestion("Check the output path against what the command actually writes")
}

// NewPublishError reports a failure distributing an otherwise successful build.
func NewPublishError(cause error) *RiggerError {
	return Wrap(ErrCodePublishFailed, "failed to publish artifact", cause).
		WithSuggestion("The build itself succeeded; re-run publishing once the destination is reachable")
}
