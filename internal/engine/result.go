package engine

import (
	"fmt"
	"time"
)

// Status is a stage's position in its lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusRunning      Status = "running"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusSkipped      Status = "skipped"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// StageResult records how one stage ended. Immutable once its status is
// terminal.
type StageResult struct {
	Name     string
	Status   Status
	Duration time.Duration

	// Err is the failure that ended the stage, nil unless Status is failed.
	Err error

	// Reason explains a skip: which upstream failure caused it.
	Reason string

	// Log is the captured combined output of the stage's steps.
	Log string

	// Artifacts are the declared output paths the stage produced.
	Artifacts []string

	// blocking marks a failure that skips dependents and fails the run
	// regardless of the stage's optional flag (required stages and all
	// provisioning failures).
	blocking bool
}

// Blocking reports whether this stage's failure propagates to dependents.
func (r *StageResult) Blocking() bool {
	return r.Status != StatusSucceeded && r.blocking
}

// PipelineResult aggregates every stage's terminal state for one run.
type PipelineResult struct {
	Pipeline string
	RunID    string
	Stages   []*StageResult

	byName map[string]*StageResult
}

func newPipelineResult(pipelineName, runID string, order []string) *PipelineResult {
	pr := &PipelineResult{
		Pipeline: pipelineName,
		RunID:    runID,
		byName:   make(map[string]*StageResult, len(order)),
	}
	for _, name := range order {
		res := &StageResult{Name: name, Status: StatusPending}
		pr.Stages = append(pr.Stages, res)
		pr.byName[name] = res
	}
	return pr
}

// Stage returns the result for a stage name, or nil.
func (pr *PipelineResult) Stage(name string) *StageResult {
	return pr.byName[name]
}

// Failed reports whether the overall run failed: at least one blocking
// failure occurred. Optional stage failures alone never fail the run.
func (pr *PipelineResult) Failed() bool {
	for _, res := range pr.Stages {
		if res.Status == StatusFailed && res.blocking {
			return true
		}
	}
	return false
}

// OverallStatus renders the aggregate status.
func (pr *PipelineResult) OverallStatus() string {
	if pr.Failed() {
		return "failed"
	}
	return "succeeded"
}

// Err returns an error describing the run failure, or nil on success.
func (pr *PipelineResult) Err() error {
	for _, res := range pr.Stages {
		if res.Status == StatusFailed && res.blocking {
			return fmt.Errorf("required stage %q failed: %w", res.Name, res.Err)
		}
	}
	return nil
}

// SucceededStages returns results of stages that ended succeeded, in order.
func (pr *PipelineResult) SucceededStages() []*StageResult {
	var out []*StageResult
	for _, res := range pr.Stages {
		if res.Status == StatusSucceeded {
			out = append(out, res)
		}
	}
	return out
}
