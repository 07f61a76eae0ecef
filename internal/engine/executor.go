package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/riggerci/rigger/internal/errors"
	"github.com/riggerci/rigger/internal/log"
	"github.com/riggerci/rigger/internal/pipeline"
	"github.com/riggerci/rigger/internal/provision"
)

// Executor walks a resolved stage graph in topological order, provisioning
// and running each stage and enforcing the required/optional failure policy.
// Execution is strictly sequential; the graph order is the schedule.
type Executor struct {
	Provisioner provision.Provisioner
	Runner      *StepRunner
	Logger      *log.Logger
}

// New creates an executor with a default step runner.
func New(prov provision.Provisioner, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Executor{
		Provisioner: prov,
		Runner:      &StepRunner{},
		Logger:      logger,
	}
}

// Execute runs every stage of the graph and returns the aggregated result.
// The returned result always covers every stage; execution errors live in
// the per-stage results, not in an error return. The run itself only fails
// to start on programmer error (nil graph).
func (e *Executor) Execute(ctx context.Context, g *pipeline.Graph, rc *RunContext) *PipelineResult {
	p := g.Pipeline()
	order := g.TopologicalOrder()
	result := newPipelineResult(p.Name, rc.RunID, order)

	logger := e.Logger.With("pipeline", p.Name, "run_id", rc.RunID)
	logger.Info("run starting", "stages", len(order))

	for _, name := range order {
		stage := p.StageByName(name)
		res := result.Stage(name)

		// Cancellation ends every not-yet-succeeded stage as failed,
		// never succeeded.
		if ctx.Err() != nil {
			res.Status = StatusFailed
			res.Err = errors.New(errors.ErrCodeStepCancelled, fmt.Sprintf("stage %q cancelled before start", name))
			res.blocking = stage.Required
			logger.Warn("stage cancelled before start", "stage", name)
			continue
		}

		if reason, blocked := e.skipReason(g, result, name); blocked {
			res.Status = StatusSkipped
			res.Reason = reason
			logger.Info("stage skipped", "stage", name, "reason", reason)
			continue
		}

		e.runStage(ctx, stage, rc, res, logger)
	}

	logger.Info("run finished", "status", result.OverallStatus())
	return result
}

// skipReason decides whether a stage must be skipped because of an upstream
// terminal state. An edge blocks when it is explicitly hard, when the
// dependency is a required stage, or when the dependency's failure was
// itself blocking (provisioning failures propagate even from optional
// stages). A failed or skipped optional dependency is otherwise tolerated.
func (e *Executor) skipReason(g *pipeline.Graph, result *PipelineResult, name string) (string, bool) {
	p := g.Pipeline()
	for _, dep := range g.Dependencies(name) {
		depRes := result.Stage(dep.Name)
		if depRes == nil || depRes.Status == StatusSucceeded {
			continue
		}

		depStage := p.StageByName(dep.Name)
		if dep.Hard || depStage.Required || depRes.Blocking() {
			return fmt.Sprintf("dependency %q %s", dep.Name, depRes.Status), true
		}
	}
	return "", false
}

// runStage provisions the stage's toolchain and runs its steps in sequence.
func (e *Executor) runStage(ctx context.Context, stage *pipeline.Stage, rc *RunContext, res *StageResult, logger *log.Logger) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
	}()

	overlay := rc.StageOverlay()

	// Provisioning failures are never excused by the optional flag: an
	// unprovisioned toolchain makes the stage's steps meaningless, and
	// dependents cannot trust anything downstream of it.
	if stage.Toolchain != nil {
		res.Status = StatusProvisioning
		logger.Info("provisioning", "stage", stage.Name, "toolchain", stage.Toolchain.String())
		if err := e.Provisioner.Ensure(ctx, *stage.Toolchain, overlay); err != nil {
			res.Status = StatusFailed
			res.Err = err
			res.blocking = true
			logger.Error("provisioning failed", "stage", stage.Name, "error", err)
			return
		}
	}

	res.Status = StatusRunning
	logger.Info("stage running", "stage", stage.Name, "steps", len(stage.Steps))

	stageCtx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, stage.Timeout.Std())
		defer cancel()
	}

	var captured bytes.Buffer
	sink := io.Writer(&captured)
	if rc.Stream != nil {
		sink = io.MultiWriter(&captured, rc.Stream)
	}

	var artifacts []string
	for i, step := range stage.Steps {
		produced, err := e.Runner.Run(stageCtx, StepRequest{
			Stage:   stage.Name,
			Index:   i,
			Step:    step,
			WorkDir: rc.WorkDir,
			Env:     overlay.Environ(),
			Sink:    sink,
		})
		if err != nil {
			res.Status = StatusFailed
			res.Err = err
			res.Log = captured.String()
			res.blocking = stage.Required
			logger.Error("step failed", "stage", stage.Name, "step", i, "error", err)
			return
		}
		artifacts = append(artifacts, produced...)
	}

	// Environment deltas become visible to dependents only now.
	overlay.Commit()

	res.Status = StatusSucceeded
	res.Log = captured.String()
	res.Artifacts = artifacts
	logger.Info("stage succeeded", "stage", stage.Name, "duration", time.Since(start).Round(time.Millisecond), "artifacts", len(artifacts))
}
