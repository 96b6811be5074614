package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// ErrUnknownStage is returned when a run resumes after a stage the
// pipeline does not have.
var ErrUnknownStage = errors.New("unknown pipeline stage")

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each one working on the run left by
// the previous steps.
type Step interface {
	// Do executes the pipeline step. A returned error is task-level and
	// stops the run; per-node problems are recorded on the nodes instead.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name. It is also the stage name stored
	// in checkpoints.
	Name() string
}

// Resumer is implemented by steps whose output lives outside the tree.
// When a run is resumed past such a step, Resume rebuilds that output
// from the restored tree instead of running the step again.
type Resumer interface {
	Resume(ctx context.Context, run *Run) error
}

// CheckpointFunc is called after every completed step, with
// run.LastStage already set to that step.
type CheckpointFunc func(ctx context.Context, run *Run) error

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// checkpoint persists the run between steps. It may be nil.
	checkpoint CheckpointFunc
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCheckpoint sets the function that persists the run after each step.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(p *Pipeline) {
		p.checkpoint = fn
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps after run.LastStage in sequence.
//
// Cancellation is checked before each step; steps handle their own
// timeouts. After every step the tree must still be connected, otherwise
// the run fails with a *model.ConnectivityViolation. run.LastStage is
// advanced and the checkpoint function called once a step has completed,
// so an interrupted run can be executed again from where it stopped.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	start := 0
	if run.LastStage != "" {
		i := slices.IndexFunc(p.steps, func(s Step) bool { return s.Name() == run.LastStage })
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownStage, run.LastStage)
		}
		start = i + 1

		for _, step := range p.steps[:start] {
			r, ok := step.(Resumer)
			if !ok {
				continue
			}
			if err := r.Resume(ctx, run); err != nil {
				return fmt.Errorf("failed to resume %s step: %w", step.Name(), err)
			}
		}
		p.logger.Info("resuming run",
			"run_id", run.ID,
			"after", run.LastStage,
		)
	}

	for _, step := range p.steps[start:] {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"run_id", run.ID,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"run_id", run.ID,
				"error", err,
			)
			return fmt.Errorf("%s step: %w", step.Name(), err)
		}

		if run.Tree != nil {
			if err := run.Tree.CheckConnectivity(); err != nil {
				return fmt.Errorf("after %s step: %w", step.Name(), err)
			}
		}

		run.LastStage = step.Name()
		if p.checkpoint != nil {
			if err := p.checkpoint(ctx, run); err != nil {
				return fmt.Errorf("failed to checkpoint %s step: %w", step.Name(), err)
			}
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"run_id", run.ID,
		)
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
