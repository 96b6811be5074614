package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/model"
)

// TaskSink persists task state and tree checkpoints.
// database.CrawlDB implements it.
type TaskSink interface {
	UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, errMsg string) error
	UpdateTaskProgress(ctx context.Context, id int64, lastStage string, stats model.Stats) error
	BulkInsertNodes(ctx context.Context, taskID int64, nodes []*model.Node) error
	MarkPruned(ctx context.Context, taskID int64, indices []int) error
	GetNodes(ctx context.Context, taskID int64) ([]model.Node, error)
}

// SeedSource lists the tasks waiting to run.
// database.CrawlDB implements it.
type SeedSource interface {
	GetPendingSeedURLs(ctx context.Context, limit int) ([]*model.Task, error)
	ListTasks(ctx context.Context, status model.TaskStatus) ([]*model.Task, error)
}

// Runner executes the pipeline for single tasks and keeps the task
// record in step with the run.
type Runner struct {
	steps  func() []Step
	sink   TaskSink
	sites  *config.File
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSink persists task status and checkpoints in sink. Without a sink
// runs are not resumable.
func WithSink(sink TaskSink) RunnerOption {
	return func(r *Runner) {
		r.sink = sink
	}
}

// WithSites sets the per-site configuration.
func WithSites(sites *config.File) RunnerOption {
	return func(r *Runner) {
		r.sites = sites
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner. steps is called once per task so that no
// step state is shared between tasks.
func NewRunner(steps func() []Step, opts ...RunnerOption) *Runner {
	r := &Runner{steps: steps}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes the pipeline for task and returns the run.
//
// The task moves to crawling when the run starts, to completed when every
// step succeeded and to failed on any task-level error. A run interrupted
// by ctx stays crawling with its last checkpoint, so it can be resumed.
// The returned error is also stored in run.Err.
func (r *Runner) Run(ctx context.Context, task *model.Task) (*Run, error) {
	logger := r.logger.With("task_id", task.ID, "seed", task.SeedURL)
	run := NewRun(task, r.sites.ForURL(task.SeedURL))

	err := r.run(ctx, run, logger)
	if err == nil {
		if err = r.setStatus(ctx, task, model.TaskCompleted, ""); err == nil {
			logger.Info("task completed", "run_id", run.ID)
			return run, nil
		}
	}
	run.Err = err

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Warn("task interrupted", "run_id", run.ID, "last_stage", run.LastStage)
		return run, err
	}
	if errors.Is(err, model.ErrInvalidTransition) && task.Status != model.TaskCrawling {
		// The task was not ours to run; leave its record alone.
		return run, err
	}

	logger.Error("task failed", "run_id", run.ID, "last_stage", run.LastStage, "error", err)
	if serr := r.setStatus(context.WithoutCancel(ctx), task, model.TaskFailed, err.Error()); serr != nil {
		logger.Warn("failed to record task failure", "error", serr)
	}
	return run, err
}

func (r *Runner) run(ctx context.Context, run *Run, logger *slog.Logger) error {
	if err := r.setStatus(ctx, run.Task, model.TaskCrawling, ""); err != nil {
		return err
	}
	if err := r.restore(ctx, run); err != nil {
		return err
	}

	p := New(WithLogger(logger), WithCheckpoint(r.checkpoint))
	p.AddSteps(r.steps()...)
	logger.Debug("running pipeline", "stages", p.StepNames(), "resume_after", run.LastStage)
	return p.Execute(ctx, run)
}

// restore loads the checkpointed tree of a resumed task. A task without
// stored nodes starts over.
func (r *Runner) restore(ctx context.Context, run *Run) error {
	if run.LastStage == "" {
		return nil
	}
	if r.sink == nil {
		run.LastStage = ""
		return nil
	}

	nodes, err := r.sink.GetNodes(ctx, run.Task.ID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if len(nodes) == 0 {
		run.LastStage = ""
		return nil
	}
	tree, err := model.FromNodes(nodes)
	if err != nil {
		return fmt.Errorf("failed to restore checkpoint: %w", err)
	}
	run.Tree = tree
	return nil
}

// checkpoint stores the tree after a step. Pruning only flips flags, so
// only the pruned indices are written for it.
func (r *Runner) checkpoint(ctx context.Context, run *Run) error {
	run.Task.LastStage = run.LastStage
	if run.Tree == nil {
		return nil
	}
	stats := run.Tree.Stats()
	run.Task.NodeCount = stats.Total
	run.Task.PrunedCount = stats.Pruned
	run.Task.FileCount = stats.Files

	if r.sink == nil {
		return nil
	}
	switch run.LastStage {
	case StagePersist:
	case StagePrune:
		pruned := run.Tree.Select(func(n *model.Node) bool { return n.IsPruned })
		if err := r.sink.MarkPruned(ctx, run.Task.ID, pruned); err != nil {
			return err
		}
	default:
		if err := r.sink.BulkInsertNodes(ctx, run.Task.ID, run.Tree.Nodes()); err != nil {
			return err
		}
	}
	return r.sink.UpdateTaskProgress(ctx, run.Task.ID, run.LastStage, stats)
}

func (r *Runner) setStatus(ctx context.Context, task *model.Task, status model.TaskStatus, msg string) error {
	if r.sink == nil {
		if !task.Status.CanTransition(status) {
			return fmt.Errorf("%w: task from %s to %s", model.ErrInvalidTransition, task.Status, status)
		}
	} else if err := r.sink.UpdateTaskStatus(ctx, task.ID, status, msg); err != nil {
		return err
	}
	task.Status = status
	if status == model.TaskFailed {
		task.ErrorMessage = model.TrimErrorMessage(msg)
	}
	return nil
}
