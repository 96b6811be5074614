package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/univcrawl/internal/model"
)

// DefaultBatchConcurrency is the number of tasks run at once when
// WithConcurrency is not given.
const DefaultBatchConcurrency = 2

// BatchProcessor runs many tasks concurrently through a Runner.
// It uses errgroup to manage goroutines and respect concurrency limits.
type BatchProcessor struct {
	runner *Runner

	// concurrency is the maximum number of concurrent tasks.
	concurrency int

	// resume includes tasks left crawling by an interrupted process.
	resume bool

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent tasks.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithResume makes ProcessPending pick up tasks that are still crawling,
// before the pending ones. Only use it when no other process is running.
func WithResume(resume bool) BatchOption {
	return func(b *BatchProcessor) {
		b.resume = resume
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(runner *Runner, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runner:      runner,
		concurrency: DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessPending runs up to limit tasks from source. A limit of zero or
// less runs every pending task.
func (bp *BatchProcessor) ProcessPending(ctx context.Context, source SeedSource, limit int) ([]*Run, error) {
	var tasks []*model.Task
	if bp.resume {
		interrupted, err := source.ListTasks(ctx, model.TaskCrawling)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, interrupted...)
	}
	if limit <= 0 || len(tasks) < limit {
		rest := 0
		if limit > 0 {
			rest = limit - len(tasks)
		}
		pending, err := source.GetPendingSeedURLs(ctx, rest)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, pending...)
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return bp.ProcessBatch(ctx, tasks)
}

// ProcessBatch runs tasks concurrently and returns their runs in input
// order. A failing task does not stop the others; its error is in
// Run.Err. The returned error is only set when ctx ends the batch.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, tasks []*model.Task) ([]*Run, error) {
	runs := make([]*Run, len(tasks))
	err := bp.ProcessBatchWithCallback(ctx, tasks, func(run *Run, index int) {
		runs[index] = run
	})
	return runs, err
}

// ProcessBatchWithCallback runs tasks and calls callback for each finished
// run with its index in tasks. The callback is called from the goroutine
// that ran the task, so it must be safe for concurrent use when it touches
// shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	tasks []*model.Task,
	callback func(run *Run, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_tasks", len(tasks),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, task := range tasks {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("running task",
				"seed", task.SeedURL,
				"index", i+1,
				"total", len(tasks),
			)

			// Task errors are recorded on the run and the task record.
			run, _ := bp.runner.Run(ctx, task) //nolint:errcheck // stored in run.Err
			callback(run, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch processing complete",
		"total_tasks", len(tasks),
		"elapsed", time.Since(startTime),
	)
	return err
}
