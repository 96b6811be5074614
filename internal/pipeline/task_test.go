package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/model"
)

func pendingTask(id int64) *model.Task {
	return &model.Task{ID: id, SeedURL: "https://www.test-u.ac.jp/", Status: model.TaskPending}
}

func TestRunnerRun(t *testing.T) {
	t.Parallel()

	t.Run("completes a task and checkpoints every stage", func(t *testing.T) {
		t.Parallel()

		store := newMemStore(pendingTask(1))
		runner := NewRunner(func() []Step {
			return []Step{
				treeStep(StageCrawl, smallTree(t)),
				&mockStep{name: StagePrune, doFunc: func(_ context.Context, run *Run) error {
					run.Tree.Node(3).Prune()
					return nil
				}},
			}
		}, WithSink(store), WithRunnerLogger(quietLogger()))

		task := store.task(1)
		run, err := runner.Run(context.Background(), &task)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Err != nil {
			t.Errorf("expected no run error, got %v", run.Err)
		}

		if diff := cmp.Diff([]model.TaskStatus{model.TaskCrawling, model.TaskCompleted}, store.history(1)); diff != "" {
			t.Errorf("status history mismatch (-want +got):\n%s", diff)
		}
		stored := store.task(1)
		if stored.LastStage != StagePrune || stored.NodeCount != 4 || stored.PrunedCount != 1 || stored.FileCount != 1 {
			t.Errorf("unexpected stored progress %+v", stored)
		}
		if task.Status != model.TaskCompleted || task.LastStage != StagePrune {
			t.Errorf("expected the in-memory task to follow, got %+v", task)
		}
		if len(store.nodes[1]) != 4 {
			t.Errorf("expected 4 checkpointed nodes, got %d", len(store.nodes[1]))
		}
		if diff := cmp.Diff([]int{3}, store.pruned[1]); diff != "" {
			t.Errorf("pruned checkpoint mismatch (-want +got):\n%s", diff)
		}
		if !store.nodes[1][3].IsPruned {
			t.Error("expected the pruned flag in the checkpoint")
		}
	})

	t.Run("a step error fails the task", func(t *testing.T) {
		t.Parallel()

		store := newMemStore(pendingTask(1))
		runner := NewRunner(func() []Step {
			return []Step{
				treeStep(StageCrawl, smallTree(t)),
				&mockStep{name: StageCategory, doFunc: func(context.Context, *Run) error {
					return &model.LLMTransportError{StatusCode: 401, Err: errors.New("unauthorized")}
				}},
			}
		}, WithSink(store), WithRunnerLogger(quietLogger()))

		task := store.task(1)
		run, err := runner.Run(context.Background(), &task)
		var te *model.LLMTransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected LLMTransportError, got %v", err)
		}
		if run.Err != err {
			t.Error("expected the error on the run")
		}

		stored := store.task(1)
		if stored.Status != model.TaskFailed {
			t.Errorf("expected failed, got %s", stored.Status)
		}
		if !strings.HasPrefix(stored.ErrorMessage, "category step:") {
			t.Errorf("unexpected error message %q", stored.ErrorMessage)
		}
		if stored.LastStage != StageCrawl {
			t.Errorf("expected the crawl checkpoint to survive, got %q", stored.LastStage)
		}
		if task.ErrorMessage == "" {
			t.Error("expected the in-memory task to carry the message")
		}
	})

	t.Run("an interrupted task stays crawling", func(t *testing.T) {
		t.Parallel()

		store := newMemStore(pendingTask(1))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		runner := NewRunner(func() []Step {
			return []Step{
				treeStep(StageCrawl, smallTree(t)),
				&mockStep{name: StageSample, doFunc: func(ctx context.Context, _ *Run) error {
					cancel()
					return ctx.Err()
				}},
			}
		}, WithSink(store), WithRunnerLogger(quietLogger()))

		task := store.task(1)
		_, err := runner.Run(ctx, &task)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		stored := store.task(1)
		if stored.Status != model.TaskCrawling || stored.LastStage != StageCrawl {
			t.Errorf("expected a resumable crawling task, got %+v", stored)
		}
	})

	t.Run("resumes after the last checkpoint", func(t *testing.T) {
		t.Parallel()

		task := &model.Task{ID: 1, SeedURL: "https://www.test-u.ac.jp/", Status: model.TaskCrawling, LastStage: StageSample}
		store := newMemStore(task)
		tree := smallTree(t)
		if err := store.BulkInsertNodes(context.Background(), 1, tree.Nodes()); err != nil {
			t.Fatal(err)
		}

		crawl := &mockStep{name: StageCrawl}
		sample := &mockStep{name: StageSample}
		var restored int
		category := &mockStep{name: StageCategory, doFunc: func(_ context.Context, run *Run) error {
			restored = run.Tree.Len()
			return nil
		}}
		runner := NewRunner(func() []Step { return []Step{crawl, sample, category} },
			WithSink(store), WithRunnerLogger(quietLogger()))

		if _, err := runner.Run(context.Background(), task); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if crawl.calls() != 0 || sample.calls() != 0 {
			t.Error("expected completed stages to be skipped")
		}
		if restored != 4 {
			t.Errorf("expected the restored tree of 4 nodes, got %d", restored)
		}
		if store.task(1).Status != model.TaskCompleted {
			t.Errorf("expected completed, got %s", store.task(1).Status)
		}
	})

	t.Run("starts over without stored nodes", func(t *testing.T) {
		t.Parallel()

		task := &model.Task{ID: 1, SeedURL: "https://www.test-u.ac.jp/", Status: model.TaskCrawling, LastStage: StageSample}
		store := newMemStore(task)
		crawl := treeStep(StageCrawl, smallTree(t))
		runner := NewRunner(func() []Step { return []Step{crawl, &mockStep{name: StageSample}} },
			WithSink(store), WithRunnerLogger(quietLogger()))

		if _, err := runner.Run(context.Background(), task); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if crawl.calls() != 1 {
			t.Errorf("expected a fresh crawl, got %d calls", crawl.calls())
		}
	})

	t.Run("a completed task is not run again", func(t *testing.T) {
		t.Parallel()

		task := &model.Task{ID: 1, SeedURL: "https://www.test-u.ac.jp/", Status: model.TaskCompleted}
		store := newMemStore(task)
		crawl := &mockStep{name: StageCrawl}
		runner := NewRunner(func() []Step { return []Step{crawl} }, WithSink(store), WithRunnerLogger(quietLogger()))

		_, err := runner.Run(context.Background(), task)
		if !errors.Is(err, model.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if crawl.calls() != 0 {
			t.Error("expected no step to run")
		}
		if store.task(1).Status != model.TaskCompleted || len(store.history(1)) != 0 {
			t.Error("expected the task record to be left alone")
		}
	})

	t.Run("checkpoint failure fails the task", func(t *testing.T) {
		t.Parallel()

		store := newMemStore(pendingTask(1))
		store.failNext = errors.New("database is locked")
		runner := NewRunner(func() []Step { return []Step{treeStep(StageCrawl, smallTree(t))} },
			WithSink(store), WithRunnerLogger(quietLogger()))

		task := store.task(1)
		if _, err := runner.Run(context.Background(), &task); err == nil {
			t.Fatal("expected an error")
		}
		if got := store.task(1).Status; got != model.TaskFailed {
			t.Errorf("expected failed, got %s", got)
		}
	})

	t.Run("runs in memory without a sink", func(t *testing.T) {
		t.Parallel()

		sites := &config.File{Sites: map[string]config.SiteConfig{
			"www.test-u.ac.jp": {School: "テスト大学", Depth: 2},
		}}
		var site config.SiteConfig
		runner := NewRunner(func() []Step {
			return []Step{&mockStep{name: StageCrawl, doFunc: func(_ context.Context, run *Run) error {
				site = run.Site
				run.Tree = smallTree(t)
				return nil
			}}}
		}, WithSites(sites), WithRunnerLogger(quietLogger()))

		task := pendingTask(0)
		run, err := runner.Run(context.Background(), task)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if site.School != "テスト大学" || site.Depth != 2 {
			t.Errorf("expected the site config of the seed host, got %+v", site)
		}
		if run.School() != "テスト大学" {
			t.Errorf("expected the school of the site, got %q", run.School())
		}
		if task.Status != model.TaskCompleted || task.NodeCount != 4 {
			t.Errorf("unexpected task %+v", task)
		}
	})
}
