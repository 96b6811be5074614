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

func newTestRun() *Run {
	return NewRun(&model.Task{ID: 1, SeedURL: "https://www.test-u.ac.jp/", Status: model.TaskCrawling}, config.SiteConfig{})
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
		if p.checkpoint != nil {
			t.Error("expected no checkpoint by default")
		}
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		logger := quietLogger()
		p := New(WithLogger(logger), WithCheckpoint(func(context.Context, *Run) error { return nil }))
		if p.logger != logger {
			t.Error("expected custom logger")
		}
		if p.checkpoint == nil {
			t.Error("expected checkpoint to be set")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "a"})
	p.AddSteps(&mockStep{name: "b"}, &mockStep{name: "c"})

	if diff := cmp.Diff([]string{"a", "b", "c"}, p.StepNames()); diff != "" {
		t.Errorf("step names mismatch (-want +got):\n%s", diff)
	}
	if p.StepCount() != 3 {
		t.Errorf("expected 3 steps, got %d", p.StepCount())
	}
}

// TestPipelineExecute tests running steps in order.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order and checkpoints each", func(t *testing.T) {
		t.Parallel()

		var order, checkpoints []string
		step := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Run) error {
				order = append(order, name)
				return nil
			}}
		}
		p := New(WithLogger(quietLogger()), WithCheckpoint(func(_ context.Context, run *Run) error {
			checkpoints = append(checkpoints, run.LastStage)
			return nil
		}))
		p.AddSteps(step("first"), step("second"), step("third"))

		run := newTestRun()
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"first", "second", "third"}
		if diff := cmp.Diff(want, order); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want, checkpoints); diff != "" {
			t.Errorf("checkpoints mismatch (-want +got):\n%s", diff)
		}
		if run.LastStage != "third" {
			t.Errorf("expected LastStage third, got %q", run.LastStage)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		second := &mockStep{name: "second", doFunc: func(context.Context, *Run) error { return boom }}
		third := &mockStep{name: "third"}
		p := New(WithLogger(quietLogger()))
		p.AddSteps(&mockStep{name: "first"}, second, third)

		run := newTestRun()
		err := p.Execute(context.Background(), run)
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "second step:") {
			t.Errorf("expected the step name in the error, got %q", err)
		}
		if third.calls() != 0 {
			t.Error("expected the third step to be skipped")
		}
		if run.LastStage != "first" {
			t.Errorf("expected LastStage first, got %q", run.LastStage)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		first := &mockStep{name: "first", doFunc: func(context.Context, *Run) error {
			cancel()
			return nil
		}}
		second := &mockStep{name: "second"}
		p := New(WithLogger(quietLogger()))
		p.AddSteps(first, second)

		err := p.Execute(ctx, newTestRun())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if second.calls() != 0 {
			t.Error("expected the second step to be skipped")
		}
	})

	t.Run("fails on a disconnected tree", func(t *testing.T) {
		t.Parallel()

		tree := smallTree(t)
		breaker := &mockStep{name: "breaker", doFunc: func(_ context.Context, run *Run) error {
			run.Tree.Node(2).Prune()
			return nil
		}}
		var checkpointed bool
		p := New(WithLogger(quietLogger()), WithCheckpoint(func(context.Context, *Run) error {
			checkpointed = true
			return nil
		}))
		p.AddSteps(breaker)

		run := newTestRun()
		run.Tree = tree
		err := p.Execute(context.Background(), run)
		var cv *model.ConnectivityViolation
		if !errors.As(err, &cv) {
			t.Fatalf("expected ConnectivityViolation, got %v", err)
		}
		if checkpointed || run.LastStage != "" {
			t.Error("a step that broke the tree must not be checkpointed")
		}
	})

	t.Run("checkpoint error stops the run", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "second"}
		p := New(WithLogger(quietLogger()), WithCheckpoint(func(context.Context, *Run) error {
			return errors.New("disk full")
		}))
		p.AddSteps(&mockStep{name: "first"}, second)

		err := p.Execute(context.Background(), newTestRun())
		if err == nil || !strings.Contains(err.Error(), "checkpoint first") {
			t.Errorf("expected checkpoint error, got %v", err)
		}
		if second.calls() != 0 {
			t.Error("expected the second step to be skipped")
		}
	})
}

// TestPipelineResume tests starting after the last completed stage.
func TestPipelineResume(t *testing.T) {
	t.Parallel()

	t.Run("skips completed steps and resumes their output", func(t *testing.T) {
		t.Parallel()

		first := &mockStep{name: "first"}
		second := &resumableStep{mockStep: mockStep{name: "second"}}
		third := &mockStep{name: "third"}
		p := New(WithLogger(quietLogger()))
		p.AddSteps(first, second, third)

		run := newTestRun()
		run.LastStage = "second"
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.calls() != 0 || second.calls() != 0 {
			t.Error("expected completed steps to be skipped")
		}
		if second.resumed != 1 {
			t.Errorf("expected Resume to be called once, got %d", second.resumed)
		}
		if third.calls() != 1 {
			t.Errorf("expected the third step to run once, got %d", third.calls())
		}
	})

	t.Run("a finished run does nothing", func(t *testing.T) {
		t.Parallel()

		only := &mockStep{name: "only"}
		p := New(WithLogger(quietLogger()))
		p.AddStep(only)

		run := newTestRun()
		run.LastStage = "only"
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if only.calls() != 0 {
			t.Error("expected nothing to run")
		}
	})

	t.Run("unknown stage", func(t *testing.T) {
		t.Parallel()

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "only"})

		run := newTestRun()
		run.LastStage = "visualize"
		if err := p.Execute(context.Background(), run); !errors.Is(err, ErrUnknownStage) {
			t.Errorf("expected ErrUnknownStage, got %v", err)
		}
	})
}

func TestRunReport(t *testing.T) {
	t.Parallel()

	run := NewRun(&model.Task{ID: 3, SeedURL: "https://www.test-u.ac.jp/"}, config.SiteConfig{School: "テスト大学"})
	run.Tree = smallTree(t)
	run.Err = errors.New("model unavailable")

	c := run.Report()
	if c.RunID != run.ID || c.RunID == "" {
		t.Errorf("expected run id %q, got %q", run.ID, c.RunID)
	}
	if c.Task.SchoolName != "テスト大学" {
		t.Errorf("expected school from site config, got %q", c.Task.SchoolName)
	}
	if run.Task.SchoolName != "" {
		t.Error("the task of the run must not be modified")
	}
	if c.Stats.Total != 4 || c.Stats.Files != 1 {
		t.Errorf("unexpected stats %+v", c.Stats)
	}
	if c.Error != "model unavailable" {
		t.Errorf("expected error message, got %q", c.Error)
	}
	if NewRun(run.Task, run.Site).ID == run.ID {
		t.Error("expected a new id for every run")
	}
}
