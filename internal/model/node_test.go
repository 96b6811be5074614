package model

import (
	"errors"
	"strings"
	"testing"
)

func TestNodeSetCategory(t *testing.T) {
	t.Parallel()

	t.Run("moves out of unclassified once", func(t *testing.T) {
		t.Parallel()

		n := &Node{}
		if err := n.SetCategory(CategoryPage); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.Category != CategoryPage {
			t.Errorf("expected PAGE, got %s", n.Category)
		}
	})

	t.Run("same category twice is a no-op", func(t *testing.T) {
		t.Parallel()

		n := &Node{Category: CategoryFile}
		if err := n.SetCategory(CategoryFile); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unclassified never overwrites", func(t *testing.T) {
		t.Parallel()

		n := &Node{Category: CategoryNoise}
		if err := n.SetCategory(CategoryUnclassified); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if n.Category != CategoryNoise {
			t.Errorf("expected NOISE to be kept, got %s", n.Category)
		}
	})

	t.Run("terminal category rejects change", func(t *testing.T) {
		t.Parallel()

		n := &Node{Category: CategoryNoise}
		err := n.SetCategory(CategoryPage)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if n.Category != CategoryNoise {
			t.Errorf("category changed to %s", n.Category)
		}
	})
}

func TestNodeStateHelpers(t *testing.T) {
	t.Parallel()

	n := &Node{FatherIndex: NoFather, Breadcrumb: []string{"Top", "入試情報"}}
	if !n.IsRoot() || !n.Retained() || !n.Active() {
		t.Error("fresh root should be retained and active")
	}
	if got := n.BreadcrumbString(); got != "Top > 入試情報" {
		t.Errorf("got %q", got)
	}

	n.RaiseConfidence(0.7)
	n.RaiseConfidence(0.4)
	if n.Confidence != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", n.Confidence)
	}

	n.SampledOut = true
	if n.Active() || !n.Retained() {
		t.Error("sampled-out node should be retained but not active")
	}

	n.Prune()
	n.Prune()
	if n.Retained() {
		t.Error("pruned node reported as retained")
	}

	n.AddNote("fetch failed")
	n.AddNote("captcha")
	n.AddNote("fetch failed")
	if n.Note != "fetch failed; captcha" {
		t.Errorf("unexpected note %q", n.Note)
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"FILE", CategoryFile, false},
		{"page", CategoryPage, false},
		{" Noise ", CategoryNoise, false},
		{"OTHER", CategoryNoise, false},
		{"", CategoryUnclassified, false},
		{"banana", CategoryUnclassified, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCategory(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTaskStatusCanTransition(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskPending, TaskCrawling, true},
		{TaskCrawling, TaskCompleted, true},
		{TaskCrawling, TaskFailed, true},
		{TaskFailed, TaskPending, true},
		{TaskCompleted, TaskPending, false},
		{TaskCompleted, TaskCrawling, false},
		{TaskFailed, TaskCompleted, false},
		{TaskCrawling, TaskPending, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			t.Parallel()

			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTrimErrorMessage(t *testing.T) {
	t.Parallel()

	short := "boom"
	if got := TrimErrorMessage(short); got != short {
		t.Errorf("short message changed: %q", got)
	}

	long := strings.Repeat("あ", 400)
	got := TrimErrorMessage(long)
	if len(got) > MaxErrorMessageLength {
		t.Errorf("expected at most %d bytes, got %d", MaxErrorMessageLength, len(got))
	}
	if !strings.HasPrefix(long, got) || len(got)%3 != 0 {
		t.Errorf("message was cut inside a rune")
	}
}

func TestURLHash(t *testing.T) {
	t.Parallel()

	a := URLHash("https://www.example.ac.jp/")
	b := URLHash("https://www.example.ac.jp/")
	c := URLHash("https://www.other.ac.jp/")
	if a != b {
		t.Error("hash is not stable")
	}
	if a == c {
		t.Error("different URLs produced the same hash")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex characters, got %d", len(a))
	}
}

func TestDecisionVerdict(t *testing.T) {
	t.Parallel()

	if got := (Decision{Stage: StageCategory, Category: CategoryFile}).Verdict(); got != "FILE" {
		t.Errorf("got %q", got)
	}
	if got := (Decision{Stage: StagePruning, Drop: true}).Verdict(); got != "DROP" {
		t.Errorf("got %q", got)
	}
	if got := (Decision{Stage: StagePruning}).Verdict(); got != "KEEP" {
		t.Errorf("got %q", got)
	}
}
