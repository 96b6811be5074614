package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/univcrawl/internal/classifier"
	"github.com/nao1215/univcrawl/internal/database"
	"github.com/nao1215/univcrawl/internal/llm"
	"github.com/nao1215/univcrawl/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name   string
	doFunc func(ctx context.Context, run *Run) error

	mu        sync.Mutex
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func (m *mockStep) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// resumableStep is a mockStep that also implements Resumer.
type resumableStep struct {
	mockStep
	resumed int
}

func (r *resumableStep) Resume(context.Context, *Run) error {
	r.resumed++
	return nil
}

// smallTree returns a root with two children, the second with one child.
func smallTree(t *testing.T) *model.Tree {
	t.Helper()

	tree := model.NewTree()
	for _, n := range []model.Node{
		{FatherIndex: model.NoFather, URL: "https://www.test-u.ac.jp/", Title: "テスト大学"},
		{FatherIndex: 0, URL: "https://www.test-u.ac.jp/admission", Title: "入試情報"},
		{FatherIndex: 0, URL: "https://www.test-u.ac.jp/exam", Title: "試験"},
		{FatherIndex: 2, URL: "https://www.test-u.ac.jp/exam/guide.pdf", Title: "募集要項", IsFile: true, FileExtension: ".pdf"},
	} {
		if _, err := tree.Add(n); err != nil {
			t.Fatal(err)
		}
	}
	return tree
}

// treeStep returns a step that installs tree on the run.
func treeStep(name string, tree *model.Tree) *mockStep {
	return &mockStep{name: name, doFunc: func(_ context.Context, run *Run) error {
		run.Tree = tree
		return nil
	}}
}

// memStore is an in-memory TaskSink, SeedSource and FileStore.
type memStore struct {
	mu       sync.Mutex
	tasks    map[int64]*model.Task
	nodes    map[int64][]model.Node
	files    []database.FileRecord
	statuses map[int64][]model.TaskStatus
	pruned   map[int64][]int
	failNext error
}

func newMemStore(tasks ...*model.Task) *memStore {
	s := &memStore{
		tasks:    make(map[int64]*model.Task),
		nodes:    make(map[int64][]model.Node),
		statuses: make(map[int64][]model.TaskStatus),
		pruned:   make(map[int64][]int),
	}
	for _, task := range tasks {
		cp := *task
		s.tasks[task.ID] = &cp
	}
	return s
}

func (s *memStore) UpdateTaskStatus(_ context.Context, id int64, status model.TaskStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return database.ErrTaskNotFound
	}
	if !task.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, task.Status, status)
	}
	task.Status = status
	task.ErrorMessage = model.TrimErrorMessage(errMsg)
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

func (s *memStore) UpdateTaskProgress(_ context.Context, id int64, lastStage string, stats model.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.tasks[id]
	task.LastStage = lastStage
	task.NodeCount = stats.Total
	task.PrunedCount = stats.Pruned
	task.FileCount = stats.Files
	return nil
}

func (s *memStore) BulkInsertNodes(_ context.Context, taskID int64, nodes []*model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	stored := make([]model.Node, len(nodes))
	for i, n := range nodes {
		stored[i] = *n
		stored[i].Breadcrumb = slices.Clone(n.Breadcrumb)
	}
	s.nodes[taskID] = stored
	return nil
}

func (s *memStore) MarkPruned(_ context.Context, taskID int64, indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruned[taskID] = slices.Clone(indices)
	for _, i := range indices {
		s.nodes[taskID][i].IsPruned = true
	}
	return nil
}

func (s *memStore) GetNodes(_ context.Context, taskID int64) ([]model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.nodes[taskID]), nil
}

func (s *memStore) GetPendingSeedURLs(_ context.Context, limit int) ([]*model.Task, error) {
	return s.byStatus(model.TaskPending, limit), nil
}

func (s *memStore) ListTasks(_ context.Context, status model.TaskStatus) ([]*model.Task, error) {
	return s.byStatus(status, 0), nil
}

func (s *memStore) byStatus(status model.TaskStatus, limit int) []*model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Task
	for _, task := range s.tasks {
		if task.Status == status {
			cp := *task
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.Task) int { return int(a.ID - b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) CreateFileRecord(_ context.Context, rec *database.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, *rec)
	return nil
}

func (s *memStore) task(id int64) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *memStore) history(id int64) []model.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.statuses[id])
}

var childLine = regexp.MustCompile(`CHILD -> (\d+) \|`)

// fakeModel answers the category stage with PAGE for every node and the
// pruning stage with drop.
func fakeModel(drop ...int) llm.Client {
	return llm.ClientFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.PromptTemplate == classifier.PruningPrompt {
			idx := make([]string, len(drop))
			for i, d := range drop {
				idx[i] = fmt.Sprint(d)
			}
			return `{"DEL_IDX": [` + strings.Join(idx, ", ") + `]}`, nil
		}
		var entries []string
		for _, m := range childLine.FindAllStringSubmatch(req.Payload, -1) {
			entries = append(entries, fmt.Sprintf("%q: 0.9", m[1]))
		}
		return `{"PAGE": {` + strings.Join(entries, ", ") + `}}`, nil
	})
}
