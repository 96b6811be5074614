package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/univcrawl/internal/chunker"
	"github.com/nao1215/univcrawl/internal/keyword"
	"github.com/nao1215/univcrawl/internal/llm"
	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/retry"
)

// DefaultConcurrency is the number of model calls in flight at once.
const DefaultConcurrency = 4

// Default confidences for answers that carry no usable number.
const (
	SuccessConfidence  = 0.8
	RepairedConfidence = 0.6
	RuleConfidence     = 1.0
)

// Classifier runs the category and pruning stages.
type Classifier struct {
	client         llm.Client
	logger         *slog.Logger
	maxChunkBytes  int
	concurrency    int
	retry          retry.Policy
	baseURL        string
	promptContext  map[string]string
	categoryPrompt string
	pruningPrompt  string
	noise          *keyword.Set
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithMaxChunkBytes sets the chunk budget.
func WithMaxChunkBytes(n int) Option {
	return func(c *Classifier) {
		c.maxChunkBytes = n
	}
}

// WithConcurrency sets how many chunks are sent to the model at once.
func WithConcurrency(n int) Option {
	return func(c *Classifier) {
		c.concurrency = n
	}
}

// WithRetryPolicy sets the retry budget per chunk.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Classifier) {
		c.retry = p
	}
}

// WithSite sets the school name and base URL shown to the model.
// The base URL is also used to shorten links in the payload.
func WithSite(school, baseURL string) Option {
	return func(c *Classifier) {
		c.baseURL = baseURL
		c.promptContext = map[string]string{"school": school, "base_url": baseURL}
	}
}

// WithPrompts replaces the category and pruning prompts. Empty values keep the default.
func WithPrompts(category, pruning string) Option {
	return func(c *Classifier) {
		if category != "" {
			c.categoryPrompt = category
		}
		if pruning != "" {
			c.pruningPrompt = pruning
		}
	}
}

// WithNoiseKeywords sets the keywords that label a node NOISE without a model call.
func WithNoiseKeywords(words []string) Option {
	return func(c *Classifier) {
		c.noise = keyword.NewSet(words...)
	}
}

// New creates a Classifier that talks to client.
func New(client llm.Client, opts ...Option) *Classifier {
	c := &Classifier{
		client:         client,
		logger:         slog.Default(),
		maxChunkBytes:  chunker.DefaultMaxChunkBytes,
		concurrency:    DefaultConcurrency,
		retry:          retry.DefaultPolicy(),
		promptContext:  map[string]string{},
		categoryPrompt: CategoryPrompt,
		pruningPrompt:  PruningPrompt,
		noise:          keyword.NewSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	return c
}

// Report summarizes one stage run.
type Report struct {
	Stage     model.Stage
	Chunks    int
	Calls     int
	Decisions int
	// Outcomes counts decisions by how they were obtained.
	Outcomes map[model.Outcome]int
	// Dropped is the number of nodes newly pruned, including descendants.
	Dropped int
}

func newReport(stage model.Stage) *Report {
	return &Report{Stage: stage, Outcomes: make(map[model.Outcome]int)}
}

// chunkFunc turns one chunk into decisions. It is called with retries.
type chunkFunc func(ctx context.Context, chunk model.Chunk) ([]model.Decision, error)

// fallbackFunc produces the decisions used when a chunk exhausted its retries.
type fallbackFunc func(chunk model.Chunk, err error) []model.Decision

// run packs nodes, classifies every chunk concurrently and merges the
// decisions into tree as they arrive. Packing of a chunk always completes
// before it is dispatched.
func (c *Classifier) run(ctx context.Context, tree *model.Tree, nodes []int, format chunker.LineFormatter,
	report *Report, call chunkFunc, fallback fallbackFunc) error {
	var mu sync.Mutex
	merge := func(ds []model.Decision) {
		mu.Lock()
		defer mu.Unlock()
		report.Decisions += len(ds)
		for _, d := range ds {
			report.Outcomes[d.Outcome]++
		}
		dropped, err := Merge(tree, ds)
		report.Dropped += dropped
		if err != nil {
			c.logger.Warn("conflicting decision ignored", "stage", report.Stage.String(), "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	dispatch := func(chunk model.Chunk) {
		g.Go(func() error {
			calls := 0
			var ds []model.Decision
			_, err := retry.Do(gctx, c.retry, llm.IsRetryable, func(int) error {
				calls++
				var err error
				ds, err = call(gctx, chunk)
				return err
			})
			mu.Lock()
			report.Calls += calls
			mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("chunk degraded to default decisions",
					"stage", report.Stage.String(), "chunk", chunk.Seq, "nodes", len(chunk.NodeRefs), "error", err)
				ds = fallback(chunk, err)
			}
			merge(ds)
			return nil
		})
	}

	// Decisions of earlier chunks are merged while later chunks are packed,
	// so nodes are rendered under the merge lock.
	truncated := make(map[int]bool)
	render := truncating(format, truncated)
	locked := func(n *model.Node, shortURL string) string {
		mu.Lock()
		defer mu.Unlock()
		return render(n, shortURL)
	}

	seq := 0
	remaining := nodes
	for len(remaining) > 0 {
		packer := chunker.New(tree, c.maxChunkBytes,
			chunker.WithBaseURL(c.baseURL),
			chunker.WithLineFormatter(locked))

		consumed := 0
		var oversized *model.OversizedNodeError
		for chunk, err := range packer.Pack(remaining) {
			if err != nil {
				if errors.As(err, &oversized) {
					break
				}
				_ = g.Wait()
				return fmt.Errorf("failed to pack chunks: %w", err)
			}
			if gctx.Err() != nil {
				break
			}
			chunk.Seq = seq
			seq++
			consumed += len(chunk.NodeRefs)
			report.Chunks++
			dispatch(chunk)
		}
		if oversized == nil || gctx.Err() != nil {
			break
		}

		remaining = remaining[consumed:]
		if !truncated[oversized.NodeIndex] {
			c.logger.Debug("truncating oversized node", "node", oversized.NodeIndex, "size", oversized.Size, "limit", oversized.Limit)
			truncated[oversized.NodeIndex] = true
			continue
		}
		c.logger.Warn("node too large even after truncation", "node", oversized.NodeIndex)
		merge(fallback(model.Chunk{NodeRefs: []int{oversized.NodeIndex}}, oversized))
		remaining = slices.DeleteFunc(slices.Clone(remaining), func(i int) bool { return i == oversized.NodeIndex })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Merge applies decisions to tree by node index and returns how many nodes
// were newly pruned. Merging the same decisions again changes nothing:
// categories only leave UNCLASSIFIED, confidence keeps its maximum and
// pruning only ever flips nodes to pruned. Dropping a node prunes its
// whole subtree. Roots are never pruned.
func Merge(tree *model.Tree, decisions []model.Decision) (int, error) {
	var errs []error
	dropped := 0
	for _, d := range decisions {
		n := tree.Node(d.NodeIndex)
		if n == nil {
			errs = append(errs, fmt.Errorf("%w: decision for unknown node %d", model.ErrDanglingParent, d.NodeIndex))
			continue
		}
		switch d.Stage {
		case model.StageCategory:
			if err := n.SetCategory(d.Category); err != nil {
				errs = append(errs, err)
				continue
			}
			if d.Category != model.CategoryUnclassified {
				n.RaiseConfidence(d.Confidence)
			}
			if d.Outcome == model.OutcomeDefault {
				n.AddNote("category: model answer unusable")
			}
		case model.StagePruning:
			if !d.Drop || n.IsRoot() {
				continue
			}
			for _, i := range append([]int{n.Index}, tree.Descendants(n.Index)...) {
				if m := tree.Node(i); m.Retained() {
					m.Prune()
					dropped++
				}
			}
		}
	}
	return dropped, errors.Join(errs...)
}

// defaults returns the conservative decision for every node of chunk.
func defaults(stage model.Stage, chunk model.Chunk, err error) []model.Decision {
	raw := ""
	var pe *model.LLMParseError
	if errors.As(err, &pe) {
		raw = pe.RawText
	}
	out := make([]model.Decision, 0, len(chunk.NodeRefs))
	for _, i := range chunk.NodeRefs {
		out = append(out, model.Decision{
			NodeIndex:    i,
			Stage:        stage,
			Outcome:      model.OutcomeDefault,
			Category:     model.CategoryUnclassified,
			RawModelText: raw,
		})
	}
	return out
}

// truncating wraps format so that nodes in truncated render with shortened fields.
func truncating(format chunker.LineFormatter, truncated map[int]bool) chunker.LineFormatter {
	return func(n *model.Node, shortURL string) string {
		if !truncated[n.Index] {
			return format(n, shortURL)
		}
		short := *n
		short.Title = cut(n.Title, 120)
		short.FatherTitle = cut(n.FatherTitle, 60)
		short.Summary = ""
		short.Breadcrumb = nil
		crumbs := n.Breadcrumb
		if len(crumbs) > 2 {
			crumbs = crumbs[len(crumbs)-2:]
		}
		for _, b := range crumbs {
			short.Breadcrumb = append(short.Breadcrumb, cut(b, 40))
		}
		return format(&short, cut(shortURL, 200))
	}
}

// cut shortens s to at most n runes.
func cut(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
