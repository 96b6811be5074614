package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/nao1215/univcrawl/internal/browser"
	"github.com/nao1215/univcrawl/internal/classifier"
	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/crawler"
	"github.com/nao1215/univcrawl/internal/database"
	"github.com/nao1215/univcrawl/internal/llm"
	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/partition"
	"github.com/nao1215/univcrawl/internal/report"
	"github.com/nao1215/univcrawl/internal/retry"
	"github.com/nao1215/univcrawl/internal/sampler"
)

// ErrNoTree is returned by steps that need a tree when none was built or restored.
var ErrNoTree = errors.New("run has no tree")

// FetcherFactory opens the page fetcher of one task. The returned close
// function releases it once the crawl is over. Every task gets its own
// fetcher, so browser sessions and cookies never leak between tasks.
type FetcherFactory func(ctx context.Context, site config.SiteConfig) (crawler.PageFetcher, func() error, error)

// HTTPFetchers returns a factory of net/http fetchers sharing client.
// The cookie and headers of the site config are sent with every request.
func HTTPFetchers(client *http.Client, opts ...crawler.HTTPOption) FetcherFactory {
	return func(_ context.Context, site config.SiteConfig) (crawler.PageFetcher, func() error, error) {
		headers := maps.Clone(site.Headers)
		if site.Cookie != "" {
			if headers == nil {
				headers = make(map[string]string, 1)
			}
			headers["Cookie"] = site.Cookie
		}
		fetcherOpts := append(slices.Clone(opts), crawler.WithHeaders(headers))
		return crawler.NewHTTPFetcher(client, fetcherOpts...), func() error { return nil }, nil
	}
}

// BrowserFetchers returns a factory that opens one headless browser per
// task. An empty controlURL launches a local browser.
func BrowserFetchers(controlURL string, opts ...browser.Option) FetcherFactory {
	return func(ctx context.Context, _ config.SiteConfig) (crawler.PageFetcher, func() error, error) {
		f, err := browser.New(ctx, controlURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}

// CrawlStep builds the link tree of the task's seed.
type CrawlStep struct {
	fetchers FetcherFactory
	policy   crawler.Policy
	maxDepth int
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlPolicy sets the link policy. Site configs extend it per task.
func WithCrawlPolicy(p crawler.Policy) CrawlStepOption {
	return func(s *CrawlStep) {
		s.policy = p
	}
}

// WithCrawlMaxDepth sets the depth used when the site config has none.
func WithCrawlMaxDepth(depth int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxDepth = depth
	}
}

// WithCrawlLogger sets the logger.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step that opens fetchers with fetchers.
func NewCrawlStep(fetchers FetcherFactory, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetchers: fetchers,
		policy:   crawler.DefaultPolicy(),
		maxDepth: config.DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return StageCrawl
}

// Do crawls the seed of run.Task and stores the tree on the run.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	depth := s.maxDepth
	if run.Site.Depth > 0 {
		depth = run.Site.Depth
	}

	fetcher, closeFetcher, err := s.fetchers(ctx, run.Site)
	if err != nil {
		return fmt.Errorf("failed to open fetcher: %w", err)
	}
	defer func() {
		if cerr := closeFetcher(); cerr != nil {
			s.logger.Warn("failed to close fetcher", "error", cerr)
		}
	}()

	builder := crawler.NewBuilder(fetcher,
		crawler.WithPolicy(s.policy.ForSite(run.Site)),
		crawler.WithLogger(s.logger),
	)
	tree, stats, err := builder.Build(ctx, run.Task.SeedURL, depth)
	run.CrawlStats = stats
	if err != nil {
		return err
	}
	run.Tree = tree

	s.logger.Info("crawl completed",
		"seed", run.Task.SeedURL,
		"nodes", tree.Len(),
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"captchas", stats.Captchas,
		"files", stats.Files,
	)
	return nil
}

// SampleStep caps the fan-out of the tree before classification.
type SampleStep struct {
	maxChildren int
	logger      *slog.Logger
}

// NewSampleStep creates a sample step that keeps at most maxChildren
// children per father. The site config may override the cap.
func NewSampleStep(maxChildren int, logger *slog.Logger) *SampleStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleStep{maxChildren: maxChildren, logger: logger}
}

// Name returns the step name.
func (s *SampleStep) Name() string {
	return StageSample
}

// Do replaces run.Tree with its sampled copy.
func (s *SampleStep) Do(_ context.Context, run *Run) error {
	if run.Tree == nil {
		return ErrNoTree
	}
	limit := s.maxChildren
	if run.Site.MaxChildren > 0 {
		limit = run.Site.MaxChildren
	}

	tree, stats := sampler.Sample(run.Tree, limit)
	run.Tree = tree
	run.SampleStats = stats

	s.logger.Info("sampling completed",
		"max_children", limit,
		"groups_capped", stats.GroupsCapped,
		"removed", stats.Removed,
	)
	return nil
}

// ClassifierFactory creates the classifier of one run.
type ClassifierFactory func(run *Run) *classifier.Classifier

// Classifiers returns a factory that configures client for the school
// and seed of each run.
func Classifiers(client llm.Client, opts ...classifier.Option) ClassifierFactory {
	return func(run *Run) *classifier.Classifier {
		runOpts := append(slices.Clone(opts), classifier.WithSite(run.School(), run.Task.SeedURL))
		return classifier.New(client, runOpts...)
	}
}

// CategoryStep runs the category stage of the classifier.
type CategoryStep struct {
	classifiers ClassifierFactory
}

// NewCategoryStep creates the category step.
func NewCategoryStep(classifiers ClassifierFactory) *CategoryStep {
	return &CategoryStep{classifiers: classifiers}
}

// Name returns the step name.
func (s *CategoryStep) Name() string {
	return StageCategory
}

// Do categorizes the active nodes of run.Tree.
func (s *CategoryStep) Do(ctx context.Context, run *Run) error {
	if run.Tree == nil {
		return ErrNoTree
	}
	rep, err := s.classifiers(run).Categorize(ctx, run.Tree)
	if rep != nil {
		run.Reports = append(run.Reports, rep)
	}
	return err
}

// PruneStep runs the pruning stage of the classifier.
type PruneStep struct {
	classifiers ClassifierFactory
}

// NewPruneStep creates the prune step.
func NewPruneStep(classifiers ClassifierFactory) *PruneStep {
	return &PruneStep{classifiers: classifiers}
}

// Name returns the step name.
func (s *PruneStep) Name() string {
	return StagePrune
}

// Do prunes the categorized tree.
func (s *PruneStep) Do(ctx context.Context, run *Run) error {
	if run.Tree == nil {
		return ErrNoTree
	}
	rep, err := s.classifiers(run).Prune(ctx, run.Tree)
	if rep != nil {
		run.Reports = append(run.Reports, rep)
	}
	return err
}

// PartitionStep splits the retained nodes into tier A and tier B.
type PartitionStep struct {
	threshold float64
}

// NewPartitionStep creates the partition step.
func NewPartitionStep(threshold float64) *PartitionStep {
	return &PartitionStep{threshold: threshold}
}

// Name returns the step name.
func (s *PartitionStep) Name() string {
	return StagePartition
}

// Do assigns tiers and stores the result on the run.
func (s *PartitionStep) Do(_ context.Context, run *Run) error {
	if run.Tree == nil {
		return ErrNoTree
	}
	result, err := partition.Partition(run.Tree, s.threshold)
	if err != nil {
		return err
	}
	run.Result = result
	return nil
}

// Resume rebuilds the partition result of a restored tree.
// Partitioning the same tree again assigns the same tiers.
func (s *PartitionStep) Resume(ctx context.Context, run *Run) error {
	return s.Do(ctx, run)
}

// FileStore records the files of a task.
type FileStore interface {
	CreateFileRecord(ctx context.Context, rec *database.FileRecord) error
}

// PersistStep hands the files of the partition result off for download.
type PersistStep struct {
	files   FileStore
	handoff report.FileHandoff
	logger  *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithFileStore records every file in store.
func WithFileStore(store FileStore) PersistStepOption {
	return func(s *PersistStep) {
		s.files = store
	}
}

// WithHandoff passes the files of every task to h.
func WithHandoff(h report.FileHandoff) PersistStepOption {
	return func(s *PersistStep) {
		s.handoff = h
	}
}

// WithPersistLogger sets the logger.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates the persist step. Without options it only logs.
func NewPersistStep(opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return StagePersist
}

// Do records and hands off the files of run.Result.
func (s *PersistStep) Do(ctx context.Context, run *Run) error {
	if run.Result == nil {
		return errors.New("run has no partition result")
	}
	files := run.Result.Files()

	if s.files != nil {
		for _, f := range files {
			err := s.files.CreateFileRecord(ctx, &database.FileRecord{
				TaskID:        run.Task.ID,
				NodeIndex:     f.NodeIndex,
				URL:           f.URL,
				SuggestedName: f.SuggestedName,
				Tier:          f.Tier,
				Confidence:    f.Confidence,
			})
			if err != nil {
				return err
			}
		}
	}
	if s.handoff != nil && len(files) > 0 {
		task := *run.Task
		task.SchoolName = run.School()
		if err := s.handoff.Handoff(ctx, &task, files); err != nil {
			return fmt.Errorf("failed to hand off files: %w", err)
		}
	}

	s.logger.Info("files handed off",
		"seed", run.Task.SeedURL,
		"files", len(files),
		"tier_a", countTier(files, model.TierA),
	)
	return nil
}

func countTier(files []partition.Handoff, tier model.Tier) int {
	n := 0
	for _, f := range files {
		if f.Tier == tier {
			n++
		}
	}
	return n
}

// Components are the collaborators DefaultSteps wires into the steps.
type Components struct {
	// Fetchers opens the page fetcher of each task. Required.
	Fetchers FetcherFactory
	// Client is the language model. Required.
	Client llm.Client
	// Files records hand-offs, usually the crawl database. Optional.
	Files FileStore
	// Handoff receives the files of every task. Optional.
	Handoff report.FileHandoff
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// CrawlPolicy returns the default link policy with the politeness and
// retry settings of cfg.
func CrawlPolicy(cfg *config.Config) crawler.Policy {
	p := crawler.DefaultPolicy()
	p.MaxPages = cfg.MaxPages
	p.Delay = cfg.CrawlDelay
	p.Retry = retry.Policy{
		Attempts:  cfg.FetchAttempts,
		BaseDelay: cfg.RetryDelay,
		MaxDelay:  retry.DefaultPolicy().MaxDelay,
	}
	return p
}

// DefaultSteps returns the standard steps in execution order:
// crawl, sample, category, prune, partition and persist.
func DefaultSteps(cfg *config.Config, c Components) []Step {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	classifiers := Classifiers(c.Client,
		classifier.WithLogger(logger),
		classifier.WithMaxChunkBytes(cfg.MaxChunkBytes),
		classifier.WithConcurrency(cfg.LLMConcurrency),
		classifier.WithNoiseKeywords(config.NoiseKeywords),
		classifier.WithRetryPolicy(retry.Policy{
			Attempts:  cfg.LLMAttempts,
			BaseDelay: cfg.RetryDelay,
			MaxDelay:  retry.DefaultPolicy().MaxDelay,
		}),
	)

	persistOpts := []PersistStepOption{WithPersistLogger(logger)}
	if c.Files != nil {
		persistOpts = append(persistOpts, WithFileStore(c.Files))
	}
	if c.Handoff != nil {
		persistOpts = append(persistOpts, WithHandoff(c.Handoff))
	}

	return []Step{
		NewCrawlStep(c.Fetchers,
			WithCrawlPolicy(CrawlPolicy(cfg)),
			WithCrawlMaxDepth(cfg.MaxDepth),
			WithCrawlLogger(logger),
		),
		NewSampleStep(cfg.MaxChildren, logger),
		NewCategoryStep(classifiers),
		NewPruneStep(classifiers),
		NewPartitionStep(cfg.Threshold),
		NewPersistStep(persistOpts...),
	}
}
