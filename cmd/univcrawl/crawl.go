package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/univcrawl/internal/browser"
	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/crawler"
	"github.com/nao1215/univcrawl/internal/database"
	"github.com/nao1215/univcrawl/internal/llm"
	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/pipeline"
	"github.com/nao1215/univcrawl/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl university sites for admissions documents",
		Long: `Crawl runs the seed URLs through the whole pipeline:

  crawl -> sample -> category -> prune -> partition -> persist

Without arguments the pending seeds of the queue are crawled (see
"univcrawl queue add"). With arguments the given seeds are added to the
database and crawled right away.

Examples:
  # Crawl one university
  univcrawl crawl https://www.chiba-u.ac.jp/ --school 千葉大学

  # Crawl the queue, four sites at a time, resuming interrupted tasks
  univcrawl crawl --batch 4 --resume

  # Render JavaScript-heavy sites in headless Chromium
  univcrawl crawl --browser https://www.example-u.ac.jp/

  # Write one Markdown report per task and a download manifest
  univcrawl crawl --markdown -o reports --manifest files.jsonl

Configuration file (.univcrawl) example:
  defaults:
    depth: 3
  sites:
    www.chiba-u.ac.jp:
      school: 千葉大学
      maxChildren: 5
      keywords: [先進科学]`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// crawl
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth, "Maximum crawl depth below the seed (clamped to 10)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages, "Maximum pages fetched per seed (0 for no limit)")
	cmd.Flags().Duration("delay", config.DefaultDelay, "Pause between two page fetches")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout of one page request")
	cmd.Flags().Int("fetch-attempts", config.DefaultFetchAttempts, "Tries per page")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay, "Base delay of the retry backoff")
	cmd.Flags().String("user-agent", "", "User-Agent of plain HTTP requests")
	cmd.Flags().Bool("browser", false, "Render pages in headless Chromium")
	cmd.Flags().String("browser-url", "", "DevTools URL of a running browser (with --browser)")
	cmd.Flags().String("school", "", "School name of the seeds given as arguments")

	// classification
	cmd.Flags().Int("max-children", config.DefaultMaxChildren, "Children kept per page before classification (0 for all)")
	cmd.Flags().Int("max-chunk-bytes", config.DefaultMaxChunkBytes, "Maximum bytes of one model payload")
	cmd.Flags().Float64("threshold", config.DefaultThreshold, "Confidence needed for tier A")
	cmd.Flags().String("provider", config.DefaultLLMProvider, "Language model provider: openai or gemini")
	cmd.Flags().String("model", "", "Model name (default: provider default)")
	cmd.Flags().String("base-url", "", "Endpoint of an OpenAI-compatible provider")
	cmd.Flags().Int("llm-concurrency", config.DefaultLLMConcurrency, "Chunks classified at once")
	cmd.Flags().Int("llm-attempts", config.DefaultLLMAttempts, "Tries per chunk")

	// batch
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of seeds crawled at once")
	cmd.Flags().Int("limit", 0, "Maximum queued seeds to crawl (0 for all)")
	cmd.Flags().Bool("resume", false, "Also resume tasks left crawling by an interrupted run")
	cmd.Flags().Bool("no-db", false, "Do not record tasks (seeds must be given as arguments)")

	// output
	cmd.Flags().BoolP("json", "j", false, "Output JSON reports (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown reports (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Directory receiving one report per task (default: stdout)")
	cmd.Flags().String("manifest", "", "Append the files to download to this JSON lines file")

	return cmd
}

// crawlOptions are the crawl flags that are not part of config.Config.
type crawlOptions struct {
	limit  int
	resume bool
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var opts crawlOptions
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.resume, err = cmd.Flags().GetBool("resume"); err != nil {
		return err
	}

	logger, err := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, stringFlag(cmd, "log-format", "text"))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, stopping after the current step")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, opts, cmd.OutOrStdout(), logger)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.FetchAttempts, err = flags.GetInt("fetch-attempts"); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = flags.GetDuration("retry-delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.UseBrowser, err = flags.GetBool("browser"); err != nil {
		return nil, err
	}
	if cfg.BrowserURL, err = flags.GetString("browser-url"); err != nil {
		return nil, err
	}
	if cfg.SchoolName, err = flags.GetString("school"); err != nil {
		return nil, err
	}

	if cfg.MaxChildren, err = flags.GetInt("max-children"); err != nil {
		return nil, err
	}
	if cfg.MaxChunkBytes, err = flags.GetInt("max-chunk-bytes"); err != nil {
		return nil, err
	}
	if cfg.Threshold, err = flags.GetFloat64("threshold"); err != nil {
		return nil, err
	}
	if cfg.LLMProvider, err = flags.GetString("provider"); err != nil {
		return nil, err
	}
	if cfg.LLMModel, err = flags.GetString("model"); err != nil {
		return nil, err
	}
	if cfg.LLMBaseURL, err = flags.GetString("base-url"); err != nil {
		return nil, err
	}
	if cfg.LLMConcurrency, err = flags.GetInt("llm-concurrency"); err != nil {
		return nil, err
	}
	if cfg.LLMAttempts, err = flags.GetInt("llm-attempts"); err != nil {
		return nil, err
	}

	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	cfg.DBDir = stringFlag(cmd, "db-dir", config.XDGDataDir())

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.ManifestFile, err = flags.GetString("manifest"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.ConfigFilePath = stringFlag(cmd, "config", "")
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	cfg.LoadEnv()
	cfg.Targets = args
	return cfg, nil
}

// runCrawl crawls the targets of cfg, or the queue when there are none.
func runCrawl(ctx context.Context, cfg *config.Config, opts crawlOptions, out io.Writer, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 && !cfg.SaveToDB {
		return errors.New("no seeds provided (give seed URLs as arguments or crawl the queue without --no-db)")
	}
	for _, target := range cfg.Targets {
		if err := validateSeed(target); err != nil {
			return err
		}
	}

	client, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		if errors.Is(err, llm.ErrMissingAPIKey) {
			return fmt.Errorf("%w (set %s)", err, config.APIKeyEnv)
		}
		return err
	}

	var db *database.CrawlDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	components := pipeline.Components{
		Fetchers: newFetchers(cfg, logger),
		Client:   client,
		Logger:   logger,
	}
	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithSites(cfg.SiteConfigs),
		pipeline.WithRunnerLogger(logger),
	}
	if db != nil {
		components.Files = db
		runnerOpts = append(runnerOpts, pipeline.WithSink(db))
	}
	if cfg.ManifestFile != "" {
		f, err := openManifest(cfg.ManifestFile)
		if err != nil {
			return err
		}
		defer f.Close()
		components.Handoff = report.NewManifestWriter(f)
	}

	runner := pipeline.NewRunner(func() []pipeline.Step {
		return pipeline.DefaultSteps(cfg, components)
	}, runnerOpts...)
	bp := pipeline.NewBatchProcessor(runner,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithResume(opts.resume),
		pipeline.WithBatchLogger(logger),
	)

	summary := &crawlSummary{out: out, cfg: cfg, logger: logger}
	startTime := time.Now()

	if len(cfg.Targets) == 0 {
		runs, err := bp.ProcessPending(ctx, db, opts.limit)
		for i, run := range runs {
			summary.add(run, i, len(runs))
		}
		if err != nil {
			return err
		}
	} else {
		tasks, err := seedTasks(ctx, cfg, db, out)
		if err != nil {
			return err
		}
		err = bp.ProcessBatchWithCallback(ctx, tasks, func(run *pipeline.Run, index int) {
			summary.add(run, index, len(tasks))
		})
		if err != nil {
			return err
		}
	}

	return summary.finish(time.Since(startTime))
}

// validateSeed rejects seeds that are not absolute http(s) URLs.
func validateSeed(seed string) error {
	u, err := url.Parse(seed)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid seed URL %q (expected http:// or https://)", seed)
	}
	return nil
}

// seedTasks returns the tasks of the seeds given as arguments. With a
// database the tasks are recorded there; finished tasks are skipped.
func seedTasks(ctx context.Context, cfg *config.Config, db *database.CrawlDB, out io.Writer) ([]*model.Task, error) {
	var tasks []*model.Task
	for i, seed := range cfg.Targets {
		if db == nil {
			tasks = append(tasks, &model.Task{
				ID:         int64(i + 1),
				SeedURL:    seed,
				URLHash:    model.URLHash(seed),
				SchoolName: cfg.SchoolName,
				Status:     model.TaskPending,
			})
			continue
		}

		task, err := db.CreateTask(ctx, seed, cfg.SchoolName)
		if err != nil {
			return nil, err
		}
		switch task.Status {
		case model.TaskCompleted:
			fmt.Fprintf(out, "Skipping %s: already crawled (task %d)\n", seed, task.ID)
			continue
		case model.TaskFailed:
			fmt.Fprintf(out, "Skipping %s: failed earlier (run \"univcrawl reset\" to retry)\n", seed)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// newFetchers returns the page fetcher factory selected by cfg.
func newFetchers(cfg *config.Config, logger *slog.Logger) pipeline.FetcherFactory {
	if cfg.UseBrowser {
		return pipeline.BrowserFetchers(cfg.BrowserURL,
			browser.WithLogger(logger),
			browser.WithTimeouts(cfg.Timeout, 0),
		)
	}
	opts := []crawler.HTTPOption{crawler.WithMaxBodySize(cfg.MaxBodySize)}
	if cfg.UserAgent != "" {
		opts = append(opts, crawler.WithUserAgent(cfg.UserAgent))
	}
	return pipeline.HTTPFetchers(&http.Client{Timeout: cfg.Timeout}, opts...)
}

// openManifest opens path for appending, creating parent directories.
func openManifest(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // user-provided path
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	return f, nil
}

// crawlSummary prints progress and reports as runs finish.
type crawlSummary struct {
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	completed int
	failed    int
}

func (s *crawlSummary) add(run *pipeline.Run, index, total int) {
	if run == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "completed"
	if run.Err != nil {
		status = "failed: " + run.Err.Error()
		s.failed++
	} else {
		s.completed++
	}
	fmt.Fprintf(s.out, "[%d/%d] %s %s\n", index+1, total, run.Task.SeedURL, status)

	if err := outputReport(s.cfg, run, s.out); err != nil {
		s.logger.Error("report failed", "seed", run.Task.SeedURL, "error", err)
	}
}

func (s *crawlSummary) finish(elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.completed + s.failed
	fmt.Fprintf(s.out, "\nCrawled %d task(s) in %s: %d completed, %d failed\n",
		total, elapsed.Round(time.Millisecond), s.completed, s.failed)
	if s.failed > 0 {
		return fmt.Errorf("%d of %d task(s) failed", s.failed, total)
	}
	return nil
}

// outputReport writes the report of run in the requested format. With a
// report directory the report goes to a file and a short summary to out.
func outputReport(cfg *config.Config, run *pipeline.Run, out io.Writer) error {
	c := run.Report()
	if cfg.ReportDir == "" {
		_, err := reportWriter(cfg, out).Write(c)
		return err
	}

	if err := os.MkdirAll(cfg.ReportDir, 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(cfg.ReportDir, reportFileName(run.Task, reportExtension(cfg)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // path built from the report dir
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := report.NewMultiWriter(reportWriter(cfg, f), report.NewSimpleWriter(out))
	if _, err := w.Write(c); err != nil {
		return err
	}
	fmt.Fprintf(out, "Report written to %s\n", path)
	return nil
}

func reportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

func reportExtension(cfg *config.Config) string {
	switch {
	case cfg.JSONReport:
		return ".json"
	case cfg.MarkdownReport:
		return ".md"
	default:
		return ".txt"
	}
}

// reportFileName names the report of task after its ID and seed host,
// e.g. "task-3-www.chiba-u.ac.jp.md".
func reportFileName(task *model.Task, ext string) string {
	host := "seed"
	if u, err := url.Parse(task.SeedURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.NewReplacer(":", "_", "/", "_").Replace(host)
	return fmt.Sprintf("task-%d-%s%s", task.ID, host, ext)
}
