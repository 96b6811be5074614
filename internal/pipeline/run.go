package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/univcrawl/internal/classifier"
	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/crawler"
	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/partition"
	"github.com/nao1215/univcrawl/internal/report"
	"github.com/nao1215/univcrawl/internal/sampler"
)

// Stage names, in the order of DefaultSteps.
const (
	StageCrawl     = "crawl"
	StageSample    = "sample"
	StageCategory  = "category"
	StagePrune     = "prune"
	StagePartition = "partition"
	StagePersist   = "persist"
)

// Run is the state of one task flowing through the pipeline. Every step
// reads and writes it; nothing is shared between runs.
type Run struct {
	// ID identifies this attempt. A resumed task gets a new one.
	ID string

	Task *model.Task
	Site config.SiteConfig

	// Tree is nil until the crawl step has run or a checkpoint was restored.
	Tree *model.Tree

	// LastStage is the last completed step. Execute starts after it.
	LastStage string

	CrawlStats  crawler.Stats
	SampleStats sampler.Stats
	Reports     []*classifier.Report
	Result      *partition.Result

	// Err is the task-level error the run ended with, if any.
	Err error
}

// NewRun creates the run of task, resuming after task.LastStage.
func NewRun(task *model.Task, site config.SiteConfig) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Task:      task,
		Site:      site,
		LastStage: task.LastStage,
	}
}

// School returns the school name from the site config, else from the task.
func (r *Run) School() string {
	if r.Site.School != "" {
		return r.Site.School
	}
	return r.Task.SchoolName
}

// Report summarizes the run for the report writers.
func (r *Run) Report() *report.Crawl {
	c := &report.Crawl{
		RunID:       r.ID,
		Task:        r.Task,
		Result:      r.Result,
		GeneratedAt: time.Now(),
	}
	if r.Task.SchoolName == "" && r.Site.School != "" {
		task := *r.Task
		task.SchoolName = r.Site.School
		c.Task = &task
	}
	if r.Tree != nil {
		c.Stats = r.Tree.Stats()
	}
	for _, rep := range r.Reports {
		c.Stages = append(c.Stages, report.NewStageSummary(rep))
	}
	if r.Result != nil {
		c.Files = r.Result.Files()
	}
	if r.Err != nil {
		c.Error = r.Err.Error()
	}
	return c
}
