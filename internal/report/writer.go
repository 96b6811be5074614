package report

import (
	"io"
	"time"

	"github.com/nao1215/univcrawl/internal/classifier"
	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/partition"
)

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(c *Crawl) (int, error)
}

// StageSummary is the bookkeeping of one classification stage.
type StageSummary struct {
	Stage     string         `json:"stage"`
	Chunks    int            `json:"chunks"`
	Calls     int            `json:"calls"`
	Decisions int            `json:"decisions"`
	Dropped   int            `json:"dropped,omitempty"`
	Outcomes  map[string]int `json:"outcomes,omitempty"`
}

// NewStageSummary converts a classifier report.
func NewStageSummary(r *classifier.Report) StageSummary {
	s := StageSummary{
		Stage:     r.Stage.String(),
		Chunks:    r.Chunks,
		Calls:     r.Calls,
		Decisions: r.Decisions,
		Dropped:   r.Dropped,
	}
	if len(r.Outcomes) > 0 {
		s.Outcomes = make(map[string]int, len(r.Outcomes))
		for o, n := range r.Outcomes {
			s.Outcomes[o.String()] = n
		}
	}
	return s
}

// Crawl is everything a report shows about one finished task.
type Crawl struct {
	RunID       string              `json:"run_id"`
	Task        *model.Task         `json:"task"`
	Stats       model.Stats         `json:"stats"`
	Stages      []StageSummary      `json:"stages,omitempty"`
	Result      *partition.Result   `json:"result,omitempty"`
	Files       []partition.Handoff `json:"files,omitempty"`
	Error       string              `json:"error,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Failed reports whether the task ended with an error.
func (c *Crawl) Failed() bool {
	return c.Error != ""
}

// tierCount returns the number of members of tier t.
func (c *Crawl) tierCount(t model.Tier) int {
	if c.Result == nil {
		return 0
	}
	switch t {
	case model.TierA:
		return len(c.Result.TierA.Members())
	case model.TierB:
		return len(c.Result.TierB.Members())
	default:
		return 0
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(c *Crawl) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(c)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
