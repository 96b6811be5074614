package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/univcrawl/internal/partition"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every tier member instead of the counts only.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(c *Crawl) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, c)
	w.writeSummary(&sb, c)
	w.writeFiles(&sb, c)
	if w.verbose && c.Result != nil {
		w.writeTier(&sb, "TIER A", c.Result.TierA)
		w.writeTier(&sb, "TIER B", c.Result.TierB)
	}

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the task identity and status.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, c *Crawl) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	if c.Task.SchoolName != "" {
		sb.WriteString(fmt.Sprintf("School:     %s\n", c.Task.SchoolName))
	}
	sb.WriteString(fmt.Sprintf("Seed:       %s\n", c.Task.SeedURL))
	sb.WriteString(fmt.Sprintf("Run:        %s\n", c.RunID))
	sb.WriteString(fmt.Sprintf("Generated:  %s\n", c.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	if c.Failed() {
		sb.WriteString(fmt.Sprintf("Status:     FAILED - %s\n", c.Error))
	} else {
		sb.WriteString(fmt.Sprintf("Status:     %s\n", c.Task.Status))
	}
	sb.WriteString("\n")
}

// writeSummary writes the node counts and the model usage per stage.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, c *Crawl) {
	section(sb, "SUMMARY")

	sb.WriteString(fmt.Sprintf("  Nodes:       %d\n", c.Stats.Total))
	sb.WriteString(fmt.Sprintf("  Retained:    %d\n", c.Stats.Retained))
	sb.WriteString(fmt.Sprintf("  Pruned:      %d\n", c.Stats.Pruned))
	sb.WriteString(fmt.Sprintf("  Sampled out: %d\n", c.Stats.SampledOut))
	if c.Result != nil {
		sb.WriteString(fmt.Sprintf("  Tier A:      %d (confidence >= %.2f)\n", len(c.Result.TierA.Members()), c.Result.Threshold))
		sb.WriteString(fmt.Sprintf("  Tier B:      %d\n", len(c.Result.TierB.Members())))
	}
	sb.WriteString("\n")

	for _, s := range c.Stages {
		sb.WriteString(fmt.Sprintf("  [%s] chunks=%d calls=%d decisions=%d", s.Stage, s.Chunks, s.Calls, s.Decisions))
		if s.Dropped > 0 {
			sb.WriteString(fmt.Sprintf(" dropped=%d", s.Dropped))
		}
		sb.WriteString("\n")
	}
	if len(c.Stages) > 0 {
		sb.WriteString("\n")
	}
}

// writeFiles lists the files handed off for download.
func (w *SimpleWriter) writeFiles(sb *strings.Builder, c *Crawl) {
	if len(c.Files) == 0 {
		return
	}
	section(sb, "FILES")
	for _, f := range c.Files {
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", f.Tier, f.SuggestedName))
		sb.WriteString(fmt.Sprintf("      %s\n", f.URL))
	}
	sb.WriteString("\n")
}

// writeTier lists the members of a tier with their breadcrumb.
func (w *SimpleWriter) writeTier(sb *strings.Builder, title string, v partition.View) {
	section(sb, title)
	members := v.Members()
	if len(members) == 0 {
		sb.WriteString("  (empty)\n\n")
		return
	}
	for _, e := range members {
		sb.WriteString(fmt.Sprintf("  %4d %-5s %.2f %s\n", e.Index, e.Category, e.Confidence, label(e.Breadcrumb, e.Title)))
		sb.WriteString(fmt.Sprintf("       %s\n", e.URL))
	}
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// label joins a breadcrumb and a title into one line.
func label(breadcrumb []string, title string) string {
	parts := append([]string{}, breadcrumb...)
	if title != "" {
		parts = append(parts, title)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " > ")
}
