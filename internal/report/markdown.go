package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/partition"
)

// MarkdownWriter outputs the tier report in Markdown format, for
// reviewers who read the result in a browser or a pull request.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(c *Crawl) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, c)
	w.writeSummary(md, c)
	w.writeFiles(md, c)
	if c.Result != nil {
		w.writeTier(md, "Tier A", c.Result.TierA)
		w.writeTier(md, "Tier B", c.Result.TierB)
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by univcrawl (run %s)*", c.RunID)

	return len(md.String()), md.Build()
}

// writeHeader writes the report title and the task table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, c *Crawl) {
	title := c.Task.SchoolName
	if title == "" {
		title = c.Task.SeedURL
	}
	md.H1(title + " admissions crawl")
	md.PlainText("")

	status := string(c.Task.Status)
	if c.Failed() {
		status = "failed: " + c.Error
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + c.Task.SeedURL + "`"},
			{"Generated", c.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Status", status},
			{"Nodes", strconv.Itoa(c.Stats.Total)},
		},
	})
	md.PlainText("")

	if c.Failed() {
		md.Cautionf("The task failed after the %q stage. Tiers may be missing.", c.Task.LastStage)
		md.PlainText("")
	}
}

// writeSummary writes node counts, the tier chart and the stage table.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, c *Crawl) {
	md.H2("Summary")
	md.PlainText("")

	a, b := c.tierCount(model.TierA), c.tierCount(model.TierB)
	md.Table(markdown.TableSet{
		Header: []string{"Nodes", "Count"},
		Rows: [][]string{
			{"Retained", strconv.Itoa(c.Stats.Retained)},
			{"Pruned", strconv.Itoa(c.Stats.Pruned)},
			{"Sampled out", strconv.Itoa(c.Stats.SampledOut)},
			{"Tier A", strconv.Itoa(a)},
			{"Tier B", strconv.Itoa(b)},
		},
	})
	md.PlainText("")

	if a+b+c.Stats.Pruned > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Node distribution"),
			piechart.WithShowData(true),
		)
		if a > 0 {
			chart.LabelAndIntValue("Tier A", uint64(a))
		}
		if b > 0 {
			chart.LabelAndIntValue("Tier B", uint64(b))
		}
		if c.Stats.Pruned > 0 {
			chart.LabelAndIntValue("Pruned", uint64(c.Stats.Pruned))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	if len(c.Stages) == 0 {
		return
	}
	rows := make([][]string, 0, len(c.Stages))
	degraded := 0
	for _, s := range c.Stages {
		rows = append(rows, []string{
			s.Stage,
			strconv.Itoa(s.Chunks),
			strconv.Itoa(s.Calls),
			strconv.Itoa(s.Decisions),
			strconv.Itoa(s.Outcomes[model.OutcomeRepaired.String()]),
			strconv.Itoa(s.Outcomes[model.OutcomeDefault.String()]),
		})
		degraded += s.Outcomes[model.OutcomeDefault.String()]
	}
	md.Table(markdown.TableSet{
		Header: []string{"Stage", "Chunks", "Calls", "Decisions", "Repaired", "Default"},
		Rows:   rows,
	})
	md.PlainText("")

	if degraded > 0 {
		md.Warningf("%d decision(s) fell back to the default (kept, unclassified). Review tier B.", degraded)
		md.PlainText("")
	}
}

// writeFiles writes the download hand-off table.
func (w *MarkdownWriter) writeFiles(md *markdown.Markdown, c *Crawl) {
	md.H2("Files")
	md.PlainText("")

	if len(c.Files) == 0 {
		md.Note("No admissions documents were found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(c.Files))
	for i, f := range c.Files {
		rows[i] = []string{
			f.Tier.String(),
			f.SuggestedName,
			fmt.Sprintf("%.2f", f.Confidence),
			truncateString(f.URL, 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Tier", "Name", "Confidence", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeTier writes the members of one tier. Context ancestors are left
// out of the table; their titles show up in the breadcrumb column.
func (w *MarkdownWriter) writeTier(md *markdown.Markdown, title string, v partition.View) {
	md.H2(title)
	md.PlainText("")

	members := v.Members()
	if len(members) == 0 {
		md.PlainText("No nodes.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(members))
	for i, e := range members {
		rows[i] = []string{
			strconv.Itoa(e.Index),
			e.Category.String(),
			fmt.Sprintf("%.2f", e.Confidence),
			truncateString(strings.Join(e.Breadcrumb, " > "), 60),
			e.Title,
			truncateString(e.URL, 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Index", "Category", "Confidence", "Breadcrumb", "Title", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
