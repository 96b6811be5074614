package classifier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nao1215/univcrawl/internal/chunker"
	"github.com/nao1215/univcrawl/internal/llm"
	"github.com/nao1215/univcrawl/internal/model"
)

// pruneAnswer is the model answer of the pruning stage.
type pruneAnswer struct {
	DelIdx []json.RawMessage `json:"DEL_IDX"`
}

// Prune drops branches of tree that carry nothing useful.
//
// A NOISE node whose active descendants are all NOISE is dropped by rule.
// The remaining active nodes are shown to the model with their categories,
// and every index it lists is dropped together with its subtree. The root
// is never dropped and a chunk whose answer cannot be read drops nothing.
func (c *Classifier) Prune(ctx context.Context, tree *model.Tree) (*Report, error) {
	report := newReport(model.StagePruning)

	rules := noiseBranches(tree)
	dropped, err := Merge(tree, rules)
	if err != nil {
		return report, err
	}
	report.Decisions += len(rules)
	report.Outcomes[model.OutcomeRule] += len(rules)
	report.Dropped += dropped

	pending := tree.Select(func(n *model.Node) bool {
		return n.Active() && !n.IsRoot()
	})
	c.logger.Info("pruning stage", "rule_drops", len(rules), "dropped", dropped, "pending", len(pending))
	if len(pending) == 0 {
		return report, nil
	}

	call := func(ctx context.Context, chunk model.Chunk) ([]model.Decision, error) {
		text, err := c.client.Complete(ctx, llm.Request{
			PromptTemplate: c.pruningPrompt,
			Context:        c.promptContext,
			Payload:        chunk.Payload,
		})
		if err != nil {
			return nil, err
		}
		return parsePruneAnswer(chunk, text)
	}
	fallback := func(chunk model.Chunk, err error) []model.Decision {
		return defaults(model.StagePruning, chunk, err)
	}

	err = c.run(ctx, tree, chunker.Order(tree, pending), pruningLine, report, call, fallback)
	return report, err
}

// noiseBranches returns a drop decision for every active non-root NOISE
// node that has active descendants, all of them NOISE. Leaves are kept so
// that they still show up in the low-confidence output.
func noiseBranches(tree *model.Tree) []model.Decision {
	var out []model.Decision
	for _, n := range tree.Nodes() {
		if !n.Active() || n.IsRoot() || n.Category != model.CategoryNoise {
			continue
		}
		active := 0
		allNoise := true
		for _, i := range tree.Descendants(n.Index) {
			d := tree.Node(i)
			if !d.Active() {
				continue
			}
			active++
			if d.Category != model.CategoryNoise {
				allNoise = false
				break
			}
		}
		if active == 0 || !allNoise {
			continue
		}
		out = append(out, model.Decision{
			NodeIndex:  n.Index,
			Stage:      model.StagePruning,
			Outcome:    model.OutcomeRule,
			Drop:       true,
			Confidence: RuleConfidence,
		})
	}
	return out
}

// pruningLine renders a node for the pruning prompt.
func pruningLine(n *model.Node, shortURL string) string {
	return strings.Join([]string{
		strconv.Itoa(n.Index),
		strconv.Itoa(n.FatherIndex),
		n.Category.String(),
		field(n.BreadcrumbString()),
		field(n.Title),
		shortURL,
	}, " | ")
}

// parsePruneAnswer turns a model answer into decisions. Listed indices
// outside the chunk's nodes and group fathers are ignored.
func parsePruneAnswer(chunk model.Chunk, text string) ([]model.Decision, error) {
	var answer pruneAnswer
	outcome, err := llm.ParseObject(text, &answer)
	if err != nil {
		return nil, err
	}

	valid := make(map[int]bool, len(chunk.NodeRefs)+len(chunk.GroupBoundaries))
	for _, i := range chunk.NodeRefs {
		valid[i] = true
	}
	for _, i := range chunk.GroupBoundaries {
		valid[i] = true
	}
	drop := make(map[int]bool)
	for _, raw := range answer.DelIdx {
		if idx, ok := index(raw); ok && valid[idx] {
			drop[idx] = true
		}
	}

	out := make([]model.Decision, 0, len(chunk.NodeRefs)+len(drop))
	for _, i := range chunk.NodeRefs {
		out = append(out, model.Decision{
			NodeIndex:    i,
			Stage:        model.StagePruning,
			Outcome:      outcome,
			Drop:         drop[i],
			RawModelText: text,
		})
		delete(drop, i)
	}
	for _, i := range chunk.GroupBoundaries {
		if !drop[i] {
			continue
		}
		out = append(out, model.Decision{
			NodeIndex:    i,
			Stage:        model.StagePruning,
			Outcome:      outcome,
			Drop:         true,
			RawModelText: text,
		})
		delete(drop, i)
	}
	return out, nil
}
