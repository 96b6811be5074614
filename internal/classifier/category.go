package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/univcrawl/internal/chunker"
	"github.com/nao1215/univcrawl/internal/llm"
	"github.com/nao1215/univcrawl/internal/model"
)

// answerKeys lists the category keys of a model answer in precedence order.
// A node listed under several keys takes the first one.
var answerKeys = []string{"FILE", "PAGE", "NOISE", "OTHER"}

// Categorize labels every active UNCLASSIFIED node of tree.
//
// File leaves and nodes matching the noise keywords are decided by rule
// without a model call. Everything else goes to the model in chunks.
// Nodes the model leaves out, or whose chunk failed, stay UNCLASSIFIED.
func (c *Classifier) Categorize(ctx context.Context, tree *model.Tree) (*Report, error) {
	report := newReport(model.StageCategory)

	var rules []model.Decision
	var pending []int
	for _, i := range tree.Select(func(n *model.Node) bool {
		return n.Active() && n.Category == model.CategoryUnclassified
	}) {
		if d, ok := c.categoryRule(tree.Node(i)); ok {
			rules = append(rules, d)
			continue
		}
		pending = append(pending, i)
	}
	if _, err := Merge(tree, rules); err != nil {
		return report, err
	}
	report.Decisions += len(rules)
	report.Outcomes[model.OutcomeRule] += len(rules)

	c.logger.Info("category stage", "rule_decisions", len(rules), "pending", len(pending))
	if len(pending) == 0 {
		return report, nil
	}

	call := func(ctx context.Context, chunk model.Chunk) ([]model.Decision, error) {
		text, err := c.client.Complete(ctx, llm.Request{
			PromptTemplate: c.categoryPrompt,
			Context:        c.promptContext,
			Payload:        chunk.Payload,
		})
		if err != nil {
			return nil, err
		}
		return parseCategoryAnswer(chunk, text)
	}
	fallback := func(chunk model.Chunk, err error) []model.Decision {
		return defaults(model.StageCategory, chunk, err)
	}

	err := c.run(ctx, tree, chunker.Order(tree, pending), categoryLine, report, call, fallback)
	return report, err
}

// categoryRule decides n without the model when a rule applies.
func (c *Classifier) categoryRule(n *model.Node) (model.Decision, bool) {
	d := model.Decision{
		NodeIndex:  n.Index,
		Stage:      model.StageCategory,
		Outcome:    model.OutcomeRule,
		Confidence: RuleConfidence,
	}
	if n.IsFile {
		d.Category = model.CategoryFile
		return d, true
	}
	if word, ok := c.noise.Match(n.Title, n.URL); ok {
		d.Category = model.CategoryNoise
		d.RawModelText = "keyword: " + word
		return d, true
	}
	return model.Decision{}, false
}

// categoryLine renders a node for the category prompt.
func categoryLine(n *model.Node, shortURL string) string {
	return strings.Join([]string{
		strconv.Itoa(n.Index),
		strconv.Itoa(n.FatherIndex),
		field(n.FatherTitle),
		field(n.BreadcrumbString()),
		field(n.Title),
		shortURL,
		n.FileExtension,
		field(n.Summary),
	}, " | ")
}

// parseCategoryAnswer turns a model answer into one decision per node of chunk.
func parseCategoryAnswer(chunk model.Chunk, text string) ([]model.Decision, error) {
	var answer map[string]json.RawMessage
	outcome, err := llm.ParseObject(text, &answer)
	if err != nil {
		return nil, err
	}

	inChunk := make(map[int]bool, len(chunk.NodeRefs))
	for _, i := range chunk.NodeRefs {
		inChunk[i] = true
	}
	base := SuccessConfidence
	if outcome == model.OutcomeRepaired {
		base = RepairedConfidence
	}

	found := make(map[int]model.Decision)
	for _, key := range answerKeys {
		raw, ok := lookup(answer, key)
		if !ok {
			continue
		}
		category, err := model.ParseCategory(key)
		if err != nil {
			return nil, err
		}
		entries, err := categoryEntries(raw, base)
		if err != nil {
			return nil, &model.LLMParseError{RawText: text, Err: fmt.Errorf("%s: %w", key, err)}
		}
		for idx, conf := range entries {
			if _, seen := found[idx]; seen || !inChunk[idx] {
				continue
			}
			found[idx] = model.Decision{
				NodeIndex:    idx,
				Stage:        model.StageCategory,
				Outcome:      outcome,
				Category:     category,
				Confidence:   conf,
				RawModelText: text,
			}
		}
	}

	out := make([]model.Decision, 0, len(chunk.NodeRefs))
	for _, i := range chunk.NodeRefs {
		if d, ok := found[i]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, model.Decision{
			NodeIndex:    i,
			Stage:        model.StageCategory,
			Outcome:      model.OutcomeDefault,
			Category:     model.CategoryUnclassified,
			RawModelText: text,
		})
	}
	return out, nil
}

// lookup finds key in answer ignoring case.
func lookup(answer map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if raw, ok := answer[key]; ok {
		return raw, true
	}
	for k, raw := range answer {
		if strings.EqualFold(k, key) {
			return raw, true
		}
	}
	return nil, false
}

// categoryEntries reads one category of an answer. Both the object form
// {"12": 0.9, "13": "title", "14": {"confidence": 0.7}} and the list form
// [12, "13"] are accepted. Values without a usable number get base.
func categoryEntries(raw json.RawMessage, base float64) (map[int]float64, error) {
	out := make(map[int]float64)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, item := range list {
			if idx, ok := index(item); ok {
				out[idx] = base
			}
		}
		return out, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for k, v := range obj {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		out[idx] = confidence(v, base)
	}
	return out, nil
}

// index reads a node index written as a number or a numeric string.
func index(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// confidence reads a confidence value, clamped to [0, 1].
func confidence(raw json.RawMessage, base float64) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return clamp(f)
	}
	var obj struct {
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Confidence != nil {
		return clamp(*obj.Confidence)
	}
	return base
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// field keeps a value on one line and free of the column separator.
func field(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "|", "/").Replace(s)
	return strings.TrimSpace(s)
}
