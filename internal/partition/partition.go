package partition

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/nao1215/univcrawl/internal/model"
)

// DefaultThreshold is the confidence a node needs to land in tier A.
const DefaultThreshold = 0.7

// ErrInvalidThreshold is returned for a threshold outside [0, 1].
var ErrInvalidThreshold = errors.New("confidence threshold must be between 0 and 1")

// Entry is one node of a tier view.
type Entry struct {
	model.Node
	// Context is true for ancestors included only to keep the breadcrumb
	// chain reconstructible. They belong to another tier or none.
	Context bool `json:"context,omitempty"`
}

// View is the export of one tier: its nodes plus their ancestor chains,
// in index order so fathers always precede their children.
type View struct {
	Tier    model.Tier `json:"tier"`
	Entries []Entry    `json:"entries"`
}

// Members returns the entries that belong to the tier, without context entries.
func (v View) Members() []Entry {
	var out []Entry
	for _, e := range v.Entries {
		if !e.Context {
			out = append(out, e)
		}
	}
	return out
}

// Handoff is a file ready for download.
type Handoff struct {
	NodeIndex     int        `json:"node_index"`
	URL           string     `json:"url"`
	SuggestedName string     `json:"suggested_name"`
	Tier          model.Tier `json:"tier"`
	Confidence    float64    `json:"confidence"`
}

// Result is the output of Partition.
type Result struct {
	Threshold float64 `json:"threshold"`
	TierA     View    `json:"tier_a"`
	TierB     View    `json:"tier_b"`

	files []Handoff
}

// Files returns the active FILE nodes of both tiers, tier A first.
func (r *Result) Files() []Handoff {
	return r.files
}

// Partition assigns every active node of tree to tier A or B.
//
// Tier A holds active nodes with confidence >= threshold that are not
// NOISE. Every other active node is tier B. Pruned and sampled-out nodes
// get no tier.
// The tree must be connected; a node whose father was pruned makes
// Partition fail with a *model.ConnectivityViolation.
func Partition(tree *model.Tree, threshold float64) (*Result, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if err := tree.CheckConnectivity(); err != nil {
		return nil, err
	}

	var a, b []int
	for _, n := range tree.Nodes() {
		switch {
		case !n.Active():
			n.Tier = model.TierNone
		case n.Confidence >= threshold && n.Category != model.CategoryNoise:
			n.Tier = model.TierA
			a = append(a, n.Index)
		default:
			n.Tier = model.TierB
			b = append(b, n.Index)
		}
	}

	r := &Result{
		Threshold: threshold,
		TierA:     view(tree, model.TierA, a),
		TierB:     view(tree, model.TierB, b),
	}
	for _, members := range [][]int{a, b} {
		for _, i := range members {
			n := tree.Node(i)
			if n.Category != model.CategoryFile {
				continue
			}
			r.files = append(r.files, Handoff{
				NodeIndex:     n.Index,
				URL:           n.URL,
				SuggestedName: SuggestedName(n),
				Tier:          n.Tier,
				Confidence:    n.Confidence,
			})
		}
	}
	return r, nil
}

// view builds the export of members with their ancestors as context.
func view(tree *model.Tree, tier model.Tier, members []int) View {
	include := make(map[int]bool, len(members))
	for _, i := range members {
		include[i] = true
	}
	chain := make(map[int]bool)
	for _, i := range members {
		for _, anc := range tree.Ancestors(i) {
			if include[anc] || chain[anc] {
				break
			}
			chain[anc] = true
		}
	}

	v := View{Tier: tier}
	for _, n := range tree.Nodes() {
		if include[n.Index] || chain[n.Index] {
			v.Entries = append(v.Entries, Entry{Node: *n, Context: chain[n.Index]})
		}
	}
	return v
}

var (
	illegalName = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)
	underscores = regexp.MustCompile(`_+`)
)

// maxNameRunes bounds the title part of a suggested name.
const maxNameRunes = 80

// SuggestedName proposes a local file name for a file node: its link title
// when there is one, else the last URL path element, else a hash of the URL.
// The file extension is kept.
func SuggestedName(n *model.Node) string {
	ext := strings.ToLower(n.FileExtension)
	base := fileBase(n.URL)
	if ext == "" {
		ext = strings.ToLower(path.Ext(base))
	}

	name := sanitize(n.Title)
	if name == "" {
		name = sanitize(strings.TrimSuffix(base, path.Ext(base)))
	}
	if name == "" {
		name = model.URLHash(n.URL)[:16]
	}
	if r := []rune(name); len(r) > maxNameRunes {
		name = strings.TrimRight(string(r[:maxNameRunes]), "_ ")
	}
	if ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

// fileBase returns the unescaped last path element of raw.
func fileBase(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

func sanitize(s string) string {
	s = illegalName.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Join(strings.Fields(s), " ")
	s = underscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_ .")
}
