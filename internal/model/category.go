package model

import (
	"fmt"
	"strings"
)

// Category is the classification assigned to a node by the category stage.
//
// A node starts as CategoryUnclassified and may move exactly once to one of
// the other three values. Those values are terminal for the rest of the run.
type Category int

const (
	// CategoryUnclassified is the initial state and the conservative default
	// used whenever the model output cannot be trusted.
	CategoryUnclassified Category = iota

	// CategoryFile marks a downloadable admissions document (PDF, Word, Excel ...).
	CategoryFile

	// CategoryPage marks an HTML page that carries admissions information.
	CategoryPage

	// CategoryNoise marks pages unrelated to admissions: news, alumni,
	// employment, access maps and so on.
	CategoryNoise
)

// String returns the upper-case name used in prompts, reports and the database.
func (c Category) String() string {
	switch c {
	case CategoryUnclassified:
		return "UNCLASSIFIED"
	case CategoryFile:
		return "FILE"
	case CategoryPage:
		return "PAGE"
	case CategoryNoise:
		return "NOISE"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory converts a category name back to a Category.
// The legacy label "OTHER" is accepted as CategoryNoise.
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNCLASSIFIED", "":
		return CategoryUnclassified, nil
	case "FILE":
		return CategoryFile, nil
	case "PAGE":
		return CategoryPage, nil
	case "NOISE", "OTHER":
		return CategoryNoise, nil
	default:
		return CategoryUnclassified, fmt.Errorf("unknown category %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Stage identifies which half of the two-stage classification produced a decision.
type Stage int

const (
	// StageCategory assigns FILE / PAGE / NOISE.
	StageCategory Stage = iota
	// StagePruning decides whether a subtree is dropped.
	StagePruning
)

// String returns a human-readable representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageCategory:
		return "CATEGORY"
	case StagePruning:
		return "PRUNING"
	default:
		return "UNKNOWN"
	}
}

// Outcome tags how a decision was obtained from the model output.
// Tests and reports use it to tell trusted decisions from degraded ones.
type Outcome int

const (
	// OutcomeSuccess means the model output parsed as strict JSON.
	OutcomeSuccess Outcome = iota
	// OutcomeRepaired means the output only parsed after repair.
	OutcomeRepaired
	// OutcomeDefault means no usable output was obtained and the
	// conservative default (keep, unclassified) was applied.
	OutcomeDefault
	// OutcomeRule means the decision came from a keyword or extension rule
	// without calling the model.
	OutcomeRule
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeRepaired:
		return "REPAIRED"
	case OutcomeDefault:
		return "DEFAULT"
	case OutcomeRule:
		return "RULE"
	default:
		return "UNKNOWN"
	}
}

// Tier is the export partition a retained node ends up in.
type Tier int

const (
	// TierNone is assigned to nodes that are not exported (pruned or sampled out).
	TierNone Tier = iota
	// TierA holds high-confidence, non-noise nodes.
	TierA
	// TierB holds every other retained node.
	TierB
)

// String returns a human-readable representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierA:
		return "A"
	case TierB:
		return "B"
	default:
		return "-"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	switch string(text) {
	case "A":
		*t = TierA
	case "B":
		*t = TierB
	case "-", "":
		*t = TierNone
	default:
		return fmt.Errorf("unknown tier %q", text)
	}
	return nil
}
