package model

import (
	"fmt"
	"slices"
	"strings"
)

// NoFather is the FatherIndex of a root node.
const NoFather = -1

// BreadcrumbSeparator joins breadcrumb titles when rendered as a single string.
const BreadcrumbSeparator = " > "

// Node is one discovered URL in a crawl task's tree.
//
// Nodes refer to their father by index only. The Tree owns every node and
// is the single place that resolves indices to nodes.
type Node struct {
	// Index is unique within one crawl and assigned in discovery order.
	Index int `json:"index"`

	// FatherIndex is the index of the page the link was found on, or NoFather for the seed.
	FatherIndex int `json:"father_index"`

	// Depth is 0 for the seed and father depth + 1 otherwise.
	Depth int `json:"depth"`

	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Breadcrumb  []string `json:"breadcrumb,omitempty"`
	FatherTitle string   `json:"father_title,omitempty"`

	// Summary is a short text excerpt of the page used as model context.
	Summary string `json:"summary,omitempty"`

	IsFile        bool   `json:"is_file"`
	FileExtension string `json:"file_extension,omitempty"`

	// IsPruned is false while the node is retained. It only ever flips to true.
	IsPruned bool `json:"is_pruned"`

	// SampledOut marks nodes removed from further processing by the fan-out cap.
	// They stay in the tree so connectivity can still be checked.
	SampledOut bool `json:"sampled_out,omitempty"`

	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Tier       Tier     `json:"tier"`

	// Note records a contained per-node error such as a failed fetch or a captcha wall.
	Note string `json:"note,omitempty"`
}

// IsRoot reports whether the node has no father.
func (n *Node) IsRoot() bool {
	return n.FatherIndex == NoFather
}

// Retained reports whether the node survived pruning.
func (n *Node) Retained() bool {
	return !n.IsPruned
}

// Active reports whether the node is still part of the working set,
// i.e. retained and not removed by sampling.
func (n *Node) Active() bool {
	return !n.IsPruned && !n.SampledOut
}

// BreadcrumbString renders the breadcrumb as "A > B > C".
func (n *Node) BreadcrumbString() string {
	return strings.Join(n.Breadcrumb, BreadcrumbSeparator)
}

// SetCategory moves the node out of CategoryUnclassified.
// Setting the category the node already has is a no-op so that merging the
// same decision twice leaves the node unchanged. Setting UNCLASSIFIED is
// always a no-op.
func (n *Node) SetCategory(c Category) error {
	if c == CategoryUnclassified || c == n.Category {
		return nil
	}
	if n.Category != CategoryUnclassified {
		return fmt.Errorf("%w: node %d category %s -> %s", ErrInvalidTransition, n.Index, n.Category, c)
	}
	n.Category = c
	return nil
}

// RaiseConfidence keeps the highest confidence seen for the node.
func (n *Node) RaiseConfidence(conf float64) {
	if conf > n.Confidence {
		n.Confidence = conf
	}
}

// Prune marks the node as no longer retained. There is no way back.
func (n *Node) Prune() {
	n.IsPruned = true
}

// AddNote appends a message to the node's note. A message already present is not repeated.
func (n *Node) AddNote(msg string) {
	switch {
	case msg == "":
	case n.Note == "":
		n.Note = msg
	case slices.Contains(strings.Split(n.Note, "; "), msg):
	default:
		n.Note += "; " + msg
	}
}
