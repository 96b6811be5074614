package sampler

import (
	"github.com/nao1215/univcrawl/internal/model"
)

// DefaultMaxChildren is the cap used when the caller does not configure one.
const DefaultMaxChildren = 3

// Stats describes what a sampling pass removed.
type Stats struct {
	// GroupsCapped is the number of fathers that had more children than the cap.
	GroupsCapped int
	// Removed is the number of nodes newly marked SampledOut.
	Removed int
	// Restored is the number of ancestors re-included by the retention pass.
	Restored int
}

// Sample returns a copy of tree where every father keeps at most maxChildren
// retained children. Children survive in discovery order, which is index
// order. A maxChildren of zero or less disables the cap.
//
// The input tree is not modified.
func Sample(tree *model.Tree, maxChildren int) (*model.Tree, Stats) {
	out := tree.Clone()
	var stats Stats
	if maxChildren <= 0 {
		return out, stats
	}

	// Fathers always precede their children in the arena, so by the time a
	// father is visited its own retention is final.
	for _, father := range out.Nodes() {
		if !father.Active() {
			continue
		}
		kept := 0
		capped := false
		for _, ci := range out.Children(father.Index) {
			child := out.Node(ci)
			if !child.Active() {
				continue
			}
			if kept < maxChildren {
				kept++
				continue
			}
			capped = true
			stats.Removed += markSubtree(out, ci)
		}
		if capped {
			stats.GroupsCapped++
		}
	}

	stats.Restored = restoreAncestors(out)
	return out, stats
}

// markSubtree marks i and all its active descendants as sampled out.
func markSubtree(tree *model.Tree, i int) int {
	removed := 0
	for _, idx := range append([]int{i}, tree.Descendants(i)...) {
		n := tree.Node(idx)
		if n.Active() {
			n.SampledOut = true
			removed++
		}
	}
	return removed
}

// restoreAncestors re-includes any sampled-out ancestor of a node that is
// still active, so that no active node is left without a path to the root.
// Walking from the highest index down means a restored node is seen before
// its own ancestors.
func restoreAncestors(tree *model.Tree) int {
	restored := 0
	nodes := tree.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if !n.Active() || n.IsRoot() {
			continue
		}
		father := tree.Node(n.FatherIndex)
		if father.SampledOut && !father.IsPruned {
			father.SampledOut = false
			restored++
		}
	}
	return restored
}
