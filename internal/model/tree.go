package model

import (
	"fmt"
	"slices"
)

// Tree is the arena holding every node of one crawl task.
//
// Nodes are stored by index and relate to each other through FatherIndex only.
// Because nodes are appended in discovery order, a father always has a
// smaller index than its children, which lets most passes run as a single
// forward or backward sweep over the arena.
type Tree struct {
	nodes    []*Node
	children [][]int
	roots    []int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Add appends a node to the arena and returns it.
// Index and Depth are assigned by the tree. FatherIndex must be NoFather or
// reference a node that already exists.
func (t *Tree) Add(n Node) (*Node, error) {
	idx := len(t.nodes)
	if n.FatherIndex != NoFather {
		father := t.Node(n.FatherIndex)
		if father == nil {
			return nil, fmt.Errorf("%w: node %d father %d", ErrDanglingParent, idx, n.FatherIndex)
		}
		n.Depth = father.Depth + 1
	} else {
		n.Depth = 0
	}
	n.Index = idx

	node := &n
	t.nodes = append(t.nodes, node)
	t.children = append(t.children, nil)
	if node.IsRoot() {
		t.roots = append(t.roots, idx)
	} else {
		t.children[node.FatherIndex] = append(t.children[node.FatherIndex], idx)
	}
	return node, nil
}

// FromNodes rebuilds a tree from previously persisted nodes.
// The nodes must be ordered by index starting at 0, and every father must
// precede its children.
func FromNodes(nodes []Node) (*Tree, error) {
	t := NewTree()
	for i, n := range nodes {
		if n.Index != i {
			return nil, fmt.Errorf("%w: position %d holds index %d", ErrIndexMismatch, i, n.Index)
		}
		depth := n.Depth
		added, err := t.Add(n)
		if err != nil {
			return nil, err
		}
		if added.Depth != depth {
			return nil, fmt.Errorf("%w: node %d has depth %d, expected %d", ErrDepthMismatch, i, depth, added.Depth)
		}
	}
	return t, nil
}

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at index i, or nil if i is out of range.
func (t *Tree) Node(i int) *Node {
	if i < 0 || i >= len(t.nodes) {
		return nil
	}
	return t.nodes[i]
}

// Nodes returns all nodes in index order. The slice must not be modified.
func (t *Tree) Nodes() []*Node {
	return t.nodes
}

// Roots returns the indices of all nodes without a father.
func (t *Tree) Roots() []int {
	return t.roots
}

// Children returns the children of node i in discovery order.
func (t *Tree) Children(i int) []int {
	if i < 0 || i >= len(t.children) {
		return nil
	}
	return t.children[i]
}

// Ancestors returns the chain from i's father up to its root.
func (t *Tree) Ancestors(i int) []int {
	var chain []int
	for n := t.Node(i); n != nil && !n.IsRoot(); n = t.Node(n.FatherIndex) {
		chain = append(chain, n.FatherIndex)
	}
	return chain
}

// Descendants returns every node below i in breadth-first order.
func (t *Tree) Descendants(i int) []int {
	var out []int
	queue := slices.Clone(t.Children(i))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, t.Children(cur)...)
	}
	return out
}

// Select returns the indices of nodes matching keep, in index order.
func (t *Tree) Select(keep func(*Node) bool) []int {
	var out []int
	for _, n := range t.nodes {
		if keep(n) {
			out = append(out, n.Index)
		}
	}
	return out
}

// Active returns the indices of retained, not sampled-out nodes.
func (t *Tree) Active() []int {
	return t.Select((*Node).Active)
}

// Validate checks structural invariants: every index matches its arena
// position, no father is dangling and every depth equals father depth + 1.
func (t *Tree) Validate() error {
	for i, n := range t.nodes {
		if n.Index != i {
			return fmt.Errorf("%w: position %d holds index %d", ErrIndexMismatch, i, n.Index)
		}
		if n.IsRoot() {
			if n.Depth != 0 {
				return fmt.Errorf("%w: root %d has depth %d", ErrDepthMismatch, i, n.Depth)
			}
			continue
		}
		father := t.Node(n.FatherIndex)
		if father == nil {
			return fmt.Errorf("%w: node %d father %d", ErrDanglingParent, i, n.FatherIndex)
		}
		if n.Depth != father.Depth+1 {
			return fmt.Errorf("%w: node %d depth %d, father depth %d", ErrDepthMismatch, i, n.Depth, father.Depth)
		}
	}
	return nil
}

// CheckConnectivity verifies that no kept node hangs below a removed one.
// A retained node must have a retained father, and a node still in the
// working set must have a father in the working set. Checking every node
// against its father covers the whole ancestor chain.
func (t *Tree) CheckConnectivity() error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, n := range t.nodes {
		if n.IsRoot() {
			continue
		}
		father := t.nodes[n.FatherIndex]
		if n.Retained() && !father.Retained() {
			return &ConnectivityViolation{NodeIndex: n.Index, FatherIndex: father.Index, Reason: "pruned"}
		}
		if n.Active() && !father.Active() {
			return &ConnectivityViolation{NodeIndex: n.Index, FatherIndex: father.Index, Reason: "sampled out"}
		}
	}
	return nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes:    make([]*Node, len(t.nodes)),
		children: make([][]int, len(t.children)),
		roots:    slices.Clone(t.roots),
	}
	for i, n := range t.nodes {
		cp := *n
		cp.Breadcrumb = slices.Clone(n.Breadcrumb)
		c.nodes[i] = &cp
		c.children[i] = slices.Clone(t.children[i])
	}
	return c
}

// Stats summarizes a tree for logging and task bookkeeping.
type Stats struct {
	Total      int
	Retained   int
	Pruned     int
	SampledOut int
	Files      int
}

// Stats counts nodes by state.
func (t *Tree) Stats() Stats {
	var s Stats
	s.Total = len(t.nodes)
	for _, n := range t.nodes {
		if n.IsPruned {
			s.Pruned++
		} else {
			s.Retained++
		}
		if n.SampledOut {
			s.SampledOut++
		}
		if n.IsFile {
			s.Files++
		}
	}
	return s
}
