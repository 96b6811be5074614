package sampler

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/univcrawl/internal/model"
)

func mustAdd(t *testing.T, tree *model.Tree, father int) int {
	t.Helper()

	n, err := tree.Add(model.Node{FatherIndex: father, URL: fmt.Sprintf("https://example.ac.jp/%d", tree.Len())})
	if err != nil {
		t.Fatalf("failed to add node: %v", err)
	}
	return n.Index
}

// randomTree builds a tree whose nodes attach to a random earlier node.
func randomTree(t *testing.T, r *rand.Rand, size int) *model.Tree {
	t.Helper()

	tree := model.NewTree()
	mustAdd(t, tree, model.NoFather)
	for tree.Len() < size {
		// Bias towards a few wide fathers so caps are actually hit.
		var father int
		if r.IntN(3) == 0 {
			father = r.IntN(min(tree.Len(), 4))
		} else {
			father = r.IntN(tree.Len())
		}
		mustAdd(t, tree, father)
	}
	return tree
}

func activeChildren(tree *model.Tree, i int) []int {
	var out []int
	for _, c := range tree.Children(i) {
		if tree.Node(c).Active() {
			out = append(out, c)
		}
	}
	return out
}

func TestSample(t *testing.T) {
	t.Parallel()

	t.Run("wide root is capped to the first children", func(t *testing.T) {
		t.Parallel()

		tree := model.NewTree()
		root := mustAdd(t, tree, model.NoFather)
		for range 500 {
			mustAdd(t, tree, root)
		}

		sampled, stats := Sample(tree, 20)

		got := activeChildren(sampled, root)
		want := make([]int, 0, 20)
		for i := 1; i <= 20; i++ {
			want = append(want, i)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("active children mismatch (-want +got):\n%s", diff)
		}
		if !sampled.Node(root).Active() {
			t.Error("root was sampled out")
		}
		if stats.GroupsCapped != 1 || stats.Removed != 480 {
			t.Errorf("unexpected stats: %+v", stats)
		}
		if err := sampled.CheckConnectivity(); err != nil {
			t.Errorf("connectivity check failed: %v", err)
		}
	})

	t.Run("sampled-out child takes its subtree", func(t *testing.T) {
		t.Parallel()

		tree := model.NewTree()
		root := mustAdd(t, tree, model.NoFather)
		a := mustAdd(t, tree, root)
		b := mustAdd(t, tree, root)
		grandchild := mustAdd(t, tree, b)
		deeper := mustAdd(t, tree, grandchild)

		sampled, stats := Sample(tree, 1)

		if !sampled.Node(a).Active() {
			t.Error("first child should survive")
		}
		for _, i := range []int{b, grandchild, deeper} {
			if sampled.Node(i).Active() {
				t.Errorf("node %d should be sampled out", i)
			}
		}
		if stats.Removed != 3 {
			t.Errorf("expected 3 removed, got %d", stats.Removed)
		}
	})

	t.Run("input tree is not modified", func(t *testing.T) {
		t.Parallel()

		tree := model.NewTree()
		root := mustAdd(t, tree, model.NoFather)
		for range 5 {
			mustAdd(t, tree, root)
		}

		Sample(tree, 2)

		for _, n := range tree.Nodes() {
			if n.SampledOut {
				t.Fatalf("node %d of the input tree was modified", n.Index)
			}
		}
	})

	t.Run("non-positive cap keeps everything", func(t *testing.T) {
		t.Parallel()

		tree := model.NewTree()
		root := mustAdd(t, tree, model.NoFather)
		for range 10 {
			mustAdd(t, tree, root)
		}

		sampled, stats := Sample(tree, 0)
		if len(sampled.Active()) != 11 || stats.Removed != 0 {
			t.Errorf("expected nothing removed, got %+v", stats)
		}
	})

	t.Run("pruned children do not count against the cap", func(t *testing.T) {
		t.Parallel()

		tree := model.NewTree()
		root := mustAdd(t, tree, model.NoFather)
		first := mustAdd(t, tree, root)
		second := mustAdd(t, tree, root)
		third := mustAdd(t, tree, root)
		tree.Node(first).Prune()

		sampled, _ := Sample(tree, 2)
		if diff := cmp.Diff([]int{second, third}, activeChildren(sampled, root)); diff != "" {
			t.Errorf("active children mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sampling twice is stable", func(t *testing.T) {
		t.Parallel()

		tree := randomTree(t, rand.New(rand.NewPCG(7, 7)), 300)
		once, _ := Sample(tree, 3)
		twice, stats := Sample(once, 3)

		if stats.Removed != 0 {
			t.Errorf("second pass removed %d nodes", stats.Removed)
		}
		if diff := cmp.Diff(once.Active(), twice.Active()); diff != "" {
			t.Errorf("active set changed (-once +twice):\n%s", diff)
		}
	})
}

// TestSampleProperties checks the cap and the no-island guarantee over many random trees.
func TestSampleProperties(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 50; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			t.Parallel()

			r := rand.New(rand.NewPCG(seed, seed*31))
			tree := randomTree(t, r, 50+r.IntN(400))
			maxChildren := 1 + r.IntN(6)

			sampled, _ := Sample(tree, maxChildren)

			if err := sampled.CheckConnectivity(); err != nil {
				t.Fatalf("island after sampling: %v", err)
			}

			for _, n := range sampled.Nodes() {
				if !n.Active() {
					continue
				}
				all := tree.Children(n.Index)
				got := activeChildren(sampled, n.Index)
				wantLen := min(len(all), maxChildren)
				if len(got) != wantLen {
					t.Fatalf("father %d: expected %d children, got %d", n.Index, wantLen, len(got))
				}
				if diff := cmp.Diff(all[:wantLen], got); diff != "" {
					t.Fatalf("father %d: survivors are not the first children (-want +got):\n%s", n.Index, diff)
				}
			}

			for _, idx := range sampled.Active() {
				for _, a := range sampled.Ancestors(idx) {
					if !sampled.Node(a).Active() {
						t.Fatalf("node %d is active but ancestor %d is not", idx, a)
					}
				}
			}
		})
	}
}
