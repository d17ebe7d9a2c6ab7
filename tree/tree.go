// Package tree implements the append-only DTree node arena and the split
// finder that turns a node's per-feature histograms into a Decided split
// or a Leaf. Node storage follows the single-struct-with-sentinel-fields
// idiom the teacher pack uses for its own tree nodes (ebl's TreeNode /
// LeafNode) rather than an interface hierarchy, since nodes are allocated
// in the hundreds of thousands during a deep layer and boxing each one
// would show up in profiles.
package tree

import (
	"fmt"
	"math"

	"github.com/ebooster/gbmcore/histogram"
)

// Kind tags which fields of Node are meaningful.
type Kind int

const (
	Undecided Kind = iota
	Decided
	Leaf
)

// NADirection records which arm a split sends NA/missing rows to.
type NADirection int

const (
	NALeft NADirection = iota
	NARight
	NAVsRest
)

// Node is one arena slot. Undecided nodes carry per-feature histograms
// pending a split decision; Decided nodes carry the chosen split and child
// indices; Leaf nodes carry a final prediction.
type Node struct {
	Kind Kind

	// Undecided
	Histos []*histogram.DHistogram

	// Decided
	FeatureIdx  int
	Threshold   float64
	Categorical bool
	EqualSet    map[int]bool // categorical bin set routed left
	NADir       NADirection
	Left, Right int
	NAChild     int // third child for NAVsRest; -1 when NADir != NAVsRest

	// Leaf
	Pred float64

	Depth int
}

// DTree is an append-only arena of Node. Index 0 is always the root; every
// child index is strictly greater than its parent's, so a single forward
// pass over Nodes visits a node before any of its descendants.
type DTree struct {
	Nodes []Node
}

// New creates a tree with a single Undecided root at depth 0 seeded with
// histos (one per candidate feature).
func New(histos []*histogram.DHistogram) *DTree {
	return &DTree{Nodes: []Node{{Kind: Undecided, Histos: histos, Depth: 0}}}
}

// AddUndecided appends a new Undecided node and returns its index. Callers
// must ensure idx > the index of whichever node they intend as its parent.
func (t *DTree) AddUndecided(histos []*histogram.DHistogram, depth int) int {
	t.Nodes = append(t.Nodes, Node{Kind: Undecided, Histos: histos, Depth: depth})
	return len(t.Nodes) - 1
}

// Decide turns the Undecided node at idx into a Decided node with the
// given split, appending two fresh Undecided child nodes (without
// histograms yet — the next layer's histogram build fills them in) and
// wiring Left/Right to their indices. When naDir is NAVsRest, a third
// Undecided child is appended and wired as NAChild, so NA rows get a
// subtree of their own instead of being merged into Left or Right;
// naChildIdx is -1 for every other NADir.
func (t *DTree) Decide(idx int, featureIdx int, threshold float64, categorical bool, equalSet map[int]bool, naDir NADirection) (leftIdx, rightIdx, naChildIdx int, err error) {
	if idx < 0 || idx >= len(t.Nodes) {
		return 0, 0, -1, fmt.Errorf("tree: node index %d out of range", idx)
	}
	n := t.Nodes[idx]
	if n.Kind != Undecided {
		return 0, 0, -1, fmt.Errorf("tree: node %d is not Undecided", idx)
	}

	leftIdx = len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Kind: Undecided, Depth: n.Depth + 1})
	rightIdx = len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Kind: Undecided, Depth: n.Depth + 1})

	naChildIdx = -1
	if naDir == NAVsRest {
		naChildIdx = len(t.Nodes)
		t.Nodes = append(t.Nodes, Node{Kind: Undecided, Depth: n.Depth + 1})
	}

	if leftIdx <= idx || rightIdx <= idx || (naChildIdx >= 0 && naChildIdx <= idx) {
		return 0, 0, -1, fmt.Errorf("tree: invariant violated, child index must exceed parent %d", idx)
	}

	t.Nodes[idx] = Node{
		Kind:        Decided,
		FeatureIdx:  featureIdx,
		Threshold:   threshold,
		Categorical: categorical,
		EqualSet:    equalSet,
		NADir:       naDir,
		Left:        leftIdx,
		Right:       rightIdx,
		NAChild:     naChildIdx,
		Depth:       n.Depth,
	}
	return leftIdx, rightIdx, naChildIdx, nil
}

// MakeLeaf turns the node at idx into a Leaf with the given prediction,
// discarding any pending histograms.
func (t *DTree) MakeLeaf(idx int, pred float64) error {
	if idx < 0 || idx >= len(t.Nodes) {
		return fmt.Errorf("tree: node index %d out of range", idx)
	}
	depth := t.Nodes[idx].Depth
	t.Nodes[idx] = Node{Kind: Leaf, Pred: pred, Depth: depth}
	return nil
}

// Route decides which child index a row with the given feature value (and
// isNA flag) goes to from a Decided node.
func (t *DTree) Route(idx int, x float64, isNA bool) (int, error) {
	n := t.Nodes[idx]
	if n.Kind != Decided {
		return 0, fmt.Errorf("tree: node %d is not Decided", idx)
	}
	if isNA {
		switch n.NADir {
		case NALeft:
			return n.Left, nil
		case NAVsRest:
			return n.NAChild, nil
		default:
			return n.Right, nil
		}
	}
	if n.Categorical {
		if n.EqualSet[int(x)] {
			return n.Left, nil
		}
		return n.Right, nil
	}
	if x < n.Threshold {
		return n.Left, nil
	}
	return n.Right, nil
}

// Predict walks the tree from the root for one row, given a feature
// accessor keyed by feature index, and returns the leaf prediction.
func (t *DTree) Predict(feature func(idx int) (value float64, isNA bool)) (float64, error) {
	idx := 0
	for {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, fmt.Errorf("tree: walked off arena at index %d", idx)
		}
		n := t.Nodes[idx]
		switch n.Kind {
		case Leaf:
			return n.Pred, nil
		case Undecided:
			return 0, fmt.Errorf("tree: Predict reached Undecided node %d", idx)
		default:
			x, isNA := feature(n.FeatureIdx)
			next, err := t.Route(idx, x, isNA)
			if err != nil {
				return 0, err
			}
			idx = next
		}
	}
}

// MaxAbsFinite clamps v into [-bound, bound], mapping NaN to 0 and
// infinities to the bound's sign — the coercion every leaf-prediction
// write site applies before storing into TREE[k].
func MaxAbsFinite(v, bound float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if math.IsInf(v, 1) {
		return bound
	}
	if math.IsInf(v, -1) {
		return -bound
	}
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
