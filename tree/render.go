package tree

import (
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

func recurrentDraw(g *cgraph.Graph, t *DTree, nodeIdx int, parent *cgraph.Node) error {
	currentNode, err := g.CreateNode(fmt.Sprint(nodeIdx))
	if err != nil {
		return err
	}
	if parent != nil {
		if _, err := g.CreateEdge("", parent, currentNode); err != nil {
			return err
		}
	}

	n := t.Nodes[nodeIdx]
	switch n.Kind {
	case Leaf:
		currentNode.Set("label", fmt.Sprintf("leaf pred=%.4g", n.Pred))
		currentNode.Set("shape", "box")
	case Decided:
		currentNode.Set("label", fmt.Sprintf("f%d < %.4g", n.FeatureIdx, n.Threshold))
		if err := recurrentDraw(g, t, n.Left, currentNode); err != nil {
			return err
		}
		if err := recurrentDraw(g, t, n.Right, currentNode); err != nil {
			return err
		}
		if n.NAChild >= 0 {
			if err := recurrentDraw(g, t, n.NAChild, currentNode); err != nil {
				return err
			}
		}
	default:
		currentNode.Set("label", "undecided")
	}
	return nil
}

// DrawGraph renders t into a graphviz graph, grounded on ebl/tree.go's
// recurrentDraw/DrawGraph: one node per tree node, leaves boxed with their
// prediction, internal nodes labelled with their split.
func (t *DTree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	gv := graphviz.New()
	graph, err := gv.Graph()
	if err != nil {
		return nil, nil, err
	}
	if len(t.Nodes) == 0 {
		return gv, graph, nil
	}
	if err := recurrentDraw(graph, t, 0, nil); err != nil {
		return nil, nil, err
	}
	return gv, graph, nil
}
