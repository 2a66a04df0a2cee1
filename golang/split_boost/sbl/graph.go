package sbl

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

func recurrentDraw(g *cgraph.Graph, tree *Tree, nodeNumber int, parentNode *cgraph.Node, branch Branch) error {
	node := tree.Node(nodeNumber)
	currentNode, err := g.CreateNode(fmt.Sprint(node.TreeNodeId))
	if err != nil {
		return errors.Wrapf(err, "create graph node %d", node.TreeNodeId)
	}

	if parentNode != nil {
		edge, err := g.CreateEdge(fmt.Sprintf("%s_%d", branch, node.TreeNodeId), parentNode, currentNode)
		if err != nil {
			return errors.Wrapf(err, "create graph edge to %d", node.TreeNodeId)
		}
		edge.SetLabel(branch.String())
	}

	currentNode.SetLabel(node.GraphDescription())
	if node.IsLeaf() {
		currentNode.SetShape(cgraph.BoxShape)
		return nil
	}

	children := [...]struct {
		index  int
		branch Branch
	}{
		{node.LeftIndex, BranchLeft},
		{node.RightIndex, BranchRight},
		{node.MissingIndex, BranchMissing},
	}
	for _, child := range children {
		if err := recurrentDraw(g, tree, child.index, currentNode, child.branch); err != nil {
			return err
		}
	}
	return nil
}

//DrawGraph builds a graphviz graph of the tree. The caller closes both returned values.
func (tree *Tree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create graph")
	}

	if err := recurrentDraw(graph, tree, 0, nil, BranchLeft); err != nil {
		return nil, nil, err
	}
	return graphViz, graph, nil
}

//RenderTree writes the picture of the tree in one of the png, svg and jpg formats.
func (tree *Tree) RenderTree(filename, figureType string) error {
	graphvizType, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]
	if !ok {
		return errors.Newf("unknown figure type %q", figureType)
	}

	graphViz, graph, err := tree.DrawGraph()
	if err != nil {
		return err
	}
	defer func() {
		_ = graph.Close()
		_ = graphViz.Close()
	}()

	return errors.Wrapf(graphViz.RenderFilename(graph, graphvizType, filename), "render tree to %s", filename)
}
