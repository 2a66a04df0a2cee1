package sbl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

//TreeNode is a node of a tree. Tree is stored in an array. LeftIndex, RightIndex and MissingIndex
//are equal to -1 when the current node is a leaf otherwise they contain array indices of children.
//Split holds the applied split of an internal node and the pending best split of a leaf.
type TreeNode struct {
	TreeNodeId                          int
	Depth                               int
	Stats                               BranchStats
	Prediction                          float64
	Split                               SplitCandidate
	LeftIndex, RightIndex, MissingIndex int

	SplitAssigned bool `json:"-"`
}

func newLeaf(id, depth int, stats BranchStats, prediction float64) TreeNode {
	return TreeNode{
		TreeNodeId:   id,
		Depth:        depth,
		Stats:        stats,
		Prediction:   prediction,
		LeftIndex:    -1,
		RightIndex:   -1,
		MissingIndex: -1,
	}
}

//IsLeaf returns whether this node has no children.
func (node TreeNode) IsLeaf() bool {
	return node.LeftIndex == -1
}

//SplitImprovement returns the improvement of the split attached to the node, 0 if there is none.
func (node TreeNode) SplitImprovement() float64 {
	return node.Split.Improvement
}

//WhichBranch routes the observation obs of data through the split of the node.
func (node TreeNode) WhichBranch(data Dataset, obs int) Branch {
	return node.Split.Route(data.FeatureValue(obs, node.Split.Feature))
}

//GraphDescription returns the description of a tree node for tree rendering as a graph
func (node TreeNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("#", node.Stats.NumObs))
	sb.WriteString(fmt.Sprintln("id: ", node.TreeNodeId))
	if node.IsLeaf() {
		sb.WriteString(fmt.Sprintf("%6.5f", node.Prediction))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintln("improvement: ", node.Split.Improvement))
	if node.Split.IsCategorical() {
		var left []string
		for category, isLeft := range node.Split.LeftCategories {
			if isLeft {
				left = append(left, fmt.Sprint(category))
			}
		}
		sb.WriteString(fmt.Sprintf("f_%d in {%s}", node.Split.Feature, strings.Join(left, ",")))
	} else {
		sb.WriteString(fmt.Sprintf("f_%d < %6.5f", node.Split.Feature, node.Split.Threshold))
	}
	return sb.String()
}

//Tree is a regression tree grown on one working response.
type Tree struct {
	TreeNodes []TreeNode
}

//NewTree creates a tree with one root leaf whose prediction is the mean of stats.
func NewTree(stats BranchStats) *Tree {
	prediction, _ := stats.Mean()
	return &Tree{TreeNodes: []TreeNode{newLeaf(0, 0, stats, prediction)}}
}

//Node returns the node with the given array index.
func (tree *Tree) Node(id int) *TreeNode {
	return &tree.TreeNodes[id]
}

//NumLeaves counts the nodes without children.
func (tree *Tree) NumLeaves() (n int) {
	for _, node := range tree.TreeNodes {
		if node.IsLeaf() {
			n++
		}
	}
	return
}

//SplitNode materializes the pending split of the node into left, right and missing children
//appended to the end of the array. A child without weight inherits the parent prediction.
func (tree *Tree) SplitNode(id int) (left, right, missing int) {
	parent := tree.TreeNodes[id]
	branches := [...]BranchStats{parent.Split.Left, parent.Split.Right, parent.Split.Missing}

	var children [3]int
	for ind, stats := range branches {
		prediction, ok := stats.Mean()
		if !ok {
			prediction = parent.Prediction
		}
		children[ind] = len(tree.TreeNodes)
		tree.TreeNodes = append(tree.TreeNodes, newLeaf(children[ind], parent.Depth+1, stats, prediction))
	}

	node := &tree.TreeNodes[id]
	node.LeftIndex, node.RightIndex, node.MissingIndex = children[0], children[1], children[2]
	return children[0], children[1], children[2]
}

//Save writes the tree as indented JSON.
func (tree *Tree) Save(filename string) error {
	modelByteRepr, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal tree")
	}
	return errors.Wrapf(os.WriteFile(filename, modelByteRepr, 0o644), "write tree to %s", filename)
}

//LoadTree reads a tree saved by Save.
func LoadTree(filename string) (*Tree, error) {
	source, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open tree %s", filename)
	}
	defer source.Close()

	var tree Tree
	if err := json.NewDecoder(source).Decode(&tree); err != nil {
		return nil, errors.Wrapf(err, "decode tree %s", filename)
	}
	return &tree, nil
}
