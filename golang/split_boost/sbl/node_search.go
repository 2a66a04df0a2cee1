package sbl

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

//SearchParams configures the split search.
type SearchParams struct {
	//MinNumObs is the smallest number of observations allowed in a left or right branch.
	MinNumObs int
	//NumFeatures is the number of features sampled for every round, 0 means all of them.
	NumFeatures int
	//Workers is the number of features of one node evaluated concurrently.
	Workers int
}

//NodeSearch grows one tree by repeatedly finding the best split of every terminal node
//and materializing the best one. It owns the terminal node list: position i of the list is
//the node index stored in the node assignment array of every observation of that node.
type NodeSearch struct {
	params            SearchParams
	terminalNodes     []int
	variableSplitters []*VarSplitter
}

//NewNodeSearch creates a search over a data set with numFeatures candidate features.
func NewNodeSearch(numFeatures int, params SearchParams) *NodeSearch {
	ns := &NodeSearch{
		params:            params,
		variableSplitters: make([]*VarSplitter, numFeatures),
	}
	for ind := range ns.variableSplitters {
		ns.variableSplitters[ind] = NewVarSplitter(params.MinNumObs)
	}
	ns.Reset()
	return ns
}

//Reset starts a new tree: the root, array index 0, is the only terminal node.
func (ns *NodeSearch) Reset() {
	ns.terminalNodes = append(ns.terminalNodes[:0], 0)
}

//NumTerminalNodes returns the number of currently open terminal nodes.
func (ns *NodeSearch) NumTerminalNodes() int {
	return len(ns.terminalNodes)
}

//TerminalNodes returns the tree array indices of the terminal nodes. The slice must not be modified.
func (ns *NodeSearch) TerminalNodes() []int {
	return ns.terminalNodes
}

//GenerateAllSplits attaches the best split to every terminal node that has none yet.
//residuals and nodeAssign are indexed by observation.
func (ns *NodeSearch) GenerateAllSplits(tree *Tree, data Dataset, residuals []float64, nodeAssign []int) error {
	if err := ns.validate(tree, data, residuals, nodeAssign); err != nil {
		return err
	}

	colNumbers := data.RandomOrder()
	sampled := colNumbers[:ns.numSampledFeatures(data.NumFeatures())]

	for iNode, nodeId := range ns.terminalNodes {
		node := tree.Node(nodeId)
		if node.SplitAssigned {
			continue
		}

		ns.resetVarSplitters()
		if err := ns.scanFeatures(node, iNode, sampled, data, residuals, nodeAssign); err != nil {
			return err
		}
		ns.assignToNode(node)
	}
	return nil
}

//SplitAndCalcImprovement splits the terminal node with the largest improvement and returns it.
//Zero means that no terminal node can be split and nothing was changed.
func (ns *NodeSearch) SplitAndCalcImprovement(tree *Tree, data Dataset, nodeAssign []int) float64 {
	bestNode := 0
	bestNodeImprovement := 0.0
	for iNode, nodeId := range ns.terminalNodes {
		if improvement := tree.Node(nodeId).SplitImprovement(); improvement > bestNodeImprovement {
			bestNode = iNode
			bestNodeImprovement = improvement
		}
	}
	if bestNodeImprovement == 0 {
		return 0
	}

	nodeId := ns.terminalNodes[bestNode]
	left, right, missing := tree.SplitNode(nodeId)
	ns.terminalNodes = append(ns.terminalNodes, right, missing)

	ns.reAssignData(bestNode, tree.Node(nodeId), data, nodeAssign)
	ns.terminalNodes[bestNode] = left

	split := tree.Node(nodeId).Split
	log.Debug().
		Int("node", nodeId).
		Int("feature", split.Feature).
		Float64("improvement", bestNodeImprovement).
		Int("terminal_nodes", len(ns.terminalNodes)).
		Msg("split node")
	return bestNodeImprovement
}

//reAssignData moves the observations of the split node to the new terminal nodes.
//Observations going left keep their index since the left child takes the parent's position.
func (ns *NodeSearch) reAssignData(splitIndex int, node *TreeNode, data Dataset, nodeAssign []int) {
	rightIndex := len(ns.terminalNodes) - 2
	missingIndex := len(ns.terminalNodes) - 1

	for obs, assigned := range nodeAssign {
		if assigned != splitIndex {
			continue
		}
		switch node.WhichBranch(data, obs) {
		case BranchRight:
			nodeAssign[obs] = rightIndex
		case BranchMissing:
			nodeAssign[obs] = missingIndex
		}
	}
}

func (ns *NodeSearch) scanFeatures(node *TreeNode, iNode int, features []int, data Dataset, residuals []float64, nodeAssign []int) error {
	if ns.params.Workers <= 1 {
		for _, feature := range features {
			ns.scanFeature(feature, node, iNode, data, residuals, nodeAssign)
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(ns.params.Workers)
	for _, feature := range features {
		g.Go(func() error {
			ns.scanFeature(feature, node, iNode, data, residuals, nodeAssign)
			return nil
		})
	}
	return g.Wait()
}

//scanFeature streams the observations of the node in the presorted order of the feature.
//Missing values sit at the end of the order; they are aggregated first and never streamed.
func (ns *NodeSearch) scanFeature(feature int, node *TreeNode, iNode int, data Dataset, residuals []float64, nodeAssign []int) {
	n := data.NumObs()
	order := data.OrderBuffer()[feature*n : (feature+1)*n]

	var missing BranchStats
	end := n
	for end > 0 && math.IsNaN(data.FeatureValue(order[end-1], feature)) {
		end--
		if obs := order[end]; nodeAssign[obs] == iNode && data.InBag(obs) {
			missing.Add(residuals[obs], data.Weight(obs))
		}
	}

	splitter := ns.variableSplitters[feature]
	splitter.Set(node)
	splitter.ResetForNewVar(feature, data.FeatureClass(feature), missing)

	monotonicity := data.Monotonicity(feature)
	for _, obs := range order[:end] {
		if nodeAssign[obs] == iNode && data.InBag(obs) {
			splitter.IncorporateObs(data.FeatureValue(obs, feature), residuals[obs], data.Weight(obs), monotonicity)
		}
	}

	if data.FeatureClass(feature) != 0 {
		splitter.EvaluateCategoricalSplit()
	}
}

//assignToNode keeps the best split over all features unless the node already holds a better one.
//Equal improvements resolve to the lowest feature index.
func (ns *NodeSearch) assignToNode(node *TreeNode) {
	bestSplitInd := 0
	bestErrImprovement := 0.0
	for ind, splitter := range ns.variableSplitters {
		if improvement := splitter.BestImprovement(); improvement > bestErrImprovement {
			bestErrImprovement = improvement
			bestSplitInd = ind
		}
	}

	if bestErrImprovement > node.SplitImprovement() {
		node.Split = ns.variableSplitters[bestSplitInd].BestSplit()
	}
	node.SplitAssigned = true
}

func (ns *NodeSearch) resetVarSplitters() {
	for _, splitter := range ns.variableSplitters {
		splitter.Reset()
	}
}

func (ns *NodeSearch) numSampledFeatures(total int) int {
	if ns.params.NumFeatures <= 0 || ns.params.NumFeatures > total {
		return total
	}
	return ns.params.NumFeatures
}

//validate checks the sizes of the round inputs once, so the scan can index without checks.
func (ns *NodeSearch) validate(tree *Tree, data Dataset, residuals []float64, nodeAssign []int) error {
	n, w := data.NumObs(), data.NumFeatures()
	if len(residuals) != n {
		return newDimensionError("GenerateAllSplits", "residuals", n, len(residuals))
	}
	if len(nodeAssign) != n {
		return newDimensionError("GenerateAllSplits", "node assignment", n, len(nodeAssign))
	}
	if w != len(ns.variableSplitters) {
		return newDimensionError("GenerateAllSplits", "features", len(ns.variableSplitters), w)
	}
	if len(data.OrderBuffer()) != n*w {
		return newDimensionError("GenerateAllSplits", "order buffer", n*w, len(data.OrderBuffer()))
	}
	for iNode, nodeId := range ns.terminalNodes {
		if nodeId < 0 || nodeId >= len(tree.TreeNodes) || !tree.Node(nodeId).IsLeaf() {
			return errors.AssertionFailedf("terminal node %d refers to %d which is not a leaf of the tree", iNode, nodeId)
		}
	}
	return nil
}
