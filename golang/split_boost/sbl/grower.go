package sbl

import "github.com/rs/zerolog/log"

//GrowParams configures the growth of one tree.
type GrowParams struct {
	//MaxSplits bounds the number of splits, 0 means growing until no split improves the fit.
	MaxSplits int
	Search    SearchParams
}

//GrowResult is a grown tree with the final position of every training observation.
type GrowResult struct {
	Tree          *Tree
	TerminalNodes []int
	NodeAssign    []int
	Improvements  []float64
}

//LeafOf returns the tree array index of the leaf the observation ended in.
func (r GrowResult) LeafOf(obs int) int {
	return r.TerminalNodes[r.NodeAssign[obs]]
}

//Fitted returns the prediction of the leaf of every training observation.
func (r GrowResult) Fitted() []float64 {
	fitted := make([]float64, len(r.NodeAssign))
	for obs := range fitted {
		fitted[obs] = r.Tree.Node(r.LeafOf(obs)).Prediction
	}
	return fitted
}

//GrowTree fits a tree to the residuals with the bagged observations of data.
//Nil residuals mean the responses of data.
func GrowTree(data Dataset, residuals []float64, params GrowParams) (GrowResult, error) {
	return NewNodeSearch(data.NumFeatures(), params.Search).GrowTree(data, residuals, params.MaxSplits)
}

//GrowTree resets the search and alternates split generation and node splitting
//until maxSplits splits are made or no terminal node has a positive improvement.
func (ns *NodeSearch) GrowTree(data Dataset, residuals []float64, maxSplits int) (GrowResult, error) {
	n := data.NumObs()
	if residuals == nil {
		residuals = responses(data)
	}
	if len(residuals) != n {
		return GrowResult{}, newDimensionError("GrowTree", "residuals", n, len(residuals))
	}

	var root BranchStats
	for obs := 0; obs < n; obs++ {
		if data.InBag(obs) {
			root.Add(residuals[obs], data.Weight(obs))
		}
	}

	result := GrowResult{Tree: NewTree(root), NodeAssign: make([]int, n)}
	ns.Reset()

	for maxSplits <= 0 || len(result.Improvements) < maxSplits {
		if err := ns.GenerateAllSplits(result.Tree, data, residuals, result.NodeAssign); err != nil {
			return GrowResult{}, err
		}
		improvement := ns.SplitAndCalcImprovement(result.Tree, data, result.NodeAssign)
		if improvement == 0 {
			break
		}
		result.Improvements = append(result.Improvements, improvement)
	}

	result.TerminalNodes = append([]int(nil), ns.terminalNodes...)
	for _, nodeId := range result.TerminalNodes {
		result.Tree.Node(nodeId).Split = SplitCandidate{}
	}

	log.Info().
		Int("splits", len(result.Improvements)).
		Int("leaves", len(result.TerminalNodes)).
		Int("bagged_observations", root.NumObs).
		Msg("tree grown")
	return result, nil
}

func responses(data Dataset) []float64 {
	values := make([]float64, data.NumObs())
	for obs := range values {
		values[obs] = data.Response(obs)
	}
	return values
}
