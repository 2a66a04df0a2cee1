package sbl

import "sort"

//VarSplitter finds the best split of one node on one feature. The observations of
//the node are streamed in ascending order of the feature value; continuous features
//are evaluated on the fly, categorical ones after the stream is finished.
//
//minNumObs is configuration and survives Reset; everything else is per-round scratch.
type VarSplitter struct {
	minNumObs int

	parent BranchStats
	lastX  float64
	seenX  bool

	bestSplit, proposedSplit SplitCandidate

	groupStats []BranchStats
	groupOrder []categoryMean
}

//categoryMean is a sort key of one category. Empty categories have no mean and sort last.
type categoryMean struct {
	category int
	mean     float64
	empty    bool
}

func NewVarSplitter(minNumObs int) *VarSplitter {
	return &VarSplitter{minNumObs: minNumObs}
}

//Reset forgets the best split found for the previous node.
func (vs *VarSplitter) Reset() {
	vs.bestSplit = SplitCandidate{}
	vs.proposedSplit = SplitCandidate{}
	vs.parent = BranchStats{}
	vs.seenX = false
}

//Set binds the splitter to the node whose totals are the baseline of every candidate.
func (vs *VarSplitter) Set(node *TreeNode) {
	vs.parent = node.Stats
}

//ResetForNewVar starts a new stream of observations of the feature. missing holds the
//statistics of the node's observations whose value of the feature is missing; they never
//pass through IncorporateObs.
func (vs *VarSplitter) ResetForNewVar(feature, featureClass int, missing BranchStats) {
	vs.proposedSplit = SplitCandidate{Feature: feature, FeatureClass: featureClass}
	vs.proposedSplit.resetBranches(vs.parent, missing)
	vs.seenX = false
	vs.lastX = 0

	if featureClass > 0 {
		if cap(vs.groupStats) < featureClass {
			vs.groupStats = make([]BranchStats, featureClass)
			vs.groupOrder = make([]categoryMean, featureClass)
		}
		vs.groupStats = vs.groupStats[:featureClass]
		vs.groupOrder = vs.groupOrder[:featureClass]
		for ind := range vs.groupStats {
			vs.groupStats[ind] = BranchStats{}
		}
	}
}

//IncorporateObs takes the next observation of the node in ascending order of x.
//A continuous cut is considered only between two distinct values of x.
func (vs *VarSplitter) IncorporateObs(x, residual, weight float64, monotonicity Monotonicity) {
	if vs.proposedSplit.IsCategorical() {
		vs.groupStats[int(x)].Add(residual, weight)
		return
	}

	if vs.seenX && x != vs.lastX && vs.proposedSplit.hasMinNumObs(vs.minNumObs) {
		vs.proposedSplit.Threshold = cutThreshold(vs.lastX, x)
		if vs.proposedSplit.respectsMonotonicity(monotonicity) &&
			vs.proposedSplit.computeImprovement() > vs.bestSplit.Improvement {
			vs.bestSplit = vs.proposedSplit
		}
	}

	var obs BranchStats
	obs.Add(residual, weight)
	vs.proposedSplit.moveToLeft(obs)
	vs.lastX = x
	vs.seenX = true
}

//EvaluateCategoricalSplit orders the categories by mean residual and scans the prefixes
//of that order. The low-mean prefix forms the left branch.
func (vs *VarSplitter) EvaluateCategoricalSplit() {
	if !vs.proposedSplit.IsCategorical() {
		return
	}

	numFinite := 0
	for category, stats := range vs.groupStats {
		mean, ok := stats.Mean()
		vs.groupOrder[category] = categoryMean{category: category, mean: mean, empty: !ok}
		if ok {
			numFinite++
		}
	}
	sort.Slice(vs.groupOrder, func(i, j int) bool {
		a, b := vs.groupOrder[i], vs.groupOrder[j]
		if a.empty != b.empty {
			return b.empty
		}
		if !a.empty && a.mean != b.mean {
			return a.mean < b.mean
		}
		return a.category < b.category
	})

	for ind := 0; ind < numFinite-1; ind++ {
		vs.proposedSplit.moveToLeft(vs.groupStats[vs.groupOrder[ind].category])
		if !vs.proposedSplit.hasMinNumObs(vs.minNumObs) {
			continue
		}
		if vs.proposedSplit.computeImprovement() > vs.bestSplit.Improvement {
			vs.bestSplit = vs.proposedSplit
			vs.bestSplit.LeftCategories = make([]bool, len(vs.groupStats))
			for _, group := range vs.groupOrder[:ind+1] {
				vs.bestSplit.LeftCategories[group.category] = true
			}
		}
	}
}

func (vs *VarSplitter) BestImprovement() float64 {
	return vs.bestSplit.Improvement
}

func (vs *VarSplitter) BestSplit() SplitCandidate {
	return vs.bestSplit.Clone()
}
