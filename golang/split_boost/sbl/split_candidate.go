package sbl

import "math"

//SplitCandidate is one proposed partition of a node's observations on one feature.
//Continuous features are cut by Threshold; categorical features send the categories
//marked in LeftCategories to the left branch. Observations with a missing value form
//the third branch. Improvement equal to zero means that no valid split was found.
type SplitCandidate struct {
	Feature        int
	FeatureClass   int
	Threshold      float64
	LeftCategories []bool

	Left, Right, Missing BranchStats
	Improvement          float64
}

//IsCategorical reports whether the candidate splits a categorical feature.
func (c SplitCandidate) IsCategorical() bool {
	return c.FeatureClass > 0
}

//Total returns the statistics of the whole node the candidate partitions.
func (c SplitCandidate) Total() BranchStats {
	return c.Left.Plus(c.Right).Plus(c.Missing)
}

//Clone returns a copy that does not share the category mask.
func (c SplitCandidate) Clone() SplitCandidate {
	if c.LeftCategories != nil {
		c.LeftCategories = append([]bool(nil), c.LeftCategories...)
	}
	return c
}

//resetBranches puts every non-missing observation of the parent into the right branch.
func (c *SplitCandidate) resetBranches(parent, missing BranchStats) {
	c.Left = BranchStats{}
	c.Missing = missing
	c.Right = parent.Minus(missing)
	c.Improvement = 0
}

//moveToLeft transfers statistics from the right branch to the left one.
func (c *SplitCandidate) moveToLeft(stats BranchStats) {
	c.Left = c.Left.Plus(stats)
	c.Right = c.Right.Minus(stats)
}

func (c SplitCandidate) hasMinNumObs(minNumObs int) bool {
	return c.Left.NumObs >= minNumObs && c.Right.NumObs >= minNumObs
}

//respectsMonotonicity checks the direction of the left and right means.
//Increasing requires the left mean not to exceed the right one, decreasing the reverse.
func (c SplitCandidate) respectsMonotonicity(monotonicity Monotonicity) bool {
	if monotonicity == MonotoneNone {
		return true
	}
	leftMean, okLeft := c.Left.Mean()
	rightMean, okRight := c.Right.Mean()
	if !okLeft || !okRight {
		return false
	}
	return float64(monotonicity)*(leftMean-rightMean) <= 0
}

//computeImprovement evaluates the weighted between-branch variance of the three branch means.
//An empty missing branch reduces it to the classic two-way formula.
func (c *SplitCandidate) computeImprovement() float64 {
	c.Improvement = improvement(c.Left, c.Right, c.Missing)
	return c.Improvement
}

func improvement(left, right, missing BranchStats) float64 {
	leftMean, okLeft := left.Mean()
	rightMean, okRight := right.Mean()
	if !okLeft || !okRight {
		return 0
	}

	diff := leftMean - rightMean
	if missing.Weight == 0 {
		return left.Weight * right.Weight * diff * diff / (left.Weight + right.Weight)
	}

	missingMean := missing.SumResidual / missing.Weight
	diffLM := leftMean - missingMean
	diffRM := rightMean - missingMean
	return (left.Weight*right.Weight*diff*diff +
		left.Weight*missing.Weight*diffLM*diffLM +
		right.Weight*missing.Weight*diffRM*diffRM) /
		(left.Weight + right.Weight + missing.Weight)
}

//Route decides which branch a feature value goes to.
func (c SplitCandidate) Route(x float64) Branch {
	if math.IsNaN(x) {
		return BranchMissing
	}
	if !c.IsCategorical() {
		if x < c.Threshold {
			return BranchLeft
		}
		return BranchRight
	}

	category := int(x)
	if float64(category) != x || category < 0 || category >= len(c.LeftCategories) {
		return BranchMissing
	}
	if c.LeftCategories[category] {
		return BranchLeft
	}
	return BranchRight
}

//cutThreshold returns a threshold that separates lower from upper under x < threshold.
func cutThreshold(lower, upper float64) float64 {
	if math.IsInf(upper, 1) {
		return math.Nextafter(lower, upper)
	}
	mid := 0.5 * (lower + upper)
	if mid <= lower || math.IsInf(mid, 0) {
		return upper
	}
	return mid
}
