package sbl

//BranchStats holds the sufficient statistics of a set of observations:
//the sum of weighted residuals, the sum of weights and the number of observations.
type BranchStats struct {
	SumResidual float64
	Weight      float64
	NumObs      int
}

//Add includes one observation. The residual is multiplied by its weight.
func (s *BranchStats) Add(residual, weight float64) {
	s.SumResidual += weight * residual
	s.Weight += weight
	s.NumObs++
}

//Plus returns the union of two disjoint sets of statistics.
func (s BranchStats) Plus(other BranchStats) BranchStats {
	return BranchStats{
		SumResidual: s.SumResidual + other.SumResidual,
		Weight:      s.Weight + other.Weight,
		NumObs:      s.NumObs + other.NumObs,
	}
}

//Minus removes a subset of statistics.
func (s BranchStats) Minus(other BranchStats) BranchStats {
	return BranchStats{
		SumResidual: s.SumResidual - other.SumResidual,
		Weight:      s.Weight - other.Weight,
		NumObs:      s.NumObs - other.NumObs,
	}
}

//Mean returns the weighted mean residual and false when the weight is zero.
func (s BranchStats) Mean() (float64, bool) {
	if s.Weight == 0 {
		return 0, false
	}
	return s.SumResidual / s.Weight, true
}

//Branch is the outcome of routing one observation through a split.
type Branch int8

const (
	BranchLeft Branch = iota
	BranchRight
	BranchMissing
)

func (b Branch) String() string {
	switch b {
	case BranchLeft:
		return "left"
	case BranchRight:
		return "right"
	case BranchMissing:
		return "missing"
	}
	return "unknown"
}

//Monotonicity constrains the direction of a split on a continuous feature.
type Monotonicity int8

const (
	MonotoneDecreasing Monotonicity = -1
	MonotoneNone       Monotonicity = 0
	MonotoneIncreasing Monotonicity = 1
)

func (m Monotonicity) valid() bool {
	return m >= MonotoneDecreasing && m <= MonotoneIncreasing
}
