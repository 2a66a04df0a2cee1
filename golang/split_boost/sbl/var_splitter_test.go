package sbl

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

type testObs struct {
	x, residual, weight float64
}

func totalsOf(observations []testObs) (stats BranchStats) {
	for _, obs := range observations {
		stats.Add(obs.residual, obs.weight)
	}
	return
}

//runSplitter streams sorted observations through a fresh splitter bound to a node with the given totals.
func runSplitter(minNumObs, featureClass int, parent, missing BranchStats, observations []testObs, monotonicity Monotonicity) *VarSplitter {
	vs := NewVarSplitter(minNumObs)
	vs.Reset()
	vs.Set(&TreeNode{Stats: parent})
	vs.ResetForNewVar(3, featureClass, missing)
	for _, obs := range observations {
		vs.IncorporateObs(obs.x, obs.residual, obs.weight, monotonicity)
	}
	vs.EvaluateCategoricalSplit()
	return vs
}

func assertStatsEqual(t *testing.T, got, want BranchStats) {
	t.Helper()
	if got.NumObs != want.NumObs ||
		!scalar.EqualWithinAbsOrRel(got.Weight, want.Weight, 1e-9, 1e-9) ||
		!scalar.EqualWithinAbsOrRel(got.SumResidual, want.SumResidual, 1e-9, 1e-9) {
		t.Fatalf("statistics %+v are not equal to %+v", got, want)
	}
}

func TestVarSplitterFindsStep(t *testing.T) {
	var observations []testObs
	for ind := 0; ind < 20; ind++ {
		residual := 1.0
		if ind >= 12 {
			residual = 4.0
		}
		observations = append(observations, testObs{float64(ind), residual, 1})
	}
	parent := totalsOf(observations)

	vs := runSplitter(2, 0, parent, BranchStats{}, observations, MonotoneNone)
	best := vs.BestSplit()

	if best.Feature != 3 || best.FeatureClass != 0 {
		t.Errorf("wrong feature bookkeeping %d %d", best.Feature, best.FeatureClass)
	}
	if best.Threshold != 11.5 {
		t.Errorf("expected threshold 11.5, got %g", best.Threshold)
	}
	if best.Left.NumObs != 12 || best.Right.NumObs != 8 {
		t.Errorf("wrong branch sizes %d %d", best.Left.NumObs, best.Right.NumObs)
	}
	// 12*8*3^2/20
	if !scalar.EqualWithinAbs(vs.BestImprovement(), 43.2, 1e-9) {
		t.Errorf("unexpected improvement %g", vs.BestImprovement())
	}
	assertStatsEqual(t, best.Total(), parent)
}

func TestVarSplitterNeverSplitsTies(t *testing.T) {
	observations := []testObs{
		{1, 0, 1}, {1, 5, 1}, {1, 0, 1},
		{2, 9, 1}, {2, 9, 1}, {2, 9, 1},
	}
	vs := runSplitter(1, 0, totalsOf(observations), BranchStats{}, observations, MonotoneNone)
	best := vs.BestSplit()
	if best.Left.NumObs != 3 || best.Threshold != 1.5 {
		t.Fatalf("split inside a run of equal values: %+v", best)
	}
}

func TestVarSplitterMinNumObs(t *testing.T) {
	var observations []testObs
	for ind := 0; ind < 9; ind++ {
		observations = append(observations, testObs{float64(ind), float64(ind * ind), 1})
	}
	parent := totalsOf(observations)

	vs := runSplitter(5, 0, parent, BranchStats{}, observations, MonotoneNone)
	if vs.BestImprovement() != 0 {
		t.Errorf("9 observations can not make two branches of 5, got %+v", vs.BestSplit())
	}

	vs = runSplitter(4, 0, parent, BranchStats{}, observations, MonotoneNone)
	best := vs.BestSplit()
	if vs.BestImprovement() <= 0 {
		t.Fatalf("expected a split with 4 observations per branch")
	}
	if best.Left.NumObs < 4 || best.Right.NumObs < 4 {
		t.Errorf("branch below the minimum: %d %d", best.Left.NumObs, best.Right.NumObs)
	}
}

func TestVarSplitterMonotonicity(t *testing.T) {
	var observations []testObs
	for ind := 0; ind < 10; ind++ {
		observations = append(observations, testObs{float64(ind), 10 - float64(ind), 1})
	}
	parent := totalsOf(observations)

	increasing := runSplitter(1, 0, parent, BranchStats{}, observations, MonotoneIncreasing)
	if increasing.BestImprovement() != 0 {
		t.Errorf("decreasing response split under increasing constraint: %+v", increasing.BestSplit())
	}

	decreasing := runSplitter(1, 0, parent, BranchStats{}, observations, MonotoneDecreasing)
	free := runSplitter(1, 0, parent, BranchStats{}, observations, MonotoneNone)
	if decreasing.BestImprovement() <= 0 {
		t.Fatalf("expected a split under decreasing constraint")
	}
	if decreasing.BestImprovement() != free.BestImprovement() {
		t.Errorf("constraint changed an allowed split: %g vs %g", decreasing.BestImprovement(), free.BestImprovement())
	}
	best := decreasing.BestSplit()
	leftMean, _ := best.Left.Mean()
	rightMean, _ := best.Right.Mean()
	if leftMean < rightMean {
		t.Errorf("left mean %g below right mean %g", leftMean, rightMean)
	}
}

func TestVarSplitterMissingBranch(t *testing.T) {
	observations := []testObs{{0, 1, 1}, {1, 1, 2}, {2, 1, 1}, {3, 6, 1}, {4, 6, 0.5}, {5, 7, 1}}
	missing := totalsOf([]testObs{{math.NaN(), -3, 1}, {math.NaN(), -2, 1}})
	parent := totalsOf(observations).Plus(missing)

	vs := runSplitter(2, 0, parent, missing, observations, MonotoneNone)
	best := vs.BestSplit()
	assertStatsEqual(t, best.Missing, missing)
	assertStatsEqual(t, best.Total(), parent)
	if !scalar.EqualWithinAbs(best.Improvement, improvement(best.Left, best.Right, best.Missing), 1e-12) {
		t.Errorf("stored improvement %g differs from the branch statistics", best.Improvement)
	}
	if best.Threshold != 2.5 {
		t.Errorf("expected threshold 2.5, got %g", best.Threshold)
	}
}

func TestImprovementThreeWay(t *testing.T) {
	left := BranchStats{SumResidual: 2, Weight: 2, NumObs: 2}
	right := BranchStats{SumResidual: 12, Weight: 3, NumObs: 3}
	missing := BranchStats{SumResidual: -5, Weight: 5, NumObs: 5}

	if got := improvement(left, right, BranchStats{}); !scalar.EqualWithinAbs(got, 2*3*9/5.0, 1e-12) {
		t.Errorf("two-way improvement %g", got)
	}
	want := (2*3*9 + 2*5*4 + 3*5*25) / 10.0
	if got := improvement(left, right, missing); !scalar.EqualWithinAbs(got, want, 1e-12) {
		t.Errorf("three-way improvement %g, want %g", got, want)
	}
	if got := improvement(BranchStats{NumObs: 3}, right, missing); got != 0 {
		t.Errorf("zero weight branch must give no improvement, got %g", got)
	}
}

//exhaustiveCategorical evaluates every binary partition of the non-empty categories.
func exhaustiveCategorical(groups []BranchStats, minNumObs int) (best float64, bestMask uint) {
	k := len(groups)
	for mask := uint(1); mask < (1<<k)-1; mask++ {
		var left, right BranchStats
		for category, stats := range groups {
			if mask&(1<<category) != 0 {
				left = left.Plus(stats)
			} else {
				right = right.Plus(stats)
			}
		}
		if left.NumObs < minNumObs || right.NumObs < minNumObs {
			continue
		}
		if value := improvement(left, right, BranchStats{}); value > best {
			best, bestMask = value, mask
		}
	}
	return
}

func TestCategoricalSplitIsOptimal(t *testing.T) {
	cases := []struct {
		name      string
		means     []float64
		counts    []int
		minNumObs int
	}{
		{"four categories", []float64{3, -1, 7, 0.5}, []int{4, 6, 3, 5}, 1},
		{"six categories", []float64{2, 2.5, -4, 9, 1, 0}, []int{3, 1, 7, 2, 5, 4}, 1},
		{"weak separation", []float64{0.2, 0.1, 0.3, -0.1}, []int{6, 6, 6, 2}, 2},
		{"with empty category", []float64{1, 5, 0, -2, 3}, []int{4, 0, 4, 2, 3}, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			groups := make([]BranchStats, len(tc.means))
			var observations []testObs
			for category, mean := range tc.means {
				for ind := 0; ind < tc.counts[category]; ind++ {
					// spread around the category mean without changing it
					residual := mean + float64(ind%2*2-1)*0.25
					if tc.counts[category]%2 == 1 && ind == tc.counts[category]-1 {
						residual = mean
					}
					observations = append(observations, testObs{float64(category), residual, 1})
					groups[category].Add(residual, 1)
				}
			}
			parent := totalsOf(observations)

			vs := runSplitter(tc.minNumObs, len(tc.means), parent, BranchStats{}, observations, MonotoneNone)
			best := vs.BestSplit()

			wantImprovement, wantMask := exhaustiveCategorical(groups, tc.minNumObs)
			if !scalar.EqualWithinAbsOrRel(best.Improvement, wantImprovement, 1e-9, 1e-9) {
				t.Fatalf("improvement %g, exhaustive search found %g", best.Improvement, wantImprovement)
			}

			// compare the partitions of the non-empty categories up to swapping the sides
			sameSide, oppositeSide := true, true
			for category, stats := range groups {
				if stats.NumObs == 0 {
					if best.LeftCategories[category] {
						t.Errorf("empty category %d placed into the low-mean group", category)
					}
					continue
				}
				inWant := wantMask&(1<<category) != 0
				sameSide = sameSide && inWant == best.LeftCategories[category]
				oppositeSide = oppositeSide && inWant != best.LeftCategories[category]
			}
			if !sameSide && !oppositeSide {
				t.Errorf("partition %v differs from exhaustive mask %b", best.LeftCategories, wantMask)
			}
			assertStatsEqual(t, best.Total(), parent)
		})
	}
}

func TestCategoricalSingleFiniteGroup(t *testing.T) {
	observations := []testObs{{1, 2, 1}, {1, 3, 1}, {1, 4, 1}}
	vs := runSplitter(1, 3, totalsOf(observations), BranchStats{}, observations, MonotoneNone)
	if vs.BestImprovement() != 0 {
		t.Errorf("one observed category can not be split, got %+v", vs.BestSplit())
	}
}

func TestSplitCandidateRoute(t *testing.T) {
	continuous := SplitCandidate{Threshold: 2.5}
	for x, want := range map[float64]Branch{1: BranchLeft, 2.5: BranchRight, 7: BranchRight, math.NaN(): BranchMissing} {
		if got := continuous.Route(x); got != want {
			t.Errorf("continuous route of %g is %s, want %s", x, got, want)
		}
	}

	categorical := SplitCandidate{FeatureClass: 3, LeftCategories: []bool{false, true, false}}
	for x, want := range map[float64]Branch{0: BranchRight, 1: BranchLeft, 2: BranchRight, 3: BranchMissing, 1.5: BranchMissing} {
		if got := categorical.Route(x); got != want {
			t.Errorf("categorical route of %g is %s, want %s", x, got, want)
		}
	}
}

func TestCutThresholdSeparatesAdjacentValues(t *testing.T) {
	lower := 1.0
	upper := math.Nextafter(lower, 2)
	threshold := cutThreshold(lower, upper)
	if !(lower < threshold) || upper < threshold {
		t.Errorf("threshold %v does not separate %v and %v", threshold, lower, upper)
	}
}

func TestCutThresholdBelowInfinity(t *testing.T) {
	for _, lower := range []float64{3, -1e300, math.Inf(-1)} {
		threshold := cutThreshold(lower, math.Inf(1))
		if !(lower < threshold) || math.IsInf(threshold, 0) {
			t.Errorf("threshold %v between %v and +Inf", threshold, lower)
		}
	}
}

func TestVarSplitterCandidatesAddUpToParent(t *testing.T) {
	observations := []testObs{{0, 1, 1}, {0, 2, 0.5}, {1, -1, 2}, {2, 3, 1}, {2, 0.5, 1}, {3, 4, 1.5}, {4, -2, 1}}
	missing := totalsOf([]testObs{{0, 5, 1}, {0, -3, 2}})
	parent := totalsOf(observations).Plus(missing)

	vs := NewVarSplitter(1)
	vs.Reset()
	vs.Set(&TreeNode{Stats: parent})

	vs.ResetForNewVar(0, 0, missing)
	for _, obs := range observations {
		vs.IncorporateObs(obs.x, obs.residual, obs.weight, MonotoneNone)
		assertStatsEqual(t, vs.proposedSplit.Missing, missing)
		assertStatsEqual(t, vs.proposedSplit.Total(), parent)
	}
	if vs.BestImprovement() <= 0 {
		t.Fatalf("expected a continuous split")
	}
	continuous := vs.BestSplit()
	assertStatsEqual(t, continuous.Missing, missing)
	assertStatsEqual(t, continuous.Total(), parent)

	vs.ResetForNewVar(1, 5, missing)
	for _, obs := range observations {
		vs.IncorporateObs(obs.x, obs.residual, obs.weight, MonotoneNone)
	}
	vs.EvaluateCategoricalSplit()
	assertStatsEqual(t, vs.proposedSplit.Missing, missing)
	assertStatsEqual(t, vs.proposedSplit.Total(), parent)
	best := vs.BestSplit()
	assertStatsEqual(t, best.Missing, missing)
	assertStatsEqual(t, best.Total(), parent)
}
