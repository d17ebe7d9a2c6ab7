package tree

import (
	"math/rand"

	"github.com/ebooster/gbmcore/histogram"
)

// Split describes the winning split for one Undecided node.
type Split struct {
	FeatureIdx  int
	Threshold   float64
	Categorical bool
	EqualSet    map[int]bool
	NADir       NADirection
	Improvement float64
}

// SplitFinder sweeps a node's per-feature histograms and picks the
// boundary that maximizes variance reduction, subject to MinRows and
// MinSplitImprovement. It mirrors find_the_best_split.go's
// scanForSplitCluster up/down prefix-sum sweep translated from per-row
// cumulative sums to per-bin histogram sums (the whole point of binning).
type SplitFinder struct {
	MinRows              float64
	MinSplitImprovement  float64
	ColSampleRate        float64
	ColSampleRatePerTree float64
	Rand                 *rand.Rand
}

// FindBestSplit returns the best split across histos, or ok=false if no
// candidate split satisfies MinRows/MinSplitImprovement.
func (f SplitFinder) FindBestSplit(histos []*histogram.DHistogram) (Split, bool) {
	best := Split{Improvement: f.MinSplitImprovement}
	found := false

	for _, h := range histos {
		if !f.includeFeature() {
			continue
		}
		sp, ok := f.bestSplitForHistogram(h)
		if ok && sp.Improvement > best.Improvement {
			best = sp
			found = true
		}
	}
	return best, found
}

func (f SplitFinder) includeFeature() bool {
	rate := f.ColSampleRate
	if f.ColSampleRatePerTree > 0 && f.ColSampleRatePerTree < rate {
		rate = f.ColSampleRatePerTree
	}
	if rate <= 0 || rate >= 1 {
		return true
	}
	if f.Rand == nil {
		return true
	}
	return f.Rand.Float64() < rate
}

// bestSplitForHistogram sweeps bin boundaries b=1..Nbins-1, treating bins
// [0,b) as the left arm and [b,Nbins) as the right arm, scoring each
// boundary by the variance-reduction criterion wySum^2/wSum summed over
// the arms minus the parent's wySum^2/wSum. At every boundary it also
// scores the three ways a node's NA rows can be placed — merged into the
// left arm, merged into the right arm, or isolated into a third arm of
// their own (NAVsRest) — and keeps whichever of the three wins, so an
// NA-heavy column can end up with its own subtree instead of always being
// folded into whichever side happens to be larger.
func (f SplitFinder) bestSplitForHistogram(h *histogram.DHistogram) (Split, bool) {
	nbins := h.Nbins
	if nbins < 2 {
		return Split{}, false
	}

	naWSum, naWYSum, _ := h.NAStats()

	totalWSum, totalWYSum := naWSum, naWYSum
	binWSum := make([]float64, nbins)
	binWYSum := make([]float64, nbins)
	for b := 0; b < nbins; b++ {
		ws, wys, _, _, _, _ := h.Get(b)
		binWSum[b], binWYSum[b] = ws, wys
		totalWSum += ws
		totalWYSum += wys
	}
	if totalWSum <= 0 {
		return Split{}, false
	}
	parentScore := totalWYSum * totalWYSum / totalWSum

	var leftWSum, leftWYSum float64
	best := Split{FeatureIdx: h.FeatureIdx, Categorical: h.Categorical}
	bestScore := -1.0
	haveBest := false

	for b := 0; b < nbins-1; b++ {
		leftWSum += binWSum[b]
		leftWYSum += binWYSum[b]
		rightWSum := totalWSum - leftWSum - naWSum
		rightWYSum := totalWYSum - leftWYSum - naWYSum
		if leftWSum < f.MinRows || rightWSum < f.MinRows {
			continue
		}

		naDir, score, ok := bestNAPlacement(leftWSum, leftWYSum, rightWSum, rightWYSum, naWSum, naWYSum, parentScore, f.MinRows)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			haveBest = true
			if h.Categorical {
				best.EqualSet = binsUpTo(h, b)
			} else {
				best.Threshold = h.Edges[b+1]
			}
			best.NADir = naDir
		}
	}
	if !haveBest {
		return Split{}, false
	}
	best.Improvement = bestScore
	return best, true
}

// bestNAPlacement scores the three candidate NA arms at one split boundary
// and returns the winner. NAVsRest is only offered when there's enough NA
// weight to clear MinRows on its own; otherwise NA is merged into whichever
// of the left or right arm scores higher (left on a tie).
func bestNAPlacement(leftWSum, leftWYSum, rightWSum, rightWYSum, naWSum, naWYSum, parentScore, minRows float64) (NADirection, float64, bool) {
	scoreNALeft := (leftWYSum+naWYSum)*(leftWYSum+naWYSum)/(leftWSum+naWSum) + rightWYSum*rightWYSum/rightWSum - parentScore
	scoreNARight := leftWYSum*leftWYSum/leftWSum + (rightWYSum+naWYSum)*(rightWYSum+naWYSum)/(rightWSum+naWSum) - parentScore

	bestDir, bestScore := NALeft, scoreNALeft
	if scoreNARight > bestScore {
		bestDir, bestScore = NARight, scoreNARight
	}
	if naWSum >= minRows {
		scoreNAVsRest := leftWYSum*leftWYSum/leftWSum + rightWYSum*rightWYSum/rightWSum + naWYSum*naWYSum/naWSum - parentScore
		if scoreNAVsRest > bestScore {
			bestDir, bestScore = NAVsRest, scoreNAVsRest
		}
	}
	return bestDir, bestScore, true
}

// binsUpTo returns the set of categorical level-bins [0,b] routed left.
func binsUpTo(h *histogram.DHistogram, b int) map[int]bool {
	set := make(map[int]bool, b+1)
	for _, bin := range h.Levels {
		if bin <= b {
			set[bin] = true
		}
	}
	return set
}

