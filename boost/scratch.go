package boost

import (
	"github.com/ebooster/gbmcore/histobuild"
	"github.com/ebooster/gbmcore/tree"
)

// RoundScratch holds the per-round mutable columns spec.md's global
// mutable TREE/WORK/NIDS columns become here: explicit, driver-owned
// arenas allocated once per Driver.Train call (not per round), reset in
// place between rounds rather than re-allocated, except NIDS which the
// sampler rewrites fresh at the top of every round anyway.
type RoundScratch struct {
	Tree [][]float64 // Tree[k][row]: accumulated ensemble output, persists across rounds
	Work [][]float64 // Work[k][row]: current round's gradient/residual, overwritten every round
	Nids [][]int32   // Nids[k][row]: current round's tree-node routing, overwritten every round
}

// NewRoundScratch allocates K columns of numRows each.
func NewRoundScratch(k, numRows int) *RoundScratch {
	s := &RoundScratch{
		Tree: make([][]float64, k),
		Work: make([][]float64, k),
		Nids: make([][]int32, k),
	}
	for c := 0; c < k; c++ {
		s.Tree[c] = make([]float64, numRows)
		s.Work[c] = make([]float64, numRows)
		s.Nids[c] = make([]int32, numRows)
	}
	return s
}

// ResetNids fills Nids[k] with Fresh for in-bag rows and OOB for the rest,
// per oobMask (oobMask[row]==true means out-of-bag).
func (s *RoundScratch) ResetNids(k int, oobMask []bool) {
	nids := s.Nids[k]
	for row := range nids {
		if oobMask != nil && oobMask[row] {
			nids[row] = histobuild.OOB
		} else {
			nids[row] = histobuild.Fresh
		}
	}
}

// Ensemble is the trained model handle Driver.Train returns: one DTree per
// (round, class), the initial prediction, and per-round diagnostics.
type Ensemble struct {
	Trees   [][]*tree.DTree // Trees[round][k], nil entry if class k had zero marginal weight that round
	InitF   float64
	K       int
	Metrics []RoundMetric
}

// RoundMetric records one round's convergence-relevant statistics.
type RoundMetric struct {
	Round               int
	EffectiveLearnRate  float64
	TrainLoss           float64
}

// Predict sums InitF plus every round's tree-k contribution for one row.
func (e *Ensemble) Predict(k int, feature func(featureIdx int) (float64, bool)) (float64, error) {
	f := e.InitF
	for _, round := range e.Trees {
		if k >= len(round) || round[k] == nil {
			continue
		}
		pred, err := round[k].Predict(feature)
		if err != nil {
			return 0, err
		}
		f += pred
	}
	return f, nil
}
