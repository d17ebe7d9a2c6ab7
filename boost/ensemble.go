package boost

import (
	"math"
	"math/rand"

	"github.com/ebooster/gbmcore/frame"
	"github.com/ebooster/gbmcore/histobuild"
	"github.com/ebooster/gbmcore/tree"
)

// addTreeContributions is AddTreeContributions: for every in-bag row, look
// up its leaf prediction (already scaled by effective_learning_rate and, for
// multinomial, m1class when the leaf's Pred was written), optionally
// perturb it by a seeded Gaussian noise factor, truncate to float32
// precision (H2O truncates for determinism across JVM/Go float widening,
// which we keep even though Go has no equivalent widening concern, since it
// keeps the output bit-identical to a rerun with the same seed regardless
// of accumulation order), and accumulate it into Tree[k]. Resets Nids[k] to
// Fresh for every row, in-bag or not, since the next round's sampler call
// overwrites it anyway.
func addTreeContributions(fr frame.Frame, tr *tree.DTree, scratch *RoundScratch, oobMask []bool, k, round, ntrees int, seed int64, predNoiseBandwidth float64) {
	tcol, ncol := scratch.Tree[k], scratch.Nids[k]
	forEachChunk(fr, func(rowStart, rowEnd int) {
		for row := rowStart; row < rowEnd; row++ {
			nid := ncol[row]
			inBag := oobMask == nil || !oobMask[row]
			if inBag && nid >= 0 && int(nid) < len(tr.Nodes) && tr.Nodes[nid].Kind == tree.Leaf {
				pred := tr.Nodes[nid].Pred
				if predNoiseBandwidth > 0 {
					pred *= 1 + predNoiseBandwidth*noiseFactor(seed, round, k, ntrees, int(nid))
				}
				tcol[row] += float64(float32(pred))
			}
			ncol[row] = histobuild.Fresh
		}
	})
}

// noiseFactor reproduces AddTreeContributions' seed mixing:
// (0xDECAF+seed)*(0xFAAAAAAB + k*ntrees + ntreesSoFar) + nid, fed through a
// standard normal draw.
func noiseFactor(seed int64, round, k, ntrees, nid int) float64 {
	mixed := (seed+0xDECAF)*(0xFAAAAAAB+int64(k)*int64(ntrees)+int64(round)) + int64(nid)
	rng := rand.New(rand.NewSource(mixed))
	return rng.NormFloat64()
}

// truncateLogSpace is truncatePreds: for Poisson/Gamma/Tweedie, a tree's
// per-row contribution is clamped so the row's accumulated log-space
// prediction never exceeds the min/max actually observed for y, keeping
// exp(Tree[k][row]) from overflowing on pathological splits.
func truncateLogSpace(scratch *RoundScratch, k int, minLog, maxLog float64) {
	tcol := scratch.Tree[k]
	for row, v := range tcol {
		if v < minLog {
			tcol[row] = minLog
		} else if v > maxLog {
			tcol[row] = maxLog
		}
	}
}

// logBounds computes minLog/maxLog from the response column, used as the
// truncateLogSpace bounds: the smallest and largest log(y) over rows with
// y > 0, or -1e4/1e4 when no row has a positive response.
func logBounds(y []float64) (minLog, maxLog float64) {
	minLog, maxLog = math.Inf(1), math.Inf(-1)
	for _, v := range y {
		if v <= 0 {
			continue
		}
		l := math.Log(v)
		if l < minLog {
			minLog = l
		}
		if l > maxLog {
			maxLog = l
		}
	}
	if math.IsInf(minLog, 1) {
		minLog, maxLog = -1e4, 1e4
	}
	return minLog, maxLog
}
