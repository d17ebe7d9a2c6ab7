package boost

import (
	"math"

	"github.com/ebooster/gbmcore/distribution"
	"github.com/ebooster/gbmcore/frame"
)

// rowActive reports whether row participates in this round's residual,
// histogram, and gamma-pass computations: in-bag, non-zero weight, and a
// non-NaN response. Grounded on GBMDriver's ComputePredAndRes, which skips
// OOB rows outright and zero-weight rows read as contributing nothing to
// either the loss or its gradient.
func rowActive(row int, oobMask []bool, weight, y []float64) bool {
	if oobMask != nil && oobMask[row] {
		return false
	}
	if weight != nil && weight[row] == 0 {
		return false
	}
	if y != nil && math.IsNaN(y[row]) {
		return false
	}
	return true
}

// weightsAt returns weight[rows[i]] for each i, or nil if weight is nil,
// used to align a values/strata slice built from a row subset with its
// per-row weights before handing both to quantileagg.Service.Stratified.
func weightsAt(weight []float64, rows []int) []float64 {
	if weight == nil {
		return nil
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = weight[row]
	}
	return out
}

// computeResiduals fills Work[k] for every in-bag row from the row's
// current prediction (InitF + Tree[k]), grounded on GBMDriver's
// ComputePredAndRes. Multinomial is handled separately since it needs
// every class's current F to normalize via softmax (LogRescale), not just
// its own.
func computeResiduals(fr frame.Frame, dist distribution.Distribution, initF float64, scratch *RoundScratch, y, weight []float64, oobMask []bool, k int) {
	tcol, wcol := scratch.Tree[k], scratch.Work[k]
	forEachChunk(fr, func(rowStart, rowEnd int) {
		for row := rowStart; row < rowEnd; row++ {
			if !rowActive(row, oobMask, weight, y) {
				continue
			}
			f := initF + tcol[row]
			w := 1.0
			if weight != nil {
				w = weight[row]
			}
			wcol[row] = w * dist.NegHalfGradient(y[row], f)
		}
	})
}

// computeResidualsMultinomial fills Work[k] for every class k using the
// overflow-safe softmax over all K classes' current F, grounded on
// score1's multinomial branch (log_rescale then one-hot-minus-probability).
func computeResidualsMultinomial(fr frame.Frame, initF float64, scratch *RoundScratch, y, weight []float64, oobMask []bool, K int) {
	forEachChunk(fr, func(rowStart, rowEnd int) {
		logits := make([]float64, K)
		for row := rowStart; row < rowEnd; row++ {
			if !rowActive(row, oobMask, weight, y) {
				continue
			}
			w := 1.0
			if weight != nil {
				w = weight[row]
			}
			for k := 0; k < K; k++ {
				logits[k] = initF + scratch.Tree[k][row]
			}
			probs := distribution.LogRescale(logits)
			yClass := int(y[row])
			for k := 0; k < K; k++ {
				target := 0.0
				if k == yClass {
					target = 1.0
				}
				scratch.Work[k][row] = w * (target - probs[k])
			}
		}
	})
}

// applyHuberResiduals overwrites Work[k] in place with the two-step Huber
// gradient (clip at delta, keep sign), given a delta already computed from
// a stratified quantile over |y-f|. Grounded on GBMDriver.buildNextKTrees'
// Huber branch: compute the delta once per round from the whole in-bag
// population, then clip each row's residual against it.
func applyHuberResiduals(delta float64, scratch *RoundScratch, weight []float64, oobMask []bool, k int) {
	work := scratch.Work[k]
	for row := range work {
		if oobMask != nil && oobMask[row] {
			continue
		}
		if weight != nil && weight[row] == 0 {
			continue
		}
		r := work[row]
		if r > delta {
			work[row] = delta
		} else if r < -delta {
			work[row] = -delta
		}
	}
}

// absResiduals returns |Work[k][row]| for in-bag rows, used to compute the
// Huber delta via a stratified (single-stratum) quantile at HuberAlpha.
func absResiduals(scratch *RoundScratch, weight []float64, oobMask []bool, k int) (values []float64, rows []int) {
	work := scratch.Work[k]
	for row, r := range work {
		if oobMask != nil && oobMask[row] {
			continue
		}
		if weight != nil && weight[row] == 0 {
			continue
		}
		if r < 0 {
			r = -r
		}
		values = append(values, r)
		rows = append(rows, row)
	}
	return values, rows
}
