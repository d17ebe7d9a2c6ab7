package boost

import (
	"math"
	"sync"

	"github.com/ebooster/gbmcore/distribution"
	"github.com/ebooster/gbmcore/frame"
	"github.com/ebooster/gbmcore/quantileagg"
	"github.com/ebooster/gbmcore/tree"
)

// gammaPassClosedForm is GBMDriver.GammaPass + fitBestConstants: accumulate
// per-leaf numerator/denominator over every in-bag row, divide, then apply
// the link (Poisson/Gamma/Tweedie), the learn-rate/multinomial scale, the
// +-1e4 pre-cap with NaN/Inf coercion, and the final max_abs_leafnode_pred
// cap before writing each leaf's Pred.
func gammaPassClosedForm(fr frame.Frame, dist distribution.Distribution, initF float64, scratch *RoundScratch, y, weight []float64, oobMask []bool, k int, K int, tr *tree.DTree, effectiveLearnRate, maxAbsLeafnodePred float64) {
	tcol, ncol := scratch.Tree[k], scratch.Nids[k]
	num := make(map[int32]float64)
	denom := make(map[int32]float64)
	var mu sync.Mutex

	forEachChunk(fr, func(rowStart, rowEnd int) {
		localNum := make(map[int32]float64)
		localDenom := make(map[int32]float64)
		for row := rowStart; row < rowEnd; row++ {
			if !rowActive(row, oobMask, weight, y) {
				continue
			}
			nid := ncol[row]
			if nid < 0 {
				continue
			}
			w := 1.0
			if weight != nil {
				w = weight[row]
			}
			f := initF + tcol[row]
			r := scratch.Work[k][row]
			localNum[nid] += dist.GammaNum(w, y[row], r, f)
			localDenom[nid] += dist.GammaDenom(w, y[row], r, f)
		}
		mu.Lock()
		for nid, v := range localNum {
			num[nid] += v
		}
		for nid, v := range localDenom {
			denom[nid] += v
		}
		mu.Unlock()
	})

	m1class := 1.0
	if dist.Family() == distribution.Multinomial && K > 1 {
		m1class = float64(K-1) / float64(K)
	}

	linked := dist.Family() == distribution.Poisson || dist.Family() == distribution.Gamma || dist.Family() == distribution.Tweedie

	for nid, n := range tr.Nodes {
		if n.Kind != tree.Leaf {
			continue
		}
		d := denom[int32(nid)]
		var pred float64
		if d != 0 {
			pred = num[int32(nid)] / d
		}
		if linked {
			pred = dist.Link(pred)
		}
		pred *= effectiveLearnRate * m1class
		pred = coerceFinite(pred, 1e4)
		pred = tree.MaxAbsFinite(pred, maxAbsLeafnodePred)
		tr.Nodes[nid].Pred = pred
	}
}

// fitQuantileLeaves is fitBestConstantsQuantile: each leaf's constant is
// the alpha-quantile of that leaf's residuals (y, not the gradient), via
// the stratified quantile service keyed by leaf id.
func fitQuantileLeaves(svc quantileagg.Service, alpha float64, scratch *RoundScratch, y, weight []float64, oobMask []bool, k int, tr *tree.DTree, effectiveLearnRate, maxAbsLeafnodePred float64) {
	ncol := scratch.Nids[k]
	var values []float64
	var weights []float64
	var strata []int32
	for row, nid := range ncol {
		if !rowActive(row, oobMask, weight, y) {
			continue
		}
		if nid < 0 {
			continue
		}
		values = append(values, y[row]-scratch.Tree[k][row])
		strata = append(strata, nid)
		if weight != nil {
			weights = append(weights, weight[row])
		}
	}
	if len(values) == 0 {
		return
	}
	byLeaf := svc.Stratified(values, weights, strata, alpha)
	for nid, pred := range byLeaf {
		if int(nid) >= len(tr.Nodes) || tr.Nodes[nid].Kind != tree.Leaf {
			continue
		}
		pred = coerceFinite(pred*effectiveLearnRate, 1e4)
		tr.Nodes[nid].Pred = tree.MaxAbsFinite(pred, maxAbsLeafnodePred)
	}
}

// fitHuberLeaves is fitBestConstantsHuber: per leaf, subtract the leaf's
// stratified median residual, then average sign(r')*min(|r'|, huberDelta)
// over the leaf's rows.
func fitHuberLeaves(svc quantileagg.Service, huberDelta float64, scratch *RoundScratch, y, weight []float64, oobMask []bool, k int, tr *tree.DTree, effectiveLearnRate, maxAbsLeafnodePred float64) {
	ncol := scratch.Nids[k]
	var resid []float64
	var weights []float64
	var strata []int32
	var rows []int
	for row, nid := range ncol {
		if !rowActive(row, oobMask, weight, y) {
			continue
		}
		if nid < 0 {
			continue
		}
		resid = append(resid, y[row]-scratch.Tree[k][row])
		strata = append(strata, nid)
		rows = append(rows, row)
		if weight != nil {
			weights = append(weights, weight[row])
		}
	}
	if len(resid) == 0 {
		return
	}
	medians := svc.Stratified(resid, weights, strata, 0.5)

	sum := make(map[int32]float64)
	wsum := make(map[int32]float64)
	for i, nid := range strata {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		diff := resid[i] - medians[nid]
		clipped := math.Min(math.Abs(diff), huberDelta) * sign(diff)
		sum[nid] += w * clipped
		wsum[nid] += w
	}
	for nid, ws := range wsum {
		if int(nid) >= len(tr.Nodes) || tr.Nodes[nid].Kind != tree.Leaf {
			continue
		}
		if ws == 0 {
			continue
		}
		pred := medians[nid] + sum[nid]/ws
		pred = coerceFinite(pred*effectiveLearnRate, 1e4)
		tr.Nodes[nid].Pred = tree.MaxAbsFinite(pred, maxAbsLeafnodePred)
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// coerceFinite applies the pre-cap H2O's fitBestConstants does before the
// final max_abs_leafnode_pred clamp: NaN->0, and anything beyond +-bound
// (infinities included) -> +-bound.
func coerceFinite(v, bound float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
