// Package quantileagg computes weighted quantiles per stratum, standing in
// for the StratifiedQuantilesTask external service spec.md's Huber and
// Quantile leaf-fit paths depend on (one quantile per tree leaf).
package quantileagg

import (
	"math"
	"sort"
)

// Service computes a weighted q-quantile independently within each
// stratum.
type Service interface {
	Stratified(values, weights []float64, strata []int32, q float64) map[int32]float64
}

// StratifiedQuantile is the default Service, grouping rows by stratum with
// a single pass. Within a group each weight counts as that many rows; the
// q-quantile sits at position q*(W-1) of the sorted values (W the group's
// total weight) and is linearly interpolated between the values at the two
// neighbouring positions, so the unweighted median of {1,2,3} is 2.
type StratifiedQuantile struct{}

func (StratifiedQuantile) Stratified(values, weights []float64, strata []int32, q float64) map[int32]float64 {
	byStratum := make(map[int32][]int)
	for i, s := range strata {
		byStratum[s] = append(byStratum[s], i)
	}

	out := make(map[int32]float64, len(byStratum))
	for s, idxs := range byStratum {
		vs := make([]float64, len(idxs))
		var ws []float64
		if weights != nil {
			ws = make([]float64, len(idxs))
		}
		for i, idx := range idxs {
			vs[i] = values[idx]
			if weights != nil {
				ws[i] = weights[idx]
			}
		}
		sortPaired(vs, ws)
		total, cum := 0.0, make([]float64, len(vs))
		for i := range vs {
			w := 1.0
			if ws != nil {
				w = ws[i]
			}
			total += w
			cum[i] = total
		}
		at := func(p float64) float64 {
			return vs[min(sort.Search(len(cum), func(j int) bool { return cum[j] > p }), len(vs)-1)]
		}
		pos := math.Max(q*(total-1), 0)
		lo := math.Floor(pos)
		out[s] = at(lo) + (pos-lo)*(at(lo+1)-at(lo))
	}
	return out
}

func sortPaired(vs, ws []float64) {
	idx := make([]int, len(vs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return vs[idx[a]] < vs[idx[b]] })
	sortedV := make([]float64, len(vs))
	var sortedW []float64
	if ws != nil {
		sortedW = make([]float64, len(ws))
	}
	for i, j := range idx {
		sortedV[i] = vs[j]
		if ws != nil {
			sortedW[i] = ws[j]
		}
	}
	copy(vs, sortedV)
	if ws != nil {
		copy(ws, sortedW)
	}
}
