// Package binning turns a column's observed values into the bin edges (or
// categorical level maps) a histogram.DHistogram is built against. It
// stands in for the external binning service spec.md treats as a named
// interface reached only for edges/levels, never for row data.
package binning

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Service produces bin boundaries for numeric columns and level-to-bin
// maps for categorical columns.
type Service interface {
	NumericEdges(values, weights []float64, nbins int) ([]float64, error)
	CategoricalLevels(domain []string, nbinsCats int) map[string]int
}

// QuantileService picks numeric bin edges at evenly spaced weighted
// quantiles, the same strategy H2O's adaptive binning approximates and the
// one gonum's stat package makes a one-line call (stat.Quantile with
// LinInterp), rather than hand-rolled interpolation.
type QuantileService struct{}

// NumericEdges returns up to nbins+1 strictly increasing edges: the
// observed minimum, the interior weighted quantiles, and the observed
// maximum, with equal adjacent edges collapsed (so constant regions yield
// fewer). Values outside [min, max] still land in the first or last bucket
// because DHistogram.BinOf clamps to the bucket range.
func (QuantileService) NumericEdges(values, weights []float64, nbins int) ([]float64, error) {
	if nbins < 1 {
		return nil, fmt.Errorf("binning: nbins must be >= 1, got %d", nbins)
	}
	if len(values) == 0 {
		return []float64{0, 1}, nil
	}
	if weights != nil && len(weights) != len(values) {
		return nil, fmt.Errorf("binning: weights length %d != values length %d", len(weights), len(values))
	}

	sorted := append([]float64(nil), values...)
	var sortedW []float64
	if weights == nil {
		sort.Float64s(sorted)
	} else {
		sortedW = append([]float64(nil), weights...)
		idx := make([]int, len(sorted))
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
		for i, j := range idx {
			sorted[i] = values[j]
			sortedW[i] = weights[j]
		}
	}

	edges := make([]float64, 0, nbins+1)
	edges = append(edges, sorted[0])
	for b := 1; b < nbins; b++ {
		q := float64(b) / float64(nbins)
		edges = append(edges, stat.Quantile(q, stat.LinInterp, sorted, sortedW))
	}
	edges = append(edges, sorted[len(sorted)-1])

	// de-duplicate adjacent equal edges (constant regions), keeping at
	// least two edges so the histogram has at least one bucket.
	dedup := edges[:1]
	for _, e := range edges[1:] {
		if e > dedup[len(dedup)-1] {
			dedup = append(dedup, e)
		}
	}
	if len(dedup) < 2 {
		dedup = append(dedup, dedup[0]+1)
	}
	return dedup, nil
}

// CategoricalLevels maps each domain level to a bin, capping the bin count
// at nbinsCats by folding overflow levels into the last bin — mirroring
// how H2O folds rare categorical levels together rather than growing the
// histogram unboundedly.
func (QuantileService) CategoricalLevels(domain []string, nbinsCats int) map[string]int {
	levels := make(map[string]int, len(domain))
	for i, v := range domain {
		if i < nbinsCats-1 || nbinsCats <= 0 {
			levels[v] = i
		} else {
			levels[v] = nbinsCats - 1
		}
	}
	return levels
}
