package boost

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/ebooster/gbmcore/binning"
	"github.com/ebooster/gbmcore/distribution"
	"github.com/ebooster/gbmcore/frame"
	"github.com/ebooster/gbmcore/histobuild"
	"github.com/ebooster/gbmcore/pool"
	"github.com/ebooster/gbmcore/quantileagg"
	"github.com/ebooster/gbmcore/sampler"
	"github.com/ebooster/gbmcore/tree"
)

// Driver runs the boosting control loop described in GBM.java's
// GBMDriver: per round, residual pass, grow K trees breadth-first,
// gamma/leaf-fit pass, ensemble update, convergence check.
type Driver struct {
	Params   GBMParams
	K        int
	Binning  binning.Service
	Quantile quantileagg.Service
}

// NewDriver validates params and fills in default services.
func NewDriver(params GBMParams, k int) (*Driver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if k < 1 {
		k = 1
	}
	return &Driver{
		Params:   params,
		K:        k,
		Binning:  binning.QuantileService{},
		Quantile: quantileagg.StratifiedQuantile{},
	}, nil
}

// Train builds params.NTrees rounds of K trees over fr, predicting y with
// optional row weights and an optional class label (for per-class sample
// rates / multinomial residuals). featureCols names the candidate split
// columns; catCols flags which of those are categorical.
func (d *Driver) Train(fr frame.Frame, y, weight []float64, featureCols []int, catCols map[int]bool, classOf []int32) (*Ensemble, error) {
	numRows := fr.NumRows()
	if len(y) != numRows {
		return nil, fmt.Errorf("boost: y has %d rows, want %d", len(y), numRows)
	}

	dist, err := distribution.New(d.Params.Distribution, d.Params.TweediePower, d.Params.HuberAlpha, d.Params.QuantileAlpha)
	if err != nil {
		return nil, err
	}
	multinomial := dist.Family() == distribution.Multinomial

	cols := materializeColumns(fr, featureCols)
	edgesTop, edgesDeep, levels := d.buildBinningPlan(cols, featureCols, catCols, fr)
	featureAt := func(row, featureIdx int) (float64, bool) {
		v := cols[featureIdx]
		if row < 0 || row >= len(v) {
			return 0, true
		}
		x := v[row]
		return x, math.IsNaN(x)
	}

	initF := d.initialPrediction(dist, multinomial, y, weight)

	minLog, maxLog := 0.0, 0.0
	if dist.TruncateLogSpace() {
		minLog, maxLog = logBounds(y)
	}

	ensemble := &Ensemble{InitF: initF, K: d.K}
	scratch := NewRoundScratch(d.K, numRows)
	rng := rand.New(rand.NewSource(d.Params.Seed))

	for round := 1; round <= d.Params.NTrees; round++ {
		effLR := d.Params.EffectiveLearnRate(round)
		if effLR < 1e-6 {
			log.Printf("boost: round %d effective learn rate %.3e below convergence threshold, stopping", round, effLR)
			break
		}

		oobMask := sampler.OOBMask(numRows, d.Params.SampleRate, classOf, d.Params.SampleRatePerClass, d.Params.Seed, round, 0)
		for k := 0; k < d.K; k++ {
			scratch.ResetNids(k, oobMask)
		}

		if multinomial {
			computeResidualsMultinomial(fr, initF, scratch, y, weight, oobMask, d.K)
		} else {
			computeResiduals(fr, dist, initF, scratch, y, weight, oobMask, 0)
		}
		if dist.NeedsHuberFit() {
			values, rows := absResiduals(scratch, weight, oobMask, 0)
			if len(values) > 0 {
				strata := make([]int32, len(rows))
				delta := d.Quantile.Stratified(values, weightsAt(weight, rows), strata, d.Params.HuberAlpha)[0]
				applyHuberResiduals(delta, scratch, weight, oobMask, 0)
			}
		}

		trees := make([]*tree.DTree, d.K)
		token := &pool.CancelToken{}
		for k := 0; k < d.K; k++ {
			if !hasMarginalWeight(y, weight, oobMask, k, multinomial) {
				continue
			}
			tr, err := d.growTree(fr, featureCols, catCols, edgesTop, edgesDeep, levels, scratch, y, weight, k, rng, token, featureAt)
			if err != nil {
				return nil, err
			}
			trees[k] = tr

			if dist.NeedsQuantileFit() {
				alpha := d.Params.QuantileAlpha
				if dist.Family() == distribution.Laplace {
					alpha = 0.5
				}
				fitQuantileLeaves(d.Quantile, alpha, scratch, y, weight, oobMask, k, tr, effLR, d.Params.MaxAbsLeafnodePred)
			} else if dist.NeedsHuberFit() {
				values, rows := absResiduals(scratch, weight, oobMask, k)
				delta := 0.0
				if len(values) > 0 {
					strata := make([]int32, len(values))
					delta = d.Quantile.Stratified(values, weightsAt(weight, rows), strata, d.Params.HuberAlpha)[0]
				}
				fitHuberLeaves(d.Quantile, delta, scratch, y, weight, oobMask, k, tr, effLR, d.Params.MaxAbsLeafnodePred)
			} else {
				gammaPassClosedForm(fr, dist, initF, scratch, y, weight, oobMask, k, d.K, tr, effLR, d.Params.MaxAbsLeafnodePred)
			}

			addTreeContributions(fr, tr, scratch, oobMask, k, round, d.Params.NTrees, d.Params.Seed, d.Params.PredNoiseBandwidth)
			if dist.TruncateLogSpace() {
				truncateLogSpace(scratch, k, minLog, maxLog)
			}
		}

		ensemble.Trees = append(ensemble.Trees, trees)
		ensemble.Metrics = append(ensemble.Metrics, RoundMetric{Round: round, EffectiveLearnRate: effLR, TrainLoss: trainLoss(dist, multinomial, initF, scratch, y, d.K)})
		log.Printf("boost: round %d complete, effective_learn_rate=%.4g train_loss=%.6g", round, effLR, ensemble.Metrics[len(ensemble.Metrics)-1].TrainLoss)
	}

	return ensemble, nil
}

// growTree builds one tree breadth-first: score+route the current
// frontier, build its histograms, pick a split (or bottom out into a
// leaf) per node, depth by depth, finally routing every remaining row
// into its finalized leaf. Grounded on GBMDriver.growTrees' depth loop and
// leaf-finalization pass.
func (d *Driver) growTree(fr frame.Frame, featureCols []int, catCols map[int]bool, edgesTop, edgesDeep map[int][]float64, levels map[int]map[string]int, scratch *RoundScratch, y, weight []float64, k int, rng *rand.Rand, token *pool.CancelToken, featureAt func(row, featureIdx int) (float64, bool)) (*tree.DTree, error) {
	tr := tree.New(nil)
	nids := scratch.Nids[k]
	work := scratch.Work[k]

	finder := tree.SplitFinder{
		MinRows:              d.Params.MinRows,
		MinSplitImprovement:  d.Params.MinSplitImprovement,
		ColSampleRate:        d.Params.ColSampleRate,
		ColSampleRatePerTree: d.Params.ColSampleRatePerTree,
		Rand:                 rng,
	}

	frontier := []int{0}
	for depth := 0; depth < d.Params.MaxDepth && len(frontier) > 0; depth++ {
		if err := histobuild.ScoreAndRoute(tr, nids, len(nids), weight, y, featureAt); err != nil {
			return nil, err
		}
		edges := edgesDeep
		if depth == 0 {
			edges = edgesTop
		}
		if err := histobuild.BuildLayer(fr, tr, frontier, featureCols, catCols, edges, levels, d.Params.NBinsCats, nids, work, weight, d.Params.histobuildParams(), token); err != nil {
			return nil, err
		}
		if token.Cancelled() {
			return nil, token.Err()
		}

		var next []int
		for _, nodeIdx := range frontier {
			histos := tr.Nodes[nodeIdx].Histos
			split, ok := finder.FindBestSplit(histos)
			if !ok {
				if err := tr.MakeLeaf(nodeIdx, 0); err != nil {
					return nil, err
				}
				continue
			}
			left, right, naChild, err := tr.Decide(nodeIdx, split.FeatureIdx, split.Threshold, split.Categorical, split.EqualSet, split.NADir)
			if err != nil {
				return nil, err
			}
			next = append(next, left, right)
			if naChild >= 0 {
				next = append(next, naChild)
			}
		}
		frontier = next
	}

	for _, nodeIdx := range frontier {
		if err := tr.MakeLeaf(nodeIdx, 0); err != nil {
			return nil, err
		}
	}
	if err := histobuild.ScoreAndRoute(tr, nids, len(nids), weight, y, featureAt); err != nil {
		return nil, err
	}
	return tr, nil
}

// initialPrediction is initializeModelSpecifics: 0 for
// Multinomial/Laplace/Quantile/Huber (whose first-round gamma pass sets
// real per-leaf constants); otherwise the link of the weighted mean of y —
// the mean itself for Gaussian, its logit (mean clamped into (0,1)) for
// Bernoulli/ModifiedHuber, its log (mean floored at 1e-4) for
// Poisson/Gamma/Tweedie.
func (d *Driver) initialPrediction(dist distribution.Distribution, multinomial bool, y, weight []float64) float64 {
	if multinomial || dist.NeedsQuantileFit() || dist.NeedsHuberFit() {
		return 0
	}
	sumW, sumWY := 0.0, 0.0
	for i, v := range y {
		w := 1.0
		if weight != nil {
			w = weight[i]
		}
		sumW += w
		sumWY += w * v
	}
	if sumW == 0 {
		return 0
	}
	mean := sumWY / sumW
	if dist.TruncateLogSpace() {
		if mean <= 0 {
			mean = 1e-4
		}
		return dist.Link(mean)
	}
	return dist.Link(clampUnit(mean, dist.Family()))
}

func clampUnit(mean float64, f distribution.Family) float64 {
	if f != distribution.Bernoulli && f != distribution.ModifiedHuber {
		return mean
	}
	if mean <= 0 {
		return 1e-9
	}
	if mean >= 1 {
		return 1 - 1e-9
	}
	return mean
}

func hasMarginalWeight(y, weight []float64, oobMask []bool, k int, multinomial bool) bool {
	for i := range y {
		if oobMask != nil && oobMask[i] {
			continue
		}
		if weight != nil && weight[i] <= 0 {
			continue
		}
		if multinomial && int(y[i]) != k {
			continue
		}
		return true
	}
	return false
}

func materializeColumns(fr frame.Frame, cols []int) map[int][]float64 {
	out := make(map[int][]float64, len(cols))
	for _, col := range cols {
		flat := make([]float64, 0, fr.NumRows())
		for c := 0; c < fr.NumChunks(); c++ {
			chunk, _ := fr.GetChunk(col, c)
			flat = append(flat, chunk...)
		}
		out[col] = flat
	}
	return out
}

func (d *Driver) buildBinningPlan(cols map[int][]float64, featureCols []int, catCols map[int]bool, fr frame.Frame) (edgesTop, edgesDeep map[int][]float64, levels map[int]map[string]int) {
	edgesTop = make(map[int][]float64, len(featureCols))
	edgesDeep = make(map[int][]float64, len(featureCols))
	levels = make(map[int]map[string]int, len(featureCols))
	for _, col := range featureCols {
		if catCols[col] {
			levels[col] = d.Binning.CategoricalLevels(fr.Domain(col), d.Params.NBinsCats)
			continue
		}
		top, err := d.Binning.NumericEdges(cols[col], nil, d.Params.NBinsTopLevel)
		if err == nil {
			edgesTop[col] = top
		}
		deep, err := d.Binning.NumericEdges(cols[col], nil, d.Params.NBins)
		if err == nil {
			edgesDeep[col] = deep
		}
	}
	return edgesTop, edgesDeep, levels
}

func trainLoss(dist distribution.Distribution, multinomial bool, initF float64, scratch *RoundScratch, y []float64, K int) float64 {
	total := 0.0
	n := 0
	for row := range y {
		if multinomial {
			logits := make([]float64, K)
			for k := 0; k < K; k++ {
				logits[k] = initF + scratch.Tree[k][row]
			}
			probs := distribution.LogRescale(logits)
			yClass := int(y[row])
			if yClass >= 0 && yClass < K {
				p := probs[yClass]
				if p > 1e-12 {
					total += -math.Log(p)
				} else {
					total += 30
				}
			}
		} else {
			f := initF + scratch.Tree[0][row]
			d := y[row] - f
			total += d * d
		}
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
