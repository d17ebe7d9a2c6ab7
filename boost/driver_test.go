package boost

import (
	"math"
	"testing"

	"github.com/ebooster/gbmcore/distribution"
	"github.com/ebooster/gbmcore/frame"
)

func baseParams() GBMParams {
	return GBMParams{
		Distribution:        distribution.Gaussian,
		NTrees:              6,
		MaxDepth:            3,
		LearnRate:           0.5,
		LearnRateAnnealing:  1.0,
		NBins:               8,
		NBinsTopLevel:       16,
		NBinsCats:           8,
		MinRows:             1,
		SampleRate:          1,
		ColSampleRate:       1,
		MaxAbsLeafnodePred:  1e4,
		Seed:                7,
		ColBlockSz:          2,
		SharedHisto:         true,
		MinThreads:          1,
	}
}

func toyFrame(t *testing.T, n int) (*frame.InMemoryFrame, []float64) {
	t.Helper()
	x0 := make([]float64, n)
	x1 := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0[i] = float64(i % 10)
		x1[i] = float64((i * 3) % 7)
		y[i] = 2*x0[i] - x1[i] + 1
	}
	fr, err := frame.NewInMemoryFrame([][]float64{x0, x1}, nil, nil, 16)
	if err != nil {
		t.Fatalf("NewInMemoryFrame: %v", err)
	}
	return fr, y
}

func TestTrainGaussianReducesLoss(t *testing.T) {
	fr, y := toyFrame(t, 200)
	params := baseParams()
	drv, err := NewDriver(params, 1)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ensemble, err := drv.Train(fr, y, nil, []int{0, 1}, nil, nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(ensemble.Metrics) == 0 {
		t.Fatalf("expected at least one round of metrics")
	}
	first := ensemble.Metrics[0].TrainLoss
	last := ensemble.Metrics[len(ensemble.Metrics)-1].TrainLoss
	if last >= first {
		t.Fatalf("train loss did not decrease: first=%v last=%v", first, last)
	}
}

func TestTrainBernoulliSeparatesClasses(t *testing.T) {
	n := 200
	x0 := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0[i] = float64(i % 20)
		if x0[i] >= 10 {
			y[i] = 1
		}
	}
	fr, err := frame.NewInMemoryFrame([][]float64{x0}, nil, nil, 20)
	if err != nil {
		t.Fatalf("NewInMemoryFrame: %v", err)
	}
	params := baseParams()
	params.Distribution = distribution.Bernoulli
	params.NTrees = 10
	drv, err := NewDriver(params, 1)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ensemble, err := drv.Train(fr, y, nil, []int{0}, nil, nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	lowF, err := ensemble.Predict(0, func(idx int) (float64, bool) { return 1, false })
	if err != nil {
		t.Fatalf("Predict low: %v", err)
	}
	highF, err := ensemble.Predict(0, func(idx int) (float64, bool) { return 18, false })
	if err != nil {
		t.Fatalf("Predict high: %v", err)
	}
	if highF <= lowF {
		t.Fatalf("expected higher link-space prediction for class-1 region: low=%v high=%v", lowF, highF)
	}
}

func TestTrainMultinomialProducesKTreesPerRound(t *testing.T) {
	n := 150
	x0 := make([]float64, n)
	y := make([]float64, n)
	classOf := make([]int32, n)
	for i := 0; i < n; i++ {
		x0[i] = float64(i % 30)
		class := i % 3
		y[i] = float64(class)
		classOf[i] = int32(class)
	}
	fr, err := frame.NewInMemoryFrame([][]float64{x0}, nil, nil, 15)
	if err != nil {
		t.Fatalf("NewInMemoryFrame: %v", err)
	}
	params := baseParams()
	params.Distribution = distribution.Multinomial
	params.NTrees = 4
	drv, err := NewDriver(params, 3)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ensemble, err := drv.Train(fr, y, nil, []int{0}, nil, classOf)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(ensemble.Trees) != params.NTrees {
		t.Fatalf("rounds built = %d, want %d", len(ensemble.Trees), params.NTrees)
	}
	for r, round := range ensemble.Trees {
		if len(round) != 3 {
			t.Fatalf("round %d has %d trees, want 3", r, len(round))
		}
	}
}

func TestTrainConvergesEarlyWithAnnealing(t *testing.T) {
	fr, y := toyFrame(t, 50)
	params := baseParams()
	params.NTrees = 100
	params.LearnRate = 0.5
	params.LearnRateAnnealing = 0.1
	drv, err := NewDriver(params, 1)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ensemble, err := drv.Train(fr, y, nil, []int{0, 1}, nil, nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(ensemble.Trees) >= params.NTrees {
		t.Fatalf("expected early convergence stop, built %d of %d rounds", len(ensemble.Trees), params.NTrees)
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	p := baseParams()
	p.LearnRate = 0
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for zero LearnRate")
	}

	p2 := baseParams()
	p2.Distribution = distribution.Bernoulli
	offset := 0
	p2.OffsetCol = &offset
	if err := p2.Validate(); err == nil {
		t.Fatalf("expected error for Bernoulli with OffsetCol set")
	}
}

func TestTrainHuberFitsLeaves(t *testing.T) {
	fr, y := toyFrame(t, 120)
	// inject a handful of outliers to exercise Huber's clipping
	y[0] += 1000
	y[1] -= 1000

	params := baseParams()
	params.Distribution = distribution.Huber
	params.HuberAlpha = 0.9
	drv, err := NewDriver(params, 1)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ensemble, err := drv.Train(fr, y, nil, []int{0, 1}, nil, nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	pred, err := ensemble.Predict(0, func(idx int) (float64, bool) { return 5, false })
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		t.Fatalf("prediction is not finite: %v", pred)
	}
}
