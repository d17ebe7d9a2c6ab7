// Package boost implements the boosting control loop: residual pass, tree
// growth via histobuild/tree, gamma/leaf-fit pass, and the ensemble
// updater, sequenced the way GBM.java's GBMDriver.buildNextKTrees
// sequences them.
package boost

import (
	"fmt"

	"github.com/ebooster/gbmcore/distribution"
	"github.com/ebooster/gbmcore/histobuild"
)

// GBMParams is the plain, validated configuration struct the driver reads
// from — the same shape EBoosterParams/TreeBuildParams give their training
// knobs in the teacher pack, not a config-file framework.
type GBMParams struct {
	Distribution  distribution.Family
	TweediePower  float64
	HuberAlpha    float64
	QuantileAlpha float64

	NTrees             int
	MaxDepth           int
	LearnRate          float64
	LearnRateAnnealing float64

	NBins         int
	NBinsTopLevel int
	NBinsCats     int

	MinRows              float64
	MinSplitImprovement  float64
	SampleRate           float64
	SampleRatePerClass   []float64
	ColSampleRate        float64
	ColSampleRatePerTree float64

	MaxAbsLeafnodePred float64
	PredNoiseBandwidth float64

	Seed int64

	ColBlockSz  int
	SharedHisto bool
	MinThreads  int
	Unordered   bool

	OffsetCol *int
}

// Validate checks every field used as a divisor, bound, or array index,
// mirroring how TreeBuildParams/EBoosterParams fields are trusted once
// constructed but the driver's own entry point still rejects an
// unworkable configuration outright rather than producing NaNs deep in a
// round.
func (p GBMParams) Validate() error {
	if p.NTrees <= 0 {
		return fmt.Errorf("boost: NTrees must be positive, got %d", p.NTrees)
	}
	if p.MaxDepth <= 0 {
		return fmt.Errorf("boost: MaxDepth must be positive, got %d", p.MaxDepth)
	}
	if p.LearnRate <= 0 || p.LearnRate > 1 {
		return fmt.Errorf("boost: LearnRate must be in (0,1], got %v", p.LearnRate)
	}
	if p.LearnRateAnnealing <= 0 || p.LearnRateAnnealing > 1 {
		return fmt.Errorf("boost: LearnRateAnnealing must be in (0,1], got %v", p.LearnRateAnnealing)
	}
	if p.NBins < 2 {
		return fmt.Errorf("boost: NBins must be >= 2, got %d", p.NBins)
	}
	if p.NBinsTopLevel < p.NBins {
		return fmt.Errorf("boost: NBinsTopLevel must be >= NBins, got %d < %d", p.NBinsTopLevel, p.NBins)
	}
	if p.MinRows <= 0 {
		return fmt.Errorf("boost: MinRows must be positive, got %v", p.MinRows)
	}
	if p.SampleRate <= 0 || p.SampleRate > 1 {
		return fmt.Errorf("boost: SampleRate must be in (0,1], got %v", p.SampleRate)
	}
	if p.ColSampleRate <= 0 || p.ColSampleRate > 1 {
		return fmt.Errorf("boost: ColSampleRate must be in (0,1], got %v", p.ColSampleRate)
	}
	if p.MaxAbsLeafnodePred <= 0 {
		return fmt.Errorf("boost: MaxAbsLeafnodePred must be positive, got %v", p.MaxAbsLeafnodePred)
	}
	if p.Distribution == distribution.Bernoulli && p.OffsetCol != nil {
		return fmt.Errorf("boost: OffsetCol is not supported with Bernoulli distribution")
	}
	return nil
}

func (p GBMParams) histobuildParams() histobuild.Params {
	return histobuild.Params{
		ColBlockSz:  p.ColBlockSz,
		SharedHisto: p.SharedHisto,
		MinThreads:  p.MinThreads,
		Unordered:   p.Unordered,
	}
}

// EffectiveLearnRate returns learn_rate * learn_rate_annealing^(round-1),
// matching GBMDriver's effective_learning_rate().
func (p GBMParams) EffectiveLearnRate(round int) float64 {
	rate := p.LearnRate
	for i := 1; i < round; i++ {
		rate *= p.LearnRateAnnealing
	}
	return rate
}
