// Package sampler marks out-of-bag rows per tree, seeded deterministically
// so a training run is reproducible given the same seed — grounded on the
// Sample task H2O's GBMDriver.growTrees dispatches before each round's
// histogram build.
package sampler

import "math/rand"

// OOBMask returns a boolean slice, one per row, true where the row is
// excluded from tree k's training for this round. Sampling is row-wise
// Bernoulli(rate) with a class-specific rate when perClassRate is given
// (len(perClassRate) == 0 falls back to rate for every row).
//
// The seed mixes the global seed, the round number, and the class index so
// different trees in the same round (and the same tree across rounds) draw
// independent row subsets while remaining reproducible.
func OOBMask(numRows int, rate float64, classOf []int32, perClassRate []float64, seed int64, round, k int) []bool {
	mask := make([]bool, numRows)
	if rate >= 1 && len(perClassRate) == 0 {
		return mask
	}
	rng := rand.New(rand.NewSource(mix(seed, round, k)))
	for i := 0; i < numRows; i++ {
		r := rate
		if len(perClassRate) > 0 && classOf != nil {
			c := classOf[i]
			if int(c) >= 0 && int(c) < len(perClassRate) {
				r = perClassRate[c]
			}
		}
		if rng.Float64() >= r {
			mask[i] = true
		}
	}
	return mask
}

// mix folds the boosting round and class index into the base seed the way
// AddTreeContributions derives its per-(round,k,nid) noise seed: large odd
// multipliers keep nearby (round,k) pairs from landing in correlated RNG
// streams.
func mix(seed int64, round, k int) int64 {
	return (seed+0xDECAF)*(0xFAAAAAAB+int64(k)*7919+int64(round)) + int64(round)*31 + int64(k)
}
