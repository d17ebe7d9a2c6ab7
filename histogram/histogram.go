// Package histogram implements the per-(node, feature) bin accumulator
// that the parallel histogram builder fills and the split finder reads.
// Bin storage is a gorgonia tensor.Dense, mirroring the way the teacher
// pack stores per-row accumulators (find_the_best_split.go's rawHessian)
// rather than plain nested slices.
package histogram

import (
	"fmt"
	"math"
	"sync"

	"gorgonia.org/tensor"
)

// Stat indexes the six accumulators kept per bin.
type Stat int

const (
	WSum Stat = iota
	WYSum
	WYYSum
	Count
	Min
	Max
	numStats
)

// DHistogram accumulates weighted response statistics into Nbins buckets
// over one feature, for one tree node. Categorical features use one bucket
// per level (via Levels); numeric features use Edges as bin boundaries.
type DHistogram struct {
	NodeID      int
	FeatureIdx  int
	Categorical bool
	Edges       []float64      // len Nbins+1, numeric features only
	Levels      map[string]int // level -> bin, categorical features only
	Nbins       int
	bins        *tensor.Dense // shape (Nbins, numStats)
	mu          sync.Mutex    // guards bins and the NA accumulator in shared-histogram concurrency mode

	// NA accumulator: rows with a missing feature value never select a
	// bin (BinOf only ranges over non-missing values), so they are
	// tallied here instead, letting the split finder score a candidate
	// that isolates them into their own arm (NAVsRest) instead of always
	// merging them into whichever side of a threshold is larger.
	naWSum, naWYSum, naWYYSum, naCount float64
}

// New allocates a zeroed histogram with nbins buckets for a numeric
// feature with the given bin edges (len(edges) == nbins+1).
func New(nodeID, featureIdx int, edges []float64) *DHistogram {
	nbins := len(edges) - 1
	if nbins < 1 {
		nbins = 1
	}
	h := &DHistogram{
		NodeID:     nodeID,
		FeatureIdx: featureIdx,
		Edges:      edges,
		Nbins:      nbins,
	}
	h.alloc()
	return h
}

// NewCategorical allocates a zeroed histogram with one bucket per level.
func NewCategorical(nodeID, featureIdx int, levels map[string]int, nbins int) *DHistogram {
	h := &DHistogram{
		NodeID:      nodeID,
		FeatureIdx:  featureIdx,
		Categorical: true,
		Levels:      levels,
		Nbins:       nbins,
	}
	h.alloc()
	return h
}

func (h *DHistogram) alloc() {
	h.bins = tensor.New(tensor.WithShape(h.Nbins, int(numStats)), tensor.Of(tensor.Float64))
	for b := 0; b < h.Nbins; b++ {
		mustSet(h.bins, math.Inf(1), b, int(Min))
		mustSet(h.bins, math.Inf(-1), b, int(Max))
	}
}

func mustSet(t *tensor.Dense, v float64, idx ...int) {
	if err := t.SetAt(v, idx...); err != nil {
		panic(fmt.Errorf("histogram: SetAt%v: %w", idx, err))
	}
}

func mustAt(t *tensor.Dense, idx ...int) float64 {
	v, err := t.At(idx...)
	if err != nil {
		panic(fmt.Errorf("histogram: At%v: %w", idx, err))
	}
	return v.(float64)
}

// BinOf returns the bucket index a numeric value falls into.
func (h *DHistogram) BinOf(x float64) int {
	edges := h.Edges
	lo, hi := 0, len(edges)-1
	for lo < hi-1 {
		mid := (lo + hi) / 2
		if x < edges[mid] {
			hi = mid
		} else {
			lo = mid
		}
	}
	if lo >= h.Nbins {
		lo = h.Nbins - 1
	}
	return lo
}

// Update adds one weighted row into the bucket its x value (or level)
// selects. For categorical histograms pass the level's precomputed bin via
// UpdateBin directly; Update's x argument is a numeric feature value.
func (h *DHistogram) Update(x, w, y float64) {
	h.UpdateBin(h.BinOf(x), w, y)
}

// UpdateBin adds one weighted row directly into bucket b, skipping bin
// lookup. Used by Update, and by the histogram builder for both numeric and
// categorical columns on a histogram owned by a single worker (deep-clone
// mode); shared-mode updates go through LocalBuffer.
func (h *DHistogram) UpdateBin(b int, w, y float64) {
	h.mu.Lock()
	h.updateBinLocked(b, w, y)
	h.mu.Unlock()
}

func (h *DHistogram) updateBinLocked(b int, w, y float64) {
	if w == 0 {
		return
	}
	cur := mustAt(h.bins, b, int(WSum))
	mustSet(h.bins, cur+w, b, int(WSum))
	cur = mustAt(h.bins, b, int(WYSum))
	mustSet(h.bins, cur+w*y, b, int(WYSum))
	cur = mustAt(h.bins, b, int(WYYSum))
	mustSet(h.bins, cur+w*y*y, b, int(WYYSum))
	cur = mustAt(h.bins, b, int(Count))
	mustSet(h.bins, cur+1, b, int(Count))
	if mn := mustAt(h.bins, b, int(Min)); y < mn {
		mustSet(h.bins, y, b, int(Min))
	}
	if mx := mustAt(h.bins, b, int(Max)); y > mx {
		mustSet(h.bins, y, b, int(Max))
	}
}

// UpdateNA adds one weighted row with a missing feature value into the NA
// accumulator, bypassing bin lookup entirely.
func (h *DHistogram) UpdateNA(w, y float64) {
	h.mu.Lock()
	h.updateNALocked(w, y)
	h.mu.Unlock()
}

func (h *DHistogram) updateNALocked(w, y float64) {
	if w == 0 {
		return
	}
	h.naWSum += w
	h.naWYSum += w * y
	h.naWYYSum += w * y * y
	h.naCount++
}

// NAStats returns the NA accumulator's weighted sum, weighted response sum
// and row count.
func (h *DHistogram) NAStats() (wSum, wySum, count float64) {
	return h.naWSum, h.naWYSum, h.naCount
}

// Get returns the six accumulators for bucket b.
func (h *DHistogram) Get(b int) (wSum, wySum, wyySum, count, min, max float64) {
	return mustAt(h.bins, b, int(WSum)), mustAt(h.bins, b, int(WYSum)), mustAt(h.bins, b, int(WYYSum)),
		mustAt(h.bins, b, int(Count)), mustAt(h.bins, b, int(Min)), mustAt(h.bins, b, int(Max))
}

// Add merges other into h bucket-by-bucket; used to reduce deep-cloned
// per-worker histograms back into the shared one.
func (h *DHistogram) Add(other *DHistogram) error {
	if other.Nbins != h.Nbins {
		return fmt.Errorf("histogram: Add shape mismatch %d != %d", h.Nbins, other.Nbins)
	}
	for b := 0; b < h.Nbins; b++ {
		ws, wys, wyys, c, mn, mx := other.Get(b)
		if c == 0 {
			continue
		}
		curWs := mustAt(h.bins, b, int(WSum))
		mustSet(h.bins, curWs+ws, b, int(WSum))
		curWys := mustAt(h.bins, b, int(WYSum))
		mustSet(h.bins, curWys+wys, b, int(WYSum))
		curWyys := mustAt(h.bins, b, int(WYYSum))
		mustSet(h.bins, curWyys+wyys, b, int(WYYSum))
		curC := mustAt(h.bins, b, int(Count))
		mustSet(h.bins, curC+c, b, int(Count))
		if curMn := mustAt(h.bins, b, int(Min)); mn < curMn {
			mustSet(h.bins, mn, b, int(Min))
		}
		if curMx := mustAt(h.bins, b, int(Max)); mx > curMx {
			mustSet(h.bins, mx, b, int(Max))
		}
	}
	h.naWSum += other.naWSum
	h.naWYSum += other.naWYSum
	h.naWYYSum += other.naWYYSum
	h.naCount += other.naCount
	return nil
}

// Clone returns a deep, independently-mutable copy — used for the
// deep-cloned-histogram concurrency mode where each row-worker accumulates
// into its own copy before a pairwise reduce.
func (h *DHistogram) Clone() *DHistogram {
	c := &DHistogram{
		NodeID:      h.NodeID,
		FeatureIdx:  h.FeatureIdx,
		Categorical: h.Categorical,
		Edges:       h.Edges,
		Levels:      h.Levels,
		Nbins:       h.Nbins,
	}
	c.alloc()
	c.Add(h)
	return c
}

// TotalWeight sums WSum across all buckets, used by tests to check the
// weight-conservation invariant against a node's row count.
func (h *DHistogram) TotalWeight() float64 {
	total := 0.0
	for b := 0; b < h.Nbins; b++ {
		total += mustAt(h.bins, b, int(WSum))
	}
	return total
}

// LocalBuffer batches a worker's bin updates before a single flush into the
// shared histogram set, reducing lock/atomic contention on hot buckets —
// the Go equivalent of updateSharedHistosAndReset's batched update array.
type LocalBuffer struct {
	target *DHistogram
	bin    []int
	w      []float64
	y      []float64
	naW    []float64
	naY    []float64
}

// NewLocalBuffer creates a buffer that flushes into target.
func NewLocalBuffer(target *DHistogram, capacity int) *LocalBuffer {
	return &LocalBuffer{
		target: target,
		bin:    make([]int, 0, capacity),
		w:      make([]float64, 0, capacity),
		y:      make([]float64, 0, capacity),
	}
}

// Add queues one row. Call Flush once the buffer is full or the worker is
// done with its chunk.
func (b *LocalBuffer) Add(bin int, w, y float64) {
	b.bin = append(b.bin, bin)
	b.w = append(b.w, w)
	b.y = append(b.y, y)
}

// AddNA queues one row with a missing feature value, to be flushed into
// the target's NA accumulator instead of a bin.
func (b *LocalBuffer) AddNA(w, y float64) {
	b.naW = append(b.naW, w)
	b.naY = append(b.naY, y)
}

// Flush applies all queued rows into the target histogram under a single
// lock acquisition and resets the buffer for reuse. Safe to call
// concurrently from multiple workers sharing the same target.
func (b *LocalBuffer) Flush() {
	b.target.mu.Lock()
	for i := range b.bin {
		b.target.updateBinLocked(b.bin[i], b.w[i], b.y[i])
	}
	for i := range b.naW {
		b.target.updateNALocked(b.naW[i], b.naY[i])
	}
	b.target.mu.Unlock()
	b.bin = b.bin[:0]
	b.w = b.w[:0]
	b.y = b.y[:0]
	b.naW = b.naW[:0]
	b.naY = b.naY[:0]
}
