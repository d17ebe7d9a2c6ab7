// Package histobuild is the parallel histogram builder: it walks each
// in-bag row to its current tree node (score_decide) and accumulates that
// row's weighted response into the node/feature histogram the split
// finder will read next. It is grounded directly on
// hex.tree.ScoreBuildHistogram2 (the two-pass score+accumulate design) and
// water.LocalMR (the binary-tree fork/join fan-out pool.ForkJoin
// implements).
package histobuild

import (
	"fmt"
	"math"

	"github.com/ebooster/gbmcore/frame"
	"github.com/ebooster/gbmcore/histogram"
	"github.com/ebooster/gbmcore/pool"
	"github.com/ebooster/gbmcore/tree"
)

// NIDS[k] sentinels. Non-negative values are live node indices in the
// round's DTree.
const (
	Fresh          int32 = -1 // row not yet scored against this round's tree
	OOB            int32 = -2 // row excluded from training by the sampler
	UndecidedChild int32 = -3 // reserved: target layer not yet built (unused by the sequential driver, which always builds layers in order)
	DecidedRow     int32 = -4 // reserved: row terminated at a leaf in an earlier layer (never assigned; routed rows keep their Leaf's index, zero-weight rows become Excluded)
	Excluded       int32 = -5 // zero weight or NaN response: permanently skipped this round
)

// Params controls the builder's concurrency shape.
type Params struct {
	ColBlockSz  int
	SharedHisto bool
	MinThreads  int
	Unordered   bool
}

// PlanConcurrency picks (ncolBlocks, nrowThreads, colBlockSz) for ncols
// candidate features and nchunks row chunks, following
// ScoreBuildHistogram2's colBlockSz rounding rule (nudge the block size up
// while it leaves an awkward small remainder) and its
// ncolBlocks*nrowThreads >= min_threads backfill loop.
func PlanConcurrency(ncols, nchunks int, p Params) (ncolBlocks, nrowThreads, colBlockSz int) {
	colBlockSz = p.ColBlockSz
	if colBlockSz <= 0 {
		colBlockSz = ncols
	}
	if colBlockSz > ncols {
		colBlockSz = ncols
	}
	for colBlockSz < ncols && ncols%colBlockSz != 0 && ncols%colBlockSz < (colBlockSz>>1) {
		colBlockSz++
	}
	if colBlockSz < 1 {
		colBlockSz = 1
	}
	ncolBlocks = (ncols + colBlockSz - 1) / colBlockSz

	nrowThreads = 1
	minThreads := p.MinThreads
	if minThreads < 1 {
		minThreads = 1
	}
	for ncolBlocks*nrowThreads < minThreads && nrowThreads < nchunks {
		nrowThreads++
	}
	return ncolBlocks, nrowThreads, colBlockSz
}

// rowChunkGrain turns nrowThreads into the leaf width ForkJoinGrain should
// stop splitting at, so a BuildLayer call spawns roughly nrowThreads leaf
// goroutines per column block rather than one per row chunk.
func rowChunkGrain(nchunks, nrowThreads int) int {
	if nrowThreads < 1 {
		nrowThreads = 1
	}
	grain := (nchunks + nrowThreads - 1) / nrowThreads
	if grain < 1 {
		grain = 1
	}
	return grain
}

// ScoreAndRoute is Pass 1: for every row with a non-sentinel nid, walk
// through however many newly-Decided nodes lie on its path until it lands
// on an Undecided node (the new frontier) or a Leaf. OOB and already
// finalized rows are left untouched. A row whose weight is zero or whose
// response is NaN is marked Excluded instead of being routed, so it never
// contributes to any node's histogram or leaf fit for the rest of the
// round; weight/y may be nil when every row is active.
func ScoreAndRoute(tr *tree.DTree, nids []int32, numRows int, weight, y []float64, feature func(row, featureIdx int) (value float64, isNA bool)) error {
	for row := 0; row < numRows; row++ {
		nid := nids[row]
		if nid == Fresh {
			nid = 0
		}
		if nid < 0 {
			continue // OOB, UndecidedChild, DecidedRow, or Excluded
		}
		if (weight != nil && weight[row] == 0) || (y != nil && math.IsNaN(y[row])) {
			nids[row] = Excluded
			continue
		}
		for {
			if int(nid) >= len(tr.Nodes) {
				return fmt.Errorf("histobuild: row %d routed to out-of-range node %d", row, nid)
			}
			n := tr.Nodes[nid]
			if n.Kind != tree.Decided {
				break
			}
			x, isNA := feature(row, n.FeatureIdx)
			next, err := tr.Route(int(nid), x, isNA)
			if err != nil {
				return err
			}
			nid = int32(next)
		}
		nids[row] = nid
	}
	return nil
}

// blockFun is one column-block's MrFun: Map accumulates one row chunk's
// contribution into nodeHistos; Reduce merges a sibling branch's clone
// back in (a no-op in shared mode, where every Map already wrote straight
// into the shared histograms under lock). ordered selects which of the
// two row-dispatch strategies ScoreBuildHistogram2 offers Map uses: the
// unordered strategy looks up a row's histogram by nid on every row: the
// ordered strategy counting-sorts one chunk's rows by nid first so each
// node's histogram is looked up once per (node, feature) pair instead of
// once per row.
type blockFun struct {
	fr         frame.Frame
	featCols   []int
	nids       []int32
	work       []float64
	weight     []float64
	catCols    map[int]bool
	nodeHistos map[int32][]*histogram.DHistogram // nodeIdx -> one histogram per featCols entry
	cloned     bool
	ordered    bool
}

func (b *blockFun) Map(chunkIdx int) {
	if b.ordered {
		b.mapOrdered(chunkIdx)
		return
	}
	b.mapUnordered(chunkIdx)
}

// weightOf returns the row's weight, defaulting to 1 when b.weight is nil.
func (b *blockFun) weightOf(row int) float64 {
	if b.weight == nil {
		return 1.0
	}
	return b.weight[row]
}

// updateOne routes one row's (bin-or-NA, weight, response) into h, either
// straight into h under its own lock (cloned mode, where h is already
// private to this goroutine) or through buf (shared mode).
func updateOne(h *histogram.DHistogram, buf *histogram.LocalBuffer, cloned bool, isCat bool, x, w, y float64) {
	if math.IsNaN(x) {
		if cloned {
			h.UpdateNA(w, y)
		} else {
			buf.AddNA(w, y)
		}
		return
	}
	bin := 0
	if isCat {
		bin = int(x)
	} else {
		bin = h.BinOf(x)
	}
	if cloned {
		h.UpdateBin(bin, w, y)
	} else {
		buf.Add(bin, w, y)
	}
}

// mapUnordered is ScoreBuildHistogram2's row-major dispatch, used only when
// Params.Unordered is set (the ordered mapOrdered is the default): for
// each feature, walk the chunk's rows in storage order, looking up each
// row's destination histogram by its current nid.
func (b *blockFun) mapUnordered(chunkIdx int) {
	start := b.fr.ChunkStart(chunkIdx)
	for fi, col := range b.featCols {
		vals, err := b.fr.GetChunk(col, chunkIdx)
		if err != nil {
			continue
		}
		isCat := b.catCols[col]

		// Shared mode batches this chunk's updates per (node, feature)
		// into a LocalBuffer before a single locked flush, rather than
		// locking the shared histogram once per row.
		var buffers map[int32]*histogram.LocalBuffer
		if !b.cloned {
			buffers = make(map[int32]*histogram.LocalBuffer)
		}

		for i, x := range vals {
			row := start + i
			nid := b.nids[row]
			if nid < 0 {
				continue
			}
			w := b.weightOf(row)
			if w == 0 {
				continue
			}
			histos, ok := b.nodeHistos[nid]
			if !ok {
				continue
			}
			h := histos[fi]
			y := b.work[row]

			var buf *histogram.LocalBuffer
			if !b.cloned {
				buf = buffers[nid]
				if buf == nil {
					buf = histogram.NewLocalBuffer(h, len(vals))
					buffers[nid] = buf
				}
			}
			updateOne(h, buf, b.cloned, isCat, x, w, y)
		}
		for _, buf := range buffers {
			buf.Flush()
		}
	}
}

// mapOrdered is ScoreBuildHistogram2's counting-sort strategy: bucket the
// chunk's row offsets by nid once (an rss/nh-style permutation, computed
// here as groups rather than an in-place sort since Frame chunks are read
// only), then for every feature visit each node's rows contiguously —
// one nodeHistos lookup per (node, feature) pair instead of one per row.
func (b *blockFun) mapOrdered(chunkIdx int) {
	start := b.fr.ChunkStart(chunkIdx)
	n := b.fr.ChunkLen(chunkIdx)

	groups := make(map[int32][]int)
	for i := 0; i < n; i++ {
		row := start + i
		nid := b.nids[row]
		if nid < 0 || b.weightOf(row) == 0 {
			continue
		}
		if _, ok := b.nodeHistos[nid]; !ok {
			continue
		}
		groups[nid] = append(groups[nid], row)
	}
	if len(groups) == 0 {
		return
	}

	for fi, col := range b.featCols {
		vals, err := b.fr.GetChunk(col, chunkIdx)
		if err != nil {
			continue
		}
		isCat := b.catCols[col]

		for nid, rows := range groups {
			h := b.nodeHistos[nid][fi]
			var buf *histogram.LocalBuffer
			if !b.cloned {
				buf = histogram.NewLocalBuffer(h, len(rows))
			}
			for _, row := range rows {
				x := vals[row-start]
				y := b.work[row]
				updateOne(h, buf, b.cloned, isCat, x, b.weightOf(row), y)
			}
			if buf != nil {
				buf.Flush()
			}
		}
	}
}

func (b *blockFun) Reduce(other pool.MrFun) {
	if !b.cloned {
		return
	}
	ob := other.(*blockFun)
	for nid, histos := range b.nodeHistos {
		otherHistos := ob.nodeHistos[nid]
		for i, h := range histos {
			h.Add(otherHistos[i])
		}
	}
}

func (b *blockFun) MakeCopy() pool.MrFun {
	if !b.cloned {
		return b
	}
	clone := &blockFun{
		fr: b.fr, featCols: b.featCols, nids: b.nids, work: b.work, weight: b.weight,
		catCols: b.catCols, cloned: true, ordered: b.ordered,
		nodeHistos: make(map[int32][]*histogram.DHistogram, len(b.nodeHistos)),
	}
	for nid, histos := range b.nodeHistos {
		cloned := make([]*histogram.DHistogram, len(histos))
		for i, h := range histos {
			cloned[i] = h.Clone()
		}
		clone.nodeHistos[nid] = cloned
	}
	return clone
}

// BuildLayer is Pass 2: for every node index in frontier, allocates fresh
// histograms (one per feature in featCols, using edges/levels) and
// accumulates every in-bag row currently routed to that node. Column
// blocks are each dispatched as one pool.ForkJoinGrain binary-tree task
// over the frame's row chunks, with the leaf width picked from
// PlanConcurrency's nrowThreads so MinThreads actually bounds how many
// leaf goroutines a block spawns. SharedHisto selects batched-locked
// updates into one shared histogram set, versus per-branch deep clones
// reduced pairwise; Unordered selects blockFun's row-major dispatch over
// its counting-sort one, exactly as ScoreBuildHistogram2's two pairs of
// concurrency/dispatch modes do.
func BuildLayer(
	fr frame.Frame,
	tr *tree.DTree,
	frontier []int,
	featCols []int,
	catCols map[int]bool,
	edges map[int][]float64,
	levels map[int]map[string]int,
	nbinsCats int,
	nids []int32,
	work []float64,
	weight []float64,
	params Params,
	token *pool.CancelToken,
) error {
	for _, nodeIdx := range frontier {
		if nodeIdx < 0 || nodeIdx >= len(tr.Nodes) {
			return fmt.Errorf("histobuild: frontier node %d out of range", nodeIdx)
		}
		histos := make([]*histogram.DHistogram, len(featCols))
		for fi, col := range featCols {
			if catCols[col] {
				histos[fi] = histogram.NewCategorical(nodeIdx, col, levels[col], nbinsCats)
			} else {
				histos[fi] = histogram.New(nodeIdx, col, edges[col])
			}
		}
		tr.Nodes[nodeIdx].Histos = histos
	}

	ncols := len(featCols)
	if ncols == 0 || len(frontier) == 0 {
		return nil
	}
	_, nrowThreads, colBlockSz := PlanConcurrency(ncols, fr.NumChunks(), params)
	grain := rowChunkGrain(fr.NumChunks(), nrowThreads)

	for blockStart := 0; blockStart < ncols; blockStart += colBlockSz {
		blockEnd := blockStart + colBlockSz
		if blockEnd > ncols {
			blockEnd = ncols
		}
		blockCols := featCols[blockStart:blockEnd]

		nodeHistos := make(map[int32][]*histogram.DHistogram, len(frontier))
		for _, nodeIdx := range frontier {
			full := tr.Nodes[nodeIdx].Histos
			sliced := make([]*histogram.DHistogram, len(blockCols))
			copy(sliced, full[blockStart:blockEnd])
			nodeHistos[int32(nodeIdx)] = sliced
		}

		fn := &blockFun{
			fr: fr, featCols: blockCols, nids: nids, work: work, weight: weight,
			catCols: catCols, nodeHistos: nodeHistos, cloned: !params.SharedHisto, ordered: !params.Unordered,
		}
		pool.ForkJoinGrain(0, fr.NumChunks(), grain, fn, token)

		if !params.SharedHisto {
			for _, nodeIdx := range frontier {
				full := tr.Nodes[nodeIdx].Histos
				merged := fn.nodeHistos[int32(nodeIdx)]
				for i := range merged {
					full[blockStart+i] = merged[i]
				}
			}
		}
	}
	return nil
}
