package boost

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ebooster/gbmcore/frame"
)

// forEachChunk fans fn out one goroutine per frame chunk, bounded by
// GOMAXPROCS via errgroup.SetLimit. This is the same chunk-boundary
// granularity histobuild's histogram passes dispatch on, applied here to the
// residual, gamma, and ensemble-update passes: flat per-row work with no
// per-column dimension, so no tree-shaped fork/join is needed.
func forEachChunk(fr frame.Frame, fn func(rowStart, rowEnd int)) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < fr.NumChunks(); c++ {
		start := fr.ChunkStart(c)
		end := start + fr.ChunkLen(c)
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	g.Wait()
}
