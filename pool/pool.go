// Package pool implements the two dispatch shapes the parallel histogram
// builder needs: a flat worker pool pulling chunk indices off a shared
// atomic counter, and a binary-tree fork/join dispatcher for column-block
// row-worker fan-out. The fork/join shape is a direct Go translation of
// water.LocalMR's compute2/onCompletion recursion — lo/hi split at mid,
// two child tasks spawned, map(mid) run inline, children reduced pairwise
// on completion — with a shared CancelToken standing in for LocalMR's
// root back-pointer cancellation flag.
package pool

import (
	"sync"
	"sync/atomic"
)

// CancelToken is shared by every task spawned from one BuildLayer call (or
// equivalent). The first error stored wins; later tasks see Cancelled()
// true and skip their own work before it's scheduled.
type CancelToken struct {
	cancelled atomic.Bool
	once      sync.Once
	err       error
}

// Cancel records err (only the first call's err is kept) and flips the
// cancelled flag every subsequent task checks before starting work.
func (c *CancelToken) Cancel(err error) {
	c.once.Do(func() {
		c.err = err
		c.cancelled.Store(true)
	})
}

// Cancelled reports whether Cancel has been called.
func (c *CancelToken) Cancelled() bool { return c.cancelled.Load() }

// Err returns the error passed to the first Cancel call, or nil.
func (c *CancelToken) Err() error { return c.err }

// ChunkCounter hands out chunk indices [0, n) to however many workers call
// Next, the Go equivalent of the AtomicLong cidx counter
// ScoreBuildHistogram2's setupLocal dispatch loop increments.
type ChunkCounter struct {
	next int64
	n    int64
}

// NewChunkCounter creates a counter that yields indices 0..n-1.
func NewChunkCounter(n int) *ChunkCounter {
	return &ChunkCounter{n: int64(n)}
}

// Next returns the next chunk index and true, or (0, false) once exhausted.
func (c *ChunkCounter) Next() (int, bool) {
	i := atomic.AddInt64(&c.next, 1) - 1
	if i >= c.n {
		return 0, false
	}
	return int(i), true
}

// RunWorkers starts nworkers goroutines, each pulling chunk indices from
// counter until exhausted or token is cancelled, calling fn(chunkIdx) for
// each. RunWorkers blocks until every worker has returned. fn's own errors
// should be reported through token.Cancel so siblings stop promptly.
func RunWorkers(nworkers int, counter *ChunkCounter, token *CancelToken, fn func(chunkIdx int)) {
	var wg sync.WaitGroup
	wg.Add(nworkers)
	for w := 0; w < nworkers; w++ {
		go func() {
			defer wg.Done()
			for {
				if token != nil && token.Cancelled() {
					return
				}
				idx, ok := counter.Next()
				if !ok {
					return
				}
				fn(idx)
			}
		}()
	}
	wg.Wait()
}

// MrFun is one column-block's row-worker task state: Map processes a
// single row-worker slot (the binary tree's leaf unit of work); Reduce
// folds a completed sibling subtree's accumulated state into the
// receiver. MakeCopy produces a fresh, independent accumulator a sibling
// subtree can Map/Reduce into without racing the original — mirroring
// LocalMR's per-task MrFun clone used by deep-cloned histogram mode.
type MrFun interface {
	Map(id int)
	Reduce(other MrFun)
	MakeCopy() MrFun
}

// ForkJoin runs fn.Map over every id in [lo, hi), splitting the range in a
// binary tree exactly as LocalMR.compute2 does: mid := lo + (hi-lo)/2,
// spawn [lo,mid) and [mid+1,hi) as child goroutines each against their own
// MakeCopy()'d accumulator, call fn.Map(mid) inline, then Reduce both
// children back into fn once they join. Returns once the whole range has
// been processed and reduced into fn. If token is cancelled mid-flight,
// ForkJoin stops spawning new work and returns promptly; fn's accumulated
// state on return is partial in that case.
//
// ForkJoin always recurses to single-id leaves; callers that want to cap
// how many leaf goroutines actually get spawned (ScoreBuildHistogram2's
// nrow_threads knob) should call ForkJoinGrain instead.
func ForkJoin(lo, hi int, fn MrFun, token *CancelToken) {
	ForkJoinGrain(lo, hi, 1, fn, token)
}

// ForkJoinGrain is ForkJoin with an explicit leaf width: once a range
// shrinks to leafWidth ids or fewer, it's run inline as a sequential loop
// of fn.Map calls instead of being split again, capping the number of
// leaf goroutines at roughly (hi-lo)/leafWidth. This is how nrowThreads
// bounds concurrency — histobuild derives leafWidth from PlanConcurrency's
// nrowThreads so that splitting stops once there are about nrowThreads
// leaves, rather than one leaf per row chunk.
func ForkJoinGrain(lo, hi, leafWidth int, fn MrFun, token *CancelToken) {
	if lo >= hi {
		return
	}
	if token != nil && token.Cancelled() {
		return
	}
	if leafWidth < 1 {
		leafWidth = 1
	}
	if hi-lo <= leafWidth {
		for i := lo; i < hi; i++ {
			if token != nil && token.Cancelled() {
				return
			}
			fn.Map(i)
		}
		return
	}

	mid := lo + (hi-lo)/2
	left := fn.MakeCopy()
	rite := fn.MakeCopy()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ForkJoinGrain(lo, mid, leafWidth, left, token)
	}()
	go func() {
		defer wg.Done()
		ForkJoinGrain(mid+1, hi, leafWidth, rite, token)
	}()

	if token == nil || !token.Cancelled() {
		fn.Map(mid)
	}
	wg.Wait()

	fn.Reduce(left)
	fn.Reduce(rite)
}
