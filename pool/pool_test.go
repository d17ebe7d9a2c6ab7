package pool

import (
	"sync"
	"testing"
)

func TestChunkCounterExhausts(t *testing.T) {
	c := NewChunkCounter(3)
	seen := map[int]bool{}
	for {
		idx, ok := c.Next()
		if !ok {
			break
		}
		seen[idx] = true
	}
	if len(seen) != 3 {
		t.Fatalf("saw %d distinct indices, want 3", len(seen))
	}
}

func TestRunWorkersCoversAllChunks(t *testing.T) {
	n := 37
	counter := NewChunkCounter(n)
	var mu sync.Mutex
	seen := make([]int, 0, n)
	RunWorkers(4, counter, nil, func(idx int) {
		mu.Lock()
		seen = append(seen, idx)
		mu.Unlock()
	})
	if len(seen) != n {
		t.Fatalf("processed %d chunks, want %d", len(seen), n)
	}
}

func TestRunWorkersRespectsCancellation(t *testing.T) {
	counter := NewChunkCounter(1000)
	token := &CancelToken{}
	token.Cancel(nil)
	var count int64
	RunWorkers(4, counter, token, func(idx int) {
		count++
	})
	if count != 0 {
		t.Fatalf("expected no work after pre-cancellation, got %d", count)
	}
}

// sumFn accumulates the sum of ids it's Mapped over; Reduce adds a
// sibling's sum into its own.
type sumFn struct {
	total int
}

func (s *sumFn) Map(id int)      { s.total += id }
func (s *sumFn) Reduce(o MrFun)  { s.total += o.(*sumFn).total }
func (s *sumFn) MakeCopy() MrFun { return &sumFn{} }

func TestForkJoinSumsRange(t *testing.T) {
	fn := &sumFn{}
	ForkJoin(0, 100, fn, nil)
	want := 0
	for i := 0; i < 100; i++ {
		want += i
	}
	if fn.total != want {
		t.Fatalf("ForkJoin sum = %d, want %d", fn.total, want)
	}
}

func TestForkJoinSingleElement(t *testing.T) {
	fn := &sumFn{}
	ForkJoin(5, 6, fn, nil)
	if fn.total != 5 {
		t.Fatalf("ForkJoin single-element sum = %d, want 5", fn.total)
	}
}

func TestForkJoinEmptyRange(t *testing.T) {
	fn := &sumFn{}
	ForkJoin(5, 5, fn, nil)
	if fn.total != 0 {
		t.Fatalf("ForkJoin empty range sum = %d, want 0", fn.total)
	}
}

func TestForkJoinCancelledStopsEarly(t *testing.T) {
	fn := &sumFn{}
	token := &CancelToken{}
	token.Cancel(nil)
	ForkJoin(0, 1000, fn, token)
	if fn.total != 0 {
		t.Fatalf("expected no work summed after cancellation, got %d", fn.total)
	}
}
