package tree

import (
	"math"
	"testing"

	"github.com/ebooster/gbmcore/histogram"
)

func TestDecideChildIndicesExceedParent(t *testing.T) {
	h := histogram.New(0, 0, []float64{0, 1, 2})
	tr := New([]*histogram.DHistogram{h})
	left, right, _, err := tr.Decide(0, 0, 1, false, nil, NALeft)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if left <= 0 || right <= 0 {
		t.Fatalf("child indices %d,%d must exceed parent index 0", left, right)
	}
	if tr.Nodes[0].Kind != Decided {
		t.Fatalf("node 0 should be Decided after Decide")
	}
}

func TestDecideNonUndecidedFails(t *testing.T) {
	tr := New(nil)
	if err := tr.MakeLeaf(0, 1.0); err != nil {
		t.Fatalf("MakeLeaf: %v", err)
	}
	if _, _, _, err := tr.Decide(0, 0, 1, false, nil, NALeft); err == nil {
		t.Fatalf("expected error deciding an already-Leaf node")
	}
}

func TestRouteAndPredict(t *testing.T) {
	tr := New(nil)
	left, right, _, err := tr.Decide(0, 0, 5.0, false, nil, NALeft)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := tr.MakeLeaf(left, -1.0); err != nil {
		t.Fatalf("MakeLeaf left: %v", err)
	}
	if err := tr.MakeLeaf(right, 1.0); err != nil {
		t.Fatalf("MakeLeaf right: %v", err)
	}

	got, err := tr.Predict(func(idx int) (float64, bool) { return 3.0, false })
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != -1.0 {
		t.Fatalf("Predict(3.0) = %v, want -1.0", got)
	}

	got, err = tr.Predict(func(idx int) (float64, bool) { return 10.0, false })
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("Predict(10.0) = %v, want 1.0", got)
	}
}

func TestRouteNADirection(t *testing.T) {
	tr := New(nil)
	left, right, _, _ := tr.Decide(0, 0, 5.0, false, nil, NARight)
	tr.MakeLeaf(left, -1.0)
	tr.MakeLeaf(right, 1.0)

	got, err := tr.Predict(func(idx int) (float64, bool) { return 0, true })
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("NA row should route right, got %v", got)
	}
}

func TestMaxAbsFinite(t *testing.T) {
	cases := []struct {
		in, bound, want float64
	}{
		{5, 10, 5},
		{-20, 10, -10},
		{20, 10, 10},
		{math.NaN(), 10, 0},
		{math.Inf(1), 10, 10},
		{math.Inf(-1), 10, -10},
	}
	for _, c := range cases {
		got := MaxAbsFinite(c.in, c.bound)
		if got != c.want {
			t.Fatalf("MaxAbsFinite(%v,%v) = %v, want %v", c.in, c.bound, got, c.want)
		}
	}
}

func TestFindBestSplitSeparatesGroups(t *testing.T) {
	h := histogram.New(0, 0, []float64{0, 1, 2, 3, 4})
	h.Update(0.5, 1, -10)
	h.Update(1.5, 1, -10)
	h.Update(2.5, 1, 10)
	h.Update(3.5, 1, 10)

	finder := SplitFinder{MinRows: 1, MinSplitImprovement: 0, ColSampleRate: 1}
	split, ok := finder.FindBestSplit([]*histogram.DHistogram{h})
	if !ok {
		t.Fatalf("expected a split to be found")
	}
	if split.Threshold < 2 || split.Threshold > 3 {
		t.Fatalf("threshold = %v, want between 2 and 3", split.Threshold)
	}
}

func TestFindBestSplitRespectsMinRows(t *testing.T) {
	h := histogram.New(0, 0, []float64{0, 1, 2})
	h.Update(0.5, 1, -10)
	h.Update(1.5, 100, 10)

	finder := SplitFinder{MinRows: 50, MinSplitImprovement: 0, ColSampleRate: 1}
	_, ok := finder.FindBestSplit([]*histogram.DHistogram{h})
	if ok {
		t.Fatalf("expected no split when MinRows excludes every boundary")
	}
}
