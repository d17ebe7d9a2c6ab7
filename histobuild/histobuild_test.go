package histobuild

import (
	"testing"

	"github.com/ebooster/gbmcore/frame"
	"github.com/ebooster/gbmcore/tree"
)

func TestPlanConcurrencyBackfillsThreads(t *testing.T) {
	_, nrowThreads, _ := PlanConcurrency(2, 10, Params{ColBlockSz: 1, MinThreads: 8})
	if nrowThreads < 4 {
		t.Fatalf("nrowThreads = %d, want >= 4 to reach min_threads=8 with 2 col blocks", nrowThreads)
	}
}

func TestScoreAndRouteWalksDecidedNodes(t *testing.T) {
	tr := tree.New(nil)
	left, right, _, err := tr.Decide(0, 0, 5.0, false, nil, tree.NALeft)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	nids := []int32{Fresh, Fresh}
	featVals := []float64{1.0, 9.0}
	err = ScoreAndRoute(tr, nids, 2, nil, nil, func(row, featureIdx int) (float64, bool) {
		return featVals[row], false
	})
	if err != nil {
		t.Fatalf("ScoreAndRoute: %v", err)
	}
	if nids[0] != int32(left) {
		t.Fatalf("row 0 nid = %d, want left %d", nids[0], left)
	}
	if nids[1] != int32(right) {
		t.Fatalf("row 1 nid = %d, want right %d", nids[1], right)
	}
}

func TestScoreAndRouteSkipsOOB(t *testing.T) {
	tr := tree.New(nil)
	tr.Decide(0, 0, 5.0, false, nil, tree.NALeft)
	nids := []int32{OOB}
	err := ScoreAndRoute(tr, nids, 1, nil, nil, func(row, featureIdx int) (float64, bool) { return 0, false })
	if err != nil {
		t.Fatalf("ScoreAndRoute: %v", err)
	}
	if nids[0] != OOB {
		t.Fatalf("OOB row should not be touched, got %d", nids[0])
	}
}

func TestBuildLayerAccumulatesRowsIntoRootHistogram(t *testing.T) {
	col := []float64{1, 2, 3, 4, 5, 6}
	fr, err := frame.NewInMemoryFrame([][]float64{col}, nil, nil, 2)
	if err != nil {
		t.Fatalf("NewInMemoryFrame: %v", err)
	}
	tr := tree.New(nil)
	nids := make([]int32, 6)
	work := []float64{10, 20, 30, 40, 50, 60}

	edges := map[int][]float64{0: {0, 2, 4, 6, 8}}
	err = BuildLayer(fr, tr, []int{0}, []int{0}, nil, edges, nil, 0, nids, work, nil,
		Params{ColBlockSz: 1, SharedHisto: true, MinThreads: 1}, nil)
	if err != nil {
		t.Fatalf("BuildLayer: %v", err)
	}

	h := tr.Nodes[0].Histos[0]
	if got := h.TotalWeight(); got != 6 {
		t.Fatalf("TotalWeight = %v, want 6 (all rows in-bag)", got)
	}
}

func TestBuildLayerSharedAndClonedModesAgree(t *testing.T) {
	col := make([]float64, 200)
	work := make([]float64, 200)
	for i := range col {
		col[i] = float64(i % 10)
		work[i] = float64(i)
	}
	edges := map[int][]float64{0: {0, 2, 4, 6, 8, 10}}

	run := func(shared bool) float64 {
		fr, _ := frame.NewInMemoryFrame([][]float64{col}, nil, nil, 7)
		tr := tree.New(nil)
		nids := make([]int32, 200)
		BuildLayer(fr, tr, []int{0}, []int{0}, nil, edges, nil, 0, nids, work, nil,
			Params{ColBlockSz: 1, SharedHisto: shared, MinThreads: 4}, nil)
		return tr.Nodes[0].Histos[0].TotalWeight()
	}

	sharedTotal := run(true)
	clonedTotal := run(false)
	if sharedTotal != clonedTotal {
		t.Fatalf("shared mode total %v != cloned mode total %v", sharedTotal, clonedTotal)
	}
	if sharedTotal != 200 {
		t.Fatalf("total weight = %v, want 200", sharedTotal)
	}
}
