package quantileagg

import "testing"

func TestStratifiedMedian(t *testing.T) {
	svc := StratifiedQuantile{}
	values := []float64{1, 2, 3, 10, 20, 30}
	strata := []int32{0, 0, 0, 1, 1, 1}
	got := svc.Stratified(values, nil, strata, 0.5)
	if got[0] != 2 {
		t.Fatalf("stratum 0 median = %v, want 2", got[0])
	}
	if got[1] != 20 {
		t.Fatalf("stratum 1 median = %v, want 20", got[1])
	}
}

func TestStratifiedWeighted(t *testing.T) {
	svc := StratifiedQuantile{}
	values := []float64{1, 2, 3}
	weights := []float64{1, 1, 100}
	strata := []int32{0, 0, 0}
	got := svc.Stratified(values, weights, strata, 0.5)
	if got[0] < 2.5 {
		t.Fatalf("weighted median = %v, want pulled toward heavily-weighted value 3", got[0])
	}
}

func TestStratifiedSingleStratum(t *testing.T) {
	svc := StratifiedQuantile{}
	values := []float64{5, 1, 9, 3}
	strata := []int32{7, 7, 7, 7}
	got := svc.Stratified(values, nil, strata, 0.0)
	if got[7] != 1 {
		t.Fatalf("0-quantile = %v, want min 1", got[7])
	}
}
