package histogram

import "testing"

func TestUpdateAndGet(t *testing.T) {
	h := New(0, 0, []float64{0, 1, 2, 3})
	h.Update(0.5, 1, 10)
	h.Update(0.6, 2, 20)
	h.Update(2.5, 1, 5)

	ws, wys, wyys, count, mn, mx := h.Get(0)
	if ws != 3 {
		t.Fatalf("WSum = %v, want 3", ws)
	}
	if wys != 1*10+2*20 {
		t.Fatalf("WYSum = %v, want %v", wys, 1*10+2*20)
	}
	if wyys != 1*10*10+2*20*20 {
		t.Fatalf("WYYSum = %v, want %v", wyys, 1*10*10+2*20*20)
	}
	if count != 2 {
		t.Fatalf("Count = %v, want 2", count)
	}
	if mn != 10 || mx != 20 {
		t.Fatalf("min/max = %v/%v, want 10/20", mn, mx)
	}

	ws2, _, _, count2, _, _ := h.Get(2)
	if ws2 != 1 || count2 != 1 {
		t.Fatalf("bucket 2: ws=%v count=%v, want 1/1", ws2, count2)
	}
}

func TestAddMergesBuckets(t *testing.T) {
	a := New(0, 0, []float64{0, 1, 2})
	b := New(0, 0, []float64{0, 1, 2})
	a.Update(0.5, 1, 10)
	b.Update(0.5, 1, 20)
	b.Update(1.5, 1, 30)

	if err := a.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ws0, wys0, _, count0, _, _ := a.Get(0)
	if ws0 != 2 || wys0 != 30 || count0 != 2 {
		t.Fatalf("bucket 0 after merge = ws=%v wys=%v count=%v", ws0, wys0, count0)
	}
	ws1, _, _, count1, _, _ := a.Get(1)
	if ws1 != 1 || count1 != 1 {
		t.Fatalf("bucket 1 after merge = ws=%v count=%v", ws1, count1)
	}
}

func TestCloneIndependence(t *testing.T) {
	a := New(0, 0, []float64{0, 1, 2})
	a.Update(0.5, 1, 10)
	c := a.Clone()
	c.Update(0.5, 1, 10)

	wsA, _, _, _, _, _ := a.Get(0)
	wsC, _, _, _, _, _ := c.Get(0)
	if wsA != 1 {
		t.Fatalf("original mutated by clone: ws=%v", wsA)
	}
	if wsC != 2 {
		t.Fatalf("clone did not accumulate independently: ws=%v", wsC)
	}
}

func TestTotalWeight(t *testing.T) {
	h := New(0, 0, []float64{0, 1, 2, 3})
	h.Update(0.1, 1, 1)
	h.Update(1.1, 2, 1)
	h.Update(2.1, 3, 1)
	if got := h.TotalWeight(); got != 6 {
		t.Fatalf("TotalWeight = %v, want 6", got)
	}
}

func TestLocalBufferFlush(t *testing.T) {
	h := New(0, 0, []float64{0, 1, 2})
	buf := NewLocalBuffer(h, 4)
	buf.Add(0, 1, 10)
	buf.Add(1, 2, 20)
	buf.Flush()

	ws0, _, _, _, _, _ := h.Get(0)
	ws1, _, _, _, _, _ := h.Get(1)
	if ws0 != 1 || ws1 != 2 {
		t.Fatalf("after flush ws0=%v ws1=%v, want 1/2", ws0, ws1)
	}
}
