package frame

import "testing"

func TestNewInMemoryFrameChunking(t *testing.T) {
	cols := [][]float64{
		{1, 2, 3, 4, 5, 6, 7},
		{10, 20, 30, 40, 50, 60, 70},
	}
	f, err := NewInMemoryFrame(cols, nil, nil, 3)
	if err != nil {
		t.Fatalf("NewInMemoryFrame: %v", err)
	}
	if f.NumCols() != 2 {
		t.Fatalf("NumCols = %d, want 2", f.NumCols())
	}
	if f.NumRows() != 7 {
		t.Fatalf("NumRows = %d, want 7", f.NumRows())
	}
	if got := f.NumChunks(); got != 3 {
		t.Fatalf("NumChunks = %d, want 3", got)
	}
	wantLens := []int{3, 3, 1}
	for i, want := range wantLens {
		if got := f.ChunkLen(i); got != want {
			t.Fatalf("ChunkLen(%d) = %d, want %d", i, got, want)
		}
	}
	chunk, err := f.GetChunk(1, 2)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if len(chunk) != 1 || chunk[0] != 70 {
		t.Fatalf("GetChunk(1,2) = %v, want [70]", chunk)
	}
}

func TestNewInMemoryFrameMismatchedLengths(t *testing.T) {
	cols := [][]float64{{1, 2, 3}, {1, 2}}
	if _, err := NewInMemoryFrame(cols, nil, nil, 2); err == nil {
		t.Fatalf("expected error for mismatched column lengths")
	}
}

func TestGetChunkOutOfRange(t *testing.T) {
	f, err := NewInMemoryFrame([][]float64{{1, 2, 3}}, nil, nil, 2)
	if err != nil {
		t.Fatalf("NewInMemoryFrame: %v", err)
	}
	if _, err := f.GetChunk(0, 5); err == nil {
		t.Fatalf("expected error for out-of-range chunk")
	}
	if _, err := f.GetChunk(5, 0); err == nil {
		t.Fatalf("expected error for out-of-range column")
	}
}
