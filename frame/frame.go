// Package frame implements the column-partitioned, chunked external data
// model that the boosting core reads through. Columns are never copied row
// by row across the module boundary; callers pull one chunk of one column
// at a time.
package frame

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// ColumnKind distinguishes the handful of column shapes the core needs to
// know about. String/UUID/Time columns are accepted for shape compatibility
// with real datasets; the boosting core does not read ColumnKind itself, so
// which columns are split on is set by the caller's feature-column list.
type ColumnKind int

const (
	Numeric ColumnKind = iota
	Categorical
	Time
	String
	UUID
)

// Frame is the read surface the boosting core depends on. Implementations
// own their own chunking and storage; the core only ever asks for one
// column of one chunk at a time so a real implementation can back this with
// memory-mapped or remote storage.
type Frame interface {
	NumCols() int
	NumRows() int
	NumChunks() int
	ChunkLen(chunk int) int
	ChunkStart(chunk int) int
	GetChunk(col, chunk int) ([]float64, error)
	ColumnKind(col int) ColumnKind
	Domain(col int) []string
}

// InMemoryFrame is the Frame implementation used by tests and the bundled
// CLI. Columns are stored densely and sliced into chunks of chunkSize rows
// (the last chunk may be shorter).
type InMemoryFrame struct {
	cols      [][]float64
	kinds     []ColumnKind
	domains   [][]string
	numRows   int
	chunkSize int
	offsets   []int
}

// NewInMemoryFrame builds a Frame from dense columns. All columns must have
// equal length. kinds and domains may be nil, in which case every column is
// treated as Numeric with no domain.
func NewInMemoryFrame(cols [][]float64, kinds []ColumnKind, domains [][]string, chunkSize int) (*InMemoryFrame, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("frame: at least one column required")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("frame: chunkSize must be positive, got %d", chunkSize)
	}
	n := len(cols[0])
	for i, c := range cols {
		if len(c) != n {
			return nil, fmt.Errorf("frame: column %d has length %d, want %d", i, len(c), n)
		}
	}
	if kinds == nil {
		kinds = make([]ColumnKind, len(cols))
	} else if len(kinds) != len(cols) {
		return nil, fmt.Errorf("frame: kinds has %d entries, want %d", len(kinds), len(cols))
	}
	if domains == nil {
		domains = make([][]string, len(cols))
	} else if len(domains) != len(cols) {
		return nil, fmt.Errorf("frame: domains has %d entries, want %d", len(domains), len(cols))
	}

	nChunks := (n + chunkSize - 1) / chunkSize
	if nChunks == 0 {
		nChunks = 1
	}
	offsets := make([]int, nChunks+1)
	for i := 0; i <= nChunks; i++ {
		off := i * chunkSize
		if off > n {
			off = n
		}
		offsets[i] = off
	}

	return &InMemoryFrame{
		cols:      cols,
		kinds:     kinds,
		domains:   domains,
		numRows:   n,
		chunkSize: chunkSize,
		offsets:   offsets,
	}, nil
}

func (f *InMemoryFrame) NumCols() int   { return len(f.cols) }
func (f *InMemoryFrame) NumRows() int   { return f.numRows }
func (f *InMemoryFrame) NumChunks() int { return len(f.offsets) - 1 }

func (f *InMemoryFrame) ChunkLen(chunk int) int {
	return f.offsets[chunk+1] - f.offsets[chunk]
}

func (f *InMemoryFrame) ChunkStart(chunk int) int { return f.offsets[chunk] }

func (f *InMemoryFrame) GetChunk(col, chunk int) ([]float64, error) {
	if col < 0 || col >= len(f.cols) {
		return nil, fmt.Errorf("frame: column index %d out of range", col)
	}
	if chunk < 0 || chunk >= f.NumChunks() {
		return nil, fmt.Errorf("frame: chunk index %d out of range", chunk)
	}
	lo, hi := f.offsets[chunk], f.offsets[chunk+1]
	return f.cols[col][lo:hi], nil
}

func (f *InMemoryFrame) ColumnKind(col int) ColumnKind { return f.kinds[col] }
func (f *InMemoryFrame) Domain(col int) []string       { return f.domains[col] }

// LoadNumericColumnsNPY reads a set of single-column .npy files (one per
// feature) into a new InMemoryFrame. This is ambient convenience for the
// CLI and tests; it is not a dataset ingest pipeline — every column loaded
// this way is Numeric.
func LoadNumericColumnsNPY(paths []string, chunkSize int) (*InMemoryFrame, error) {
	cols := make([][]float64, len(paths))
	for i, p := range paths {
		m, err := readNpyVector(p)
		if err != nil {
			return nil, fmt.Errorf("frame: loading %s: %w", p, err)
		}
		cols[i] = m
	}
	return NewInMemoryFrame(cols, nil, nil, chunkSize)
}

func readNpyVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, err
	}

	dense := &mat.Dense{}
	if err := r.Read(dense); err != nil {
		return nil, err
	}
	rows, cols := dense.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out = append(out, dense.At(i, j))
		}
	}
	return out, nil
}

// ChunkOffsets exposes the per-chunk row offsets so scratch columns (which
// live outside Frame proper) can be sliced along identical boundaries.
func (f *InMemoryFrame) ChunkOffsets() []int { return f.offsets }
