// Package kernels is the boundary to the Marlin GPU kernel library. It pins
// down the exact input/output contracts of the layout primitives the repack
// pipeline depends on (column bit packing, tile-major weight repacking,
// canonical zero-point and scale permutation, and the quantized GEMM entry
// point) and ships a portable reference implementation of each.
//
// The reference implementations define one concrete canonical layout so the
// pipeline is testable end to end without a GPU. A CUDA-backed build replaces
// the function bodies, not the contracts.
package kernels

import "fmt"

// TileSize is the row granularity of the canonical tile-major weight layout.
const TileSize = 16

// IntMat is a row-major int32 matrix. A zero-value IntMat (no data) is used
// throughout the pipeline as an "absent" sentinel, e.g. for the zero-points
// of a symmetric weight.
type IntMat struct {
	Rows, Cols int
	Data       []int32
}

// NewIntMat returns a zeroed rows x cols matrix.
func NewIntMat(rows, cols int) IntMat {
	return IntMat{Rows: rows, Cols: cols, Data: make([]int32, rows*cols)}
}

func (m IntMat) At(r, c int) int32 { return m.Data[r*m.Cols+c] }

func (m IntMat) Set(r, c int, v int32) { m.Data[r*m.Cols+c] = v }

// Empty reports whether the matrix carries no data, i.e. it is the absent
// sentinel rather than a real (possibly all-zero) matrix.
func (m IntMat) Empty() bool { return len(m.Data) == 0 }

// FloatMat is a row-major float32 matrix.
type FloatMat struct {
	Rows, Cols int
	Data       []float32
}

func NewFloatMat(rows, cols int) FloatMat {
	return FloatMat{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

func (m FloatMat) At(r, c int) float32 { return m.Data[r*m.Cols+c] }

func (m FloatMat) Set(r, c int, v float32) { m.Data[r*m.Cols+c] = v }

func (m FloatMat) Empty() bool { return len(m.Data) == 0 }

// PackFactor returns how many bits-wide values fit in one 32-bit word.
func PackFactor(bits int) int { return 32 / bits }

func checkBits(bits int) error {
	if bits != 4 && bits != 8 {
		return fmt.Errorf("kernels: unsupported bit width %d", bits)
	}
	return nil
}
