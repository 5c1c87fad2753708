package kernels

import "fmt"

// PackColumns folds each run of PackFactor(bits) consecutive columns of a
// (k, n) value matrix into one 32-bit word. Lane i of word j holds logical
// column j*pf+i. Values must already be in [0, 2^bits).
func PackColumns(w IntMat, bits, k, n int) (IntMat, error) {
	if err := checkBits(bits); err != nil {
		return IntMat{}, err
	}
	pf := PackFactor(bits)
	if w.Rows != k || w.Cols != n {
		return IntMat{}, fmt.Errorf("kernels: pack columns: got %dx%d matrix, want %dx%d", w.Rows, w.Cols, k, n)
	}
	if n%pf != 0 {
		return IntMat{}, fmt.Errorf("kernels: pack columns: %d columns not divisible by pack factor %d", n, pf)
	}

	mask := uint32(1<<bits - 1)
	out := NewIntMat(k, n/pf)
	for r := 0; r < k; r++ {
		for j := 0; j < out.Cols; j++ {
			var word uint32
			for i := 0; i < pf; i++ {
				word |= (uint32(w.At(r, j*pf+i)) & mask) << (bits * i)
			}
			out.Set(r, j, int32(word))
		}
	}

	return out, nil
}

// UnpackColumns is the inverse of PackColumns: it expands a column-packed
// (k, n/pf) word matrix into one value per (k, n) cell, each in [0, 2^bits).
func UnpackColumns(packed IntMat, bits, k, n int) (IntMat, error) {
	if err := checkBits(bits); err != nil {
		return IntMat{}, err
	}
	pf := PackFactor(bits)
	if packed.Rows != k || packed.Cols*pf != n {
		return IntMat{}, fmt.Errorf("kernels: unpack columns: got %dx%d matrix, want %dx%d", packed.Rows, packed.Cols, k, n/pf)
	}

	mask := uint32(1<<bits - 1)
	out := NewIntMat(k, n)
	for r := 0; r < k; r++ {
		for j := 0; j < packed.Cols; j++ {
			word := uint32(packed.At(r, j))
			for i := 0; i < pf; i++ {
				out.Set(r, j*pf+i, int32((word>>(bits*i))&mask))
			}
		}
	}

	return out, nil
}

// unpackRows expands a row-packed (k/pf, n) word matrix, where lane i of the
// word at row t holds logical row t*pf+i, into a (k, n) value matrix.
func unpackRows(packed IntMat, bits, k, n int) IntMat {
	pf := PackFactor(bits)
	mask := uint32(1<<bits - 1)
	out := NewIntMat(k, n)
	for t := 0; t < packed.Rows; t++ {
		for c := 0; c < n; c++ {
			word := uint32(packed.At(t, c))
			for i := 0; i < pf; i++ {
				out.Set(t*pf+i, c, int32((word>>(bits*i))&mask))
			}
		}
	}

	return out
}
