package kernels

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"
)

// RepackRowPacked converts a row-packed (k/pf, n) quantized weight into the
// canonical tile-major layout, applying perm to the input channels first.
// An empty perm means identity. The result has shape (k/TileSize, n*TileSize/pf).
func RepackRowPacked(qweight IntMat, perm []int32, k, n, bits int) (IntMat, error) {
	if err := checkBits(bits); err != nil {
		return IntMat{}, err
	}
	pf := PackFactor(bits)
	if qweight.Rows*pf != k || qweight.Cols != n {
		return IntMat{}, fmt.Errorf("kernels: row-packed repack: got %dx%d matrix, want %dx%d", qweight.Rows, qweight.Cols, k/pf, n)
	}
	if k%TileSize != 0 {
		return IntMat{}, fmt.Errorf("kernels: row-packed repack: %d input features not divisible by tile size %d", k, TileSize)
	}

	w := unpackRows(qweight, bits, k, n)
	if len(perm) > 0 {
		if len(perm) != k {
			return IntMat{}, fmt.Errorf("kernels: row-packed repack: permutation length %d does not match %d input features", len(perm), k)
		}
		permuted := NewIntMat(k, n)
		for i, p := range perm {
			copy(permuted.Data[i*n:(i+1)*n], w.Data[int(p)*n:(int(p)+1)*n])
		}
		w = permuted
	}

	return packTiles(w, bits, k, n)
}

// RepackColumnPacked converts a column-packed (k, n/pf) quantized weight into
// the same canonical tile-major layout. Channel permutation is not supported
// for column-packed sources.
func RepackColumnPacked(qweight IntMat, k, n, bits int) (IntMat, error) {
	if k%TileSize != 0 {
		return IntMat{}, fmt.Errorf("kernels: column-packed repack: %d input features not divisible by tile size %d", k, TileSize)
	}

	w, err := UnpackColumns(qweight, bits, k, n)
	if err != nil {
		return IntMat{}, err
	}

	return packTiles(w, bits, k, n)
}

// packTiles folds each 16-row tile of the (k, n) value matrix into one output
// row, lane-ordering cell (r, c) of tile t at column c*TileSize+r, then packs
// the result column-wise.
func packTiles(w IntMat, bits, k, n int) (IntMat, error) {
	tiled := NewIntMat(k/TileSize, n*TileSize)
	for t := 0; t < tiled.Rows; t++ {
		for r := 0; r < TileSize; r++ {
			for c := 0; c < n; c++ {
				tiled.Set(t, c*TileSize+r, w.At(t*TileSize+r, c))
			}
		}
	}

	return PackColumns(tiled, bits, tiled.Rows, tiled.Cols)
}

// unpackTiles is the inverse of the tile repack: it recovers the (k, n) value
// matrix from a canonical (k/TileSize, n*TileSize/pf) packed weight.
func unpackTiles(qweight IntMat, bits, k, n int) (IntMat, error) {
	tiled, err := UnpackColumns(qweight, bits, k/TileSize, n*TileSize)
	if err != nil {
		return IntMat{}, err
	}

	w := NewIntMat(k, n)
	for t := 0; t < tiled.Rows; t++ {
		for r := 0; r < TileSize; r++ {
			for c := 0; c < n; c++ {
				w.Set(t*TileSize+r, c, tiled.At(t, c*TileSize+r))
			}
		}
	}

	return w, nil
}

// RepackZeroPoints packs a naturally ordered (k, n) zero-point value matrix
// into the canonical lane-interleaved column-packed layout. It is the
// canonical-layout counterpart of UnpackColumns.
func RepackZeroPoints(zp IntMat, k, n, bits int) (IntMat, error) {
	if err := checkBits(bits); err != nil {
		return IntMat{}, err
	}
	if zp.Rows != k || zp.Cols != n {
		return IntMat{}, fmt.Errorf("kernels: zero-point repack: got %dx%d matrix, want %dx%d", zp.Rows, zp.Cols, k, n)
	}
	if n%32 != 0 {
		return IntMat{}, fmt.Errorf("kernels: zero-point repack: %d columns not divisible by 32", n)
	}

	flat := gatherRunsInt(zp.Data, scalePermSingle())
	flat = gatherRunsInt(flat, laneInterleave(bits))

	return PackColumns(IntMat{Rows: k, Cols: n, Data: flat}, bits, k, n)
}

// unpackZeroPoints inverts RepackZeroPoints, recovering one zero-point value
// per (group, output feature) cell.
func unpackZeroPoints(packed IntMat, k, n, bits int) (IntMat, error) {
	zp, err := UnpackColumns(packed, bits, k, n)
	if err != nil {
		return IntMat{}, err
	}

	flat := gatherRunsInt(zp.Data, invert(laneInterleave(bits)))
	flat = gatherRunsInt(flat, invert(scalePermSingle()))

	return IntMat{Rows: k, Cols: n, Data: flat}, nil
}

// RepackScales permutes a (groups, n) scale matrix into canonical tile order.
// The value multiset is unchanged; only positions move. Single-group scale
// matrices use a different column order than grouped ones.
func RepackScales(scales FloatMat) (FloatMat, error) {
	perm := scalePerm()
	if scales.Rows == 1 {
		perm = scalePermSingle()
	}
	if len(scales.Data)%len(perm) != 0 {
		return FloatMat{}, fmt.Errorf("kernels: scale repack: %d values not divisible by permutation width %d", len(scales.Data), len(perm))
	}

	t := tensor.New(tensor.WithShape(scales.Rows, scales.Cols), tensor.WithBacking(slices.Clone(scales.Data)))
	if err := t.Reshape(len(scales.Data)/len(perm), len(perm)); err != nil {
		return FloatMat{}, err
	}

	rows, err := native.MatrixF32(t)
	if err != nil {
		return FloatMat{}, err
	}

	out := NewFloatMat(scales.Rows, scales.Cols)
	for r := range rows {
		for j, p := range perm {
			out.Data[r*len(perm)+j] = rows[r][p]
		}
	}

	return out, nil
}

// unpackScales inverts RepackScales.
func unpackScales(scales FloatMat) FloatMat {
	perm := scalePerm()
	if scales.Rows == 1 {
		perm = scalePermSingle()
	}

	out := NewFloatMat(scales.Rows, scales.Cols)
	l := len(perm)
	for r := 0; r < len(scales.Data)/l; r++ {
		for j, p := range perm {
			out.Data[r*l+p] = scales.Data[r*l+j]
		}
	}

	return out
}
