package kernels

import "fmt"

// ScalarType identifies the quantized element type of a canonical weight, as
// understood by the GEMM kernel. The b8/b128 variants carry an implicit bias
// subtracted during dequantization in place of explicit zero-points.
type ScalarType int

const (
	Uint4 ScalarType = iota
	Uint8
	Uint4B8
	Uint8B128
)

func (t ScalarType) Bits() int {
	if t == Uint4 || t == Uint4B8 {
		return 4
	}
	return 8
}

// Bias is the implicit zero offset of the type. Types with explicit
// zero-points have none.
func (t ScalarType) Bias() int32 {
	switch t {
	case Uint4B8:
		return 8
	case Uint8B128:
		return 128
	}
	return 0
}

func (t ScalarType) String() string {
	switch t {
	case Uint4:
		return "uint4"
	case Uint8:
		return "uint8"
	case Uint4B8:
		return "uint4b8"
	case Uint8B128:
		return "uint8b128"
	}
	return "unknown"
}

// Gemm multiplies (m, k) activations by a canonically packed quantized weight,
// producing (m, n) output. The argument list mirrors the GPU kernel entry
// point; the portable implementation dequantizes the weight and multiplies
// directly, ignoring workspace and isFullK, which only steer intra-kernel
// scheduling.
//
// gidx maps each (permuted) input channel to its quantization group; empty
// means contiguous groups. perm is the input-channel permutation applied
// during repacking; empty means identity. hasZeroPoints selects explicit
// zero-point dequantization over the type's implicit bias.
func Gemm(x []float32, qweight IntMat, scales FloatMat, qzeros IntMat, gidx, perm []int32, workspace []int32, qt ScalarType, m, n, k int, isFullK, hasZeroPoints bool) ([]float32, error) {
	if len(x) != m*k {
		return nil, fmt.Errorf("kernels: gemm: got %d activations, want %d", len(x), m*k)
	}
	if scales.Cols != n {
		return nil, fmt.Errorf("kernels: gemm: scales have %d columns, want %d", scales.Cols, n)
	}

	bits := qt.Bits()
	w, err := unpackTiles(qweight, bits, k, n)
	if err != nil {
		return nil, err
	}

	sc := unpackScales(scales)
	groups := sc.Rows

	var zp IntMat
	if hasZeroPoints {
		zp, err = unpackZeroPoints(qzeros, groups, n, bits)
		if err != nil {
			return nil, err
		}
	}

	group := func(i int) int {
		if len(gidx) > 0 {
			return int(gidx[i])
		}
		return i * groups / k
	}

	out := make([]float32, m*n)
	for r := 0; r < m; r++ {
		for i := 0; i < k; i++ {
			xi := x[r*k+i]
			if len(perm) > 0 {
				xi = x[r*k+int(perm[i])]
			}
			if xi == 0 {
				continue
			}

			g := group(i)
			for j := 0; j < n; j++ {
				q := w.At(i, j)
				if hasZeroPoints {
					q -= zp.At(g, j)
				} else {
					q -= qt.Bias()
				}
				out[r*n+j] += xi * float32(q) * sc.At(g, j)
			}
		}
	}

	return out, nil
}
