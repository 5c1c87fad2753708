package kernels

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// denseReference dequantizes w cell by cell and multiplies, accumulating in
// the same order as the portable GEMM so results match exactly.
func denseReference(x []float32, w IntMat, scales FloatMat, zp IntMat, bias int32, m, n, k, groups int) []float32 {
	out := make([]float32, m*n)
	for r := 0; r < m; r++ {
		for i := 0; i < k; i++ {
			xi := x[r*k+i]
			if xi == 0 {
				continue
			}
			g := i * groups / k
			for j := 0; j < n; j++ {
				q := w.At(i, j)
				if !zp.Empty() {
					q -= zp.At(g, j)
				} else {
					q -= bias
				}
				out[r*n+j] += xi * float32(q) * scales.At(g, j)
			}
		}
	}
	return out
}

func TestGemmSymmetric(t *testing.T) {
	m, k, n, bits := 3, 64, 32, 4
	groups := 2

	rng := rand.New(rand.NewSource(5))
	w := randomValues(t, k, n, bits, 23)

	// power-of-two scales keep the arithmetic exact
	scales := NewFloatMat(groups, n)
	for i := range scales.Data {
		scales.Data[i] = float32(int(1) << uint(rng.Intn(3))) // 1, 2 or 4
	}

	x := make([]float32, m*k)
	for i := range x {
		x[i] = float32(rng.Intn(7) - 3)
	}

	qweight, err := RepackRowPacked(packRows(w, bits), nil, k, n, bits)
	require.NoError(t, err)
	packedScales, err := RepackScales(scales)
	require.NoError(t, err)

	got, err := Gemm(x, qweight, packedScales, IntMat{}, nil, nil, nil, Uint4B8, m, n, k, true, false)
	require.NoError(t, err)

	want := denseReference(x, w, scales, IntMat{}, Uint4B8.Bias(), m, n, k, groups)
	require.Equal(t, want, got)
}

func TestGemmAsymmetric(t *testing.T) {
	m, k, n, bits := 2, 32, 64, 8
	groups := 1

	rng := rand.New(rand.NewSource(9))
	w := randomValues(t, k, n, bits, 31)
	zp := randomValues(t, groups, n, bits, 37)

	scales := NewFloatMat(groups, n)
	for i := range scales.Data {
		scales.Data[i] = 0.5
	}

	x := make([]float32, m*k)
	for i := range x {
		x[i] = float32(rng.Intn(5) - 2)
	}

	qweight, err := RepackRowPacked(packRows(w, bits), nil, k, n, bits)
	require.NoError(t, err)
	packedScales, err := RepackScales(scales)
	require.NoError(t, err)
	qzeros, err := RepackZeroPoints(zp, groups, n, bits)
	require.NoError(t, err)

	got, err := Gemm(x, qweight, packedScales, qzeros, nil, nil, nil, Uint8, m, n, k, true, true)
	require.NoError(t, err)

	want := denseReference(x, w, scales, zp, 0, m, n, k, groups)
	require.Equal(t, want, got)
}

func TestGemmArgumentChecks(t *testing.T) {
	_, err := Gemm(make([]float32, 3), IntMat{}, FloatMat{}, IntMat{}, nil, nil, nil, Uint4, 1, 4, 4, true, false)
	require.Error(t, err)
}

func TestScalarType(t *testing.T) {
	require.Equal(t, 4, Uint4.Bits())
	require.Equal(t, 4, Uint4B8.Bits())
	require.Equal(t, 8, Uint8B128.Bits())
	require.Equal(t, int32(8), Uint4B8.Bias())
	require.Equal(t, int32(128), Uint8B128.Bias())
	require.Equal(t, int32(0), Uint4.Bias())
	require.Equal(t, "uint4b8", Uint4B8.String())
}
