package marlin

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmorganca/marlin/kernels"
)

func randomValues(rng *rand.Rand, rows, cols, bits int) kernels.IntMat {
	m := kernels.NewIntMat(rows, cols)
	for i := range m.Data {
		m.Data[i] = int32(rng.Intn(1 << bits))
	}
	return m
}

func packRows(w kernels.IntMat, bits int) kernels.IntMat {
	pf := kernels.PackFactor(bits)
	out := kernels.NewIntMat(w.Rows/pf, w.Cols)
	for t := 0; t < out.Rows; t++ {
		for c := 0; c < w.Cols; c++ {
			var word uint32
			for i := 0; i < pf; i++ {
				word |= uint32(w.At(t*pf+i, c)) << (bits * i)
			}
			out.Set(t, c, int32(word))
		}
	}
	return out
}

func gptqSource(rng *rand.Rand, k, n, bits, groupSize int) Source {
	groups := 1
	if groupSize != -1 {
		groups = k / groupSize
	}

	scales := kernels.NewFloatMat(groups, n)
	for i := range scales.Data {
		scales.Data[i] = float32(rng.Intn(8)+1) * 0.125
	}

	return Source{
		Method:    GPTQ,
		QWeight:   packRows(randomValues(rng, k, n, bits), bits),
		Scales:    scales,
		Bits:      bits,
		GroupSize: groupSize,
		Sym:       true,
	}
}

func TestRepackSupportedConfigs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bits := range SupportedBits {
		for _, groupSize := range SupportedGroupSizes {
			src := gptqSource(rng, 256, 64, bits, groupSize)
			w, err := Repack(src, false)
			require.NoError(t, err, "bits=%d group_size=%d", bits, groupSize)
			require.Equal(t, 256, w.InFeatures())
			require.Equal(t, 64, w.OutFeatures())
		}
	}
}

func TestRepackConfigErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	cases := []struct {
		name string
		mod  func(*Source)
	}{
		{"unsupported bits", func(s *Source) { s.Bits = 3 }},
		{"unsupported group size", func(s *Source) { s.GroupSize = 96 }},
		{"asymmetric gptq", func(s *Source) { s.Sym = false }},
		{"indivisible group size", func(s *Source) { s.GroupSize = 128 }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			src := gptqSource(rng, 192, 64, 4, 32) // 192 % 128 != 0
			tt.mod(&src)

			_, err := Repack(src, false)
			require.Error(t, err)

			var configErr *ConfigError
			require.True(t, errors.As(err, &configErr))
		})
	}
}

func TestSupported(t *testing.T) {
	require.True(t, Supported(4, 128, GPTQ, true))
	require.True(t, Supported(8, -1, AWQ, false))
	require.False(t, Supported(2, 128, GPTQ, true))
	require.False(t, Supported(4, 16, GPTQ, true))
	require.False(t, Supported(4, 128, GPTQ, false))
}

func TestRepackSymmetricSentinels(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w, err := Repack(gptqSource(rng, 512, 256, 4, 128), false)
	require.NoError(t, err)

	require.True(t, w.QZeros.Empty())
	require.Empty(t, w.Perm)
	require.Empty(t, w.GIdx)
	require.True(t, w.IsFullK)
}

func TestRepackIsFullK(t *testing.T) {
	cases := []struct {
		descAct   bool
		groupSize int
		sharded   bool
		want      bool
	}{
		{true, 128, true, false},
		{true, 128, false, true},
		{true, -1, true, true},
		{false, 128, true, true},
		{false, -1, false, true},
	}

	rng := rand.New(rand.NewSource(4))
	for _, tt := range cases {
		src := gptqSource(rng, 256, 64, 4, tt.groupSize)
		src.DescAct = tt.descAct
		if tt.descAct && tt.groupSize != -1 {
			gidx := make([]int32, 256)
			for i := range gidx {
				gidx[i] = int32(i / tt.groupSize)
			}
			src.GIdx = gidx
		}

		w, err := Repack(src, tt.sharded)
		require.NoError(t, err)
		require.Equal(t, tt.want, w.IsFullK,
			"desc_act=%v group_size=%d sharded=%v", tt.descAct, tt.groupSize, tt.sharded)
	}
}

func TestRepackEndToEnd(t *testing.T) {
	// 4-bit row-packed weight, 512x256, symmetric, contiguous groups of 128
	rng := rand.New(rand.NewSource(5))
	src := gptqSource(rng, 512, 256, 4, 128)

	w, err := Repack(src, false)
	require.NoError(t, err)

	require.Equal(t, 512/kernels.TileSize, w.QWeight.Rows)
	require.Equal(t, 256*kernels.TileSize/8, w.QWeight.Cols)
	require.Empty(t, w.Perm)
	require.Empty(t, w.GIdx)
	require.True(t, w.QZeros.Empty())
	require.True(t, w.IsFullK)
	require.Equal(t, 4, w.Bits)

	// scales land reordered but value-preserving in a (4, 256) matrix
	require.Equal(t, 4, w.Scales.Rows)
	require.Equal(t, 256, w.Scales.Cols)
	want := slices.Clone(src.Scales.Data)
	got := slices.Clone(w.Scales.Data)
	slices.Sort(want)
	slices.Sort(got)
	require.Equal(t, want, got)
}

func TestRepackAWQ(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	k, n, bits, groupSize := 128, 64, 4, 32
	groups := k / groupSize
	pf := kernels.PackFactor(bits)

	qweight, err := kernels.PackColumns(randomValues(rng, k, n, bits), bits, k, n)
	require.NoError(t, err)

	scales := kernels.NewFloatMat(groups, n)
	for i := range scales.Data {
		scales.Data[i] = 0.5
	}

	// simulate AWQ zero-point storage: lane shuffle, then column packing
	zp := randomValues(rng, groups, n, bits)
	order := []int{0, 2, 4, 6, 1, 3, 5, 7}
	shuffled := kernels.NewIntMat(groups, n)
	for r := 0; r < len(zp.Data)/len(order); r++ {
		for j, p := range order {
			shuffled.Data[r*len(order)+j] = zp.Data[r*len(order)+p]
		}
	}
	qzeros, err := kernels.PackColumns(shuffled, bits, groups, n)
	require.NoError(t, err)

	src := Source{
		Method:    AWQ,
		QWeight:   qweight,
		QZeros:    qzeros,
		Scales:    scales,
		Bits:      bits,
		GroupSize: groupSize,
		Sym:       false,
	}

	w, err := Repack(src, false)
	require.NoError(t, err)

	require.False(t, w.QZeros.Empty())
	require.Equal(t, groups, w.QZeros.Rows)
	require.Equal(t, n/pf, w.QZeros.Cols)
	require.Equal(t, k/kernels.TileSize, w.QWeight.Rows)

	// the canonical zero-points must match a natural-order repack exactly
	want, err := kernels.RepackZeroPoints(zp, groups, n, bits)
	require.NoError(t, err)
	require.Equal(t, want, w.QZeros)
}
