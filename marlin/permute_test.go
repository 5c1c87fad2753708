package marlin

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPermutationSortsGroups(t *testing.T) {
	// activation-order assignment: groups scattered over channels
	rng := rand.New(rand.NewSource(8))
	gidx := make([]int32, 256)
	for i := range gidx {
		gidx[i] = int32(rng.Intn(8))
	}

	perm, sorted := buildPermutation(gidx, true, 32)
	require.Len(t, perm, 256)
	require.Len(t, sorted, 256)

	// perm applied to gidx yields contiguous groups
	for i := 1; i < len(sorted); i++ {
		require.LessOrEqual(t, sorted[i-1], sorted[i])
	}
	for i, p := range perm {
		require.Equal(t, gidx[p], sorted[i])
	}

	// perm is a permutation of all channels
	seen := make(map[int32]bool, len(perm))
	for _, p := range perm {
		require.False(t, seen[p])
		seen[p] = true
	}
}

func TestBuildPermutationStable(t *testing.T) {
	gidx := []int32{1, 0, 1, 0}
	perm, sorted := buildPermutation(gidx, true, 32)
	require.Equal(t, []int32{1, 3, 0, 2}, perm)
	require.Equal(t, []int32{0, 0, 1, 1}, sorted)
}

func TestBuildPermutationSentinels(t *testing.T) {
	gidx := []int32{0, 0, 1, 1}

	// not activation-ordered
	perm, sorted := buildPermutation(gidx, false, 32)
	require.Empty(t, perm)
	require.Empty(t, sorted)

	// whole-row group
	perm, sorted = buildPermutation(gidx, true, -1)
	require.Empty(t, perm)
	require.Empty(t, sorted)

	// no explicit group index
	perm, sorted = buildPermutation(nil, true, 32)
	require.Empty(t, perm)
	require.Empty(t, sorted)
}
