package marlin

import "sort"

// buildPermutation computes the input-channel reorder required when groups
// were assigned in activation order. The returned perm stable-sorts channels
// by group id so channels sharing a group become contiguous, and gidx is the
// group index rebased into the new channel order (non-decreasing).
//
// When activation-order grouping does not apply, both results are empty:
// identity permutation and implicit contiguous groups.
func buildPermutation(gidx []int32, descAct bool, groupSize int) (perm, sorted []int32) {
	if len(gidx) == 0 || !descAct || groupSize == -1 {
		return nil, nil
	}

	perm = make([]int32, len(gidx))
	for i := range perm {
		perm[i] = int32(i)
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return gidx[perm[i]] < gidx[perm[j]]
	})

	sorted = make([]int32, len(gidx))
	for i, p := range perm {
		sorted[i] = gidx[p]
	}

	return perm, sorted
}
