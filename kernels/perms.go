package kernels

// The canonical layout interleaves scale and zero-point columns so that each
// tensor-core fragment reads its operands contiguously. These tables are part
// of the kernel library's layout contract and must match the GEMM kernel
// bit for bit.

// scalePerm is the column permutation for per-group scales, applied to each
// run of 64 values of the flattened scale matrix.
func scalePerm() []int {
	perm := make([]int, 0, 64)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			perm = append(perm, i+8*j)
		}
	}
	return perm
}

// scalePermSingle is the column permutation used when a single group spans
// all input features, applied to each run of 32 values.
func scalePermSingle() []int {
	perm := make([]int, 0, 32)
	for i := 0; i < 4; i++ {
		for _, j := range []int{0, 1, 8, 9, 16, 17, 24, 25} {
			perm = append(perm, 2*i+j)
		}
	}
	return perm
}

// laneInterleave is the sub-word lane order of canonically packed zero-points.
func laneInterleave(bits int) []int {
	if bits == 4 {
		return []int{0, 2, 4, 6, 1, 3, 5, 7}
	}
	return []int{0, 2, 1, 3}
}

// invert returns the inverse permutation: invert(p)[p[i]] = i.
func invert(p []int) []int {
	inv := make([]int, len(p))
	for i, v := range p {
		inv[v] = i
	}
	return inv
}

// gatherRuns permutes each consecutive run of len(perm) values of src:
// dst[r*L+j] = src[r*L+perm[j]]. len(src) must be a multiple of len(perm).
func gatherRunsInt(src []int32, perm []int) []int32 {
	l := len(perm)
	dst := make([]int32, len(src))
	for r := 0; r < len(src)/l; r++ {
		for j, p := range perm {
			dst[r*l+j] = src[r*l+p]
		}
	}
	return dst
}
