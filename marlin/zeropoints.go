package marlin

import "github.com/jmorganca/marlin/kernels"

// AWQ stores the sub-word lanes of a packed word in a fixed shuffle order
// rather than natural order, matching its dequantizer's register layout.
func awqLaneOrder(bits int) ([]int, error) {
	switch bits {
	case 4:
		return []int{0, 2, 4, 6, 1, 3, 5, 7}, nil
	case 8:
		return []int{0, 2, 1, 3}, nil
	}
	return nil, configErrorf("zero-point repacking requires 4- or 8-bit weights, got %d", bits)
}

func inversePerm(p []int) []int {
	inv := make([]int, len(p))
	for i, v := range p {
		inv[v] = i
	}
	return inv
}

// awqToMarlinZeroPoints converts column-packed AWQ zero-points of logical
// shape (groups, n) to the canonical layout. Order matters: unpack, undo the
// AWQ lane shuffle to restore natural ordering, then repack canonically.
func awqToMarlinZeroPoints(packed kernels.IntMat, groups, n, bits int) (kernels.IntMat, error) {
	unpacked, err := kernels.UnpackColumns(packed, bits, groups, n)
	if err != nil {
		return kernels.IntMat{}, err
	}

	order, err := awqLaneOrder(bits)
	if err != nil {
		return kernels.IntMat{}, err
	}

	undo := inversePerm(order)
	flat := make([]int32, len(unpacked.Data))
	l := len(undo)
	for r := 0; r < len(flat)/l; r++ {
		for j, p := range undo {
			flat[r*l+j] = unpacked.Data[r*l+p]
		}
	}

	natural := kernels.IntMat{Rows: groups, Cols: n, Data: flat}
	return kernels.RepackZeroPoints(natural, groups, n, bits)
}

// gptqToMarlinZeroPoints converts row-packed zero-points, which are stored in
// natural lane order already, so no shuffle-undo step runs between unpacking
// and the canonical repack.
func gptqToMarlinZeroPoints(packed kernels.IntMat, groups, n, bits int) (kernels.IntMat, error) {
	unpacked, err := kernels.UnpackColumns(packed, bits, groups, n)
	if err != nil {
		return kernels.IntMat{}, err
	}
	return kernels.RepackZeroPoints(unpacked, groups, n, bits)
}
