// Package marlin converts GPTQ- and AWQ-quantized weight matrices into the
// canonical packed layout the Marlin GEMM kernel consumes. The two source
// conventions disagree on packing axis, zero-point lane order, and group
// assignment; Repack reconciles all three and validates the shape and
// configuration preconditions the kernel requires.
package marlin

import (
	"log/slog"

	"github.com/jmorganca/marlin/kernels"
)

// Source describes a quantized weight in its on-disk layout. Method selects
// the packing convention: GPTQ packs QWeight along the input-feature axis and
// may carry an explicit per-channel group index, AWQ packs along the
// output-feature axis with implicit contiguous groups.
//
// Empty QZeros means the weight is symmetric; empty GIdx means groups are
// contiguous.
type Source struct {
	Method  Method
	QWeight kernels.IntMat   // packed integer weight
	QZeros  kernels.IntMat   // packed zero-points, empty = symmetric
	Scales  kernels.FloatMat // (groups, out_features)
	GIdx    []int32          // GPTQ only: input channel -> group

	Bits      int
	GroupSize int // -1 = one group spanning all input features
	DescAct   bool
	Sym       bool
}

// Weight is a repacked weight in canonical Marlin layout. It is produced once
// by Repack and never mutated afterward.
//
// Perm, GIdx and QZeros use emptiness as a sentinel: an empty Perm means
// identity, an empty GIdx means contiguous groups, and empty QZeros mean
// symmetric quantization. Consumers must not treat these as zero values.
type Weight struct {
	QWeight kernels.IntMat   // tile-major packed, (in/16, out*16/pf)
	QZeros  kernels.IntMat   // canonical layout, empty = symmetric
	Scales  kernels.FloatMat // canonical tile order
	GIdx    []int32
	Perm    []int32

	Bits int

	// IsFullK records whether this shard holds the complete input-feature
	// dimension. The kernel may only apply its full-K optimizations when true.
	IsFullK bool
}

// InFeatures returns the logical input-feature count of the repacked weight.
func (w *Weight) InFeatures() int {
	return w.QWeight.Rows * kernels.TileSize
}

// OutFeatures returns the logical output-feature count.
func (w *Weight) OutFeatures() int {
	return w.Scales.Cols
}

// Repack converts src into the canonical Marlin layout. shardedInFeatures
// must be true when src is a tensor-parallel shard holding only part of the
// input-feature dimension; combined with activation-order grouping this
// disables the kernel's full-K path.
//
// Repack is a pure transformation: it either returns a complete, internally
// consistent Weight or an error, with no partial results.
func Repack(src Source, shardedInFeatures bool) (*Weight, error) {
	if err := checkConfig(src.Bits, src.GroupSize, src.Method, src.Sym); err != nil {
		return nil, err
	}

	packFactor := kernels.PackFactor(src.Bits)
	inFeatures := src.QWeight.Rows
	outFeatures := src.QWeight.Cols
	if src.Method == AWQ {
		outFeatures *= packFactor
	} else {
		inFeatures *= packFactor
	}

	if src.GroupSize != -1 && inFeatures%src.GroupSize != 0 {
		return nil, configErrorf("number of input features (%d) not divisible by group size (%d)", inFeatures, src.GroupSize)
	}

	slog.Debug("repacking for marlin", "method", src.Method, "bits", src.Bits,
		"group_size", src.GroupSize, "in_features", inFeatures, "out_features", outFeatures)

	perm, gidx := buildPermutation(src.GIdx, src.DescAct, src.GroupSize)

	var repacked kernels.IntMat
	var err error
	if src.Method == AWQ {
		repacked, err = kernels.RepackColumnPacked(src.QWeight, inFeatures, outFeatures, src.Bits)
	} else {
		repacked, err = kernels.RepackRowPacked(src.QWeight, perm, inFeatures, outFeatures, src.Bits)
	}
	if err != nil {
		return nil, err
	}

	qzeros := src.QZeros
	if !qzeros.Empty() {
		groups := src.Scales.Rows
		if src.Method == AWQ {
			qzeros, err = awqToMarlinZeroPoints(qzeros, groups, outFeatures, src.Bits)
		} else {
			qzeros, err = gptqToMarlinZeroPoints(qzeros, groups, outFeatures, src.Bits)
		}
		if err != nil {
			return nil, err
		}
	}

	scales, err := kernels.RepackScales(src.Scales)
	if err != nil {
		return nil, err
	}

	isFullK := !(src.DescAct && src.GroupSize != -1 && shardedInFeatures)

	return &Weight{
		QWeight: repacked,
		QZeros:  qzeros,
		Scales:  scales,
		GIdx:    gidx,
		Perm:    perm,
		Bits:    src.Bits,
		IsFullK: isFullK,
	}, nil
}
