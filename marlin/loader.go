package marlin

import (
	"fmt"
	"slices"

	"github.com/jmorganca/marlin/kernels"
	"github.com/jmorganca/marlin/weights"
)

// Store is the subset of the checkpoint storage the loader needs. It is
// satisfied by *weights.Store.
type Store interface {
	Has(name string) bool
	Tensor(name string) (*weights.Tensor, error)
	Sharded(name string, dim int) (*weights.Tensor, error)
	PackedSharded(name string, dim int, blockSizes []int) (*weights.Tensor, error)
	WorldSize() int
}

// Loader fetches GPTQ- or AWQ-quantized tensors from a checkpoint and repacks
// them for the Marlin kernel. One Loader serves every layer of a model; the
// quantization parameters are uniform across the checkpoint.
type Loader struct {
	Bits      int
	GroupSize int
	DescAct   bool
	Method    Method
	Sym       bool
}

// DiscoverParams overrides the loader's parameters from the legacy scalar
// tensors some quantizers embed in the checkpoint. Older artifacts predate
// the symmetry marker and were quantized asymmetrically without exception.
func (l *Loader) DiscoverParams(store Store) error {
	if !store.Has("gptq_bits") || !store.Has("gptq_groupsize") {
		return nil
	}

	bits, err := scalarInt(store, "gptq_bits")
	if err != nil {
		return err
	}
	groupSize, err := scalarInt(store, "gptq_groupsize")
	if err != nil {
		return err
	}

	sym := false
	if store.Has("gptq_sym") {
		v, err := scalarInt(store, "gptq_sym")
		if err != nil {
			return err
		}
		sym = v != 0
	}

	l.Bits = bits
	l.GroupSize = groupSize
	l.DescAct = false
	l.Sym = sym
	l.Method = GPTQ

	return nil
}

// Weights loads and repacks the full weight at prefix, e.g. an embedding
// projection that is never sharded.
func (l *Loader) Weights(store Store, prefix string) (*Weight, error) {
	return l.load(store, prefix, func(name string) (*weights.Tensor, error) {
		return store.Tensor(name)
	}, false)
}

// WeightsColPacked loads this rank's slice of a fused, column-packed weight
// (e.g. qkv) whose output blocks have the given sizes, then repacks it.
func (l *Loader) WeightsColPacked(store Store, prefix string, blockSizes []int) (*Weight, error) {
	return l.load(store, prefix, func(name string) (*weights.Tensor, error) {
		return store.PackedSharded(name, 1, blockSizes)
	}, false)
}

// WeightsMultiCol loads this rank's column slices of several weights that are
// fused at inference time (e.g. gate and up projections), concatenates them
// along the output axis, and repacks the result. All prefixes must agree on
// their group index.
func (l *Loader) WeightsMultiCol(store Store, prefixes []string) (*Weight, error) {
	fetch := func(suffix string) (*weights.Tensor, error) {
		parts := make([]*weights.Tensor, 0, len(prefixes))
		for _, p := range prefixes {
			t, err := store.Sharded(p+suffix, 1)
			if err != nil {
				return nil, err
			}
			parts = append(parts, t)
		}
		return weights.Concat(parts, 1)
	}

	qweight, err := fetch(".qweight")
	if err != nil {
		return nil, l.wrapMissing(err)
	}
	scales, err := fetch(".scales")
	if err != nil {
		return nil, err
	}

	var qzeros *weights.Tensor
	if !l.Sym {
		if qzeros, err = fetch(".qzeros"); err != nil {
			return nil, err
		}
	}

	var gidx *weights.Tensor
	if l.Method != AWQ {
		gidxs := make([][]int32, 0, len(prefixes))
		for _, p := range prefixes {
			t, err := store.Tensor(p + ".g_idx")
			if err != nil {
				return nil, err
			}
			v, err := t.Int32s()
			if err != nil {
				return nil, err
			}
			gidxs = append(gidxs, v)
			if gidx == nil {
				gidx = t
			}
		}
		for _, v := range gidxs[1:] {
			if !slices.Equal(v, gidxs[0]) {
				return nil, fmt.Errorf("marlin: %v: group indexes of fused weights differ", prefixes)
			}
		}
	}

	return l.repackTensors(qweight, qzeros, scales, gidx, false)
}

// WeightsRow loads this rank's row slice of the weight at prefix and repacks
// it. Under activation-order grouping or whole-row groups the scales and
// zero-points cover the full input dimension and are kept unsharded.
func (l *Loader) WeightsRow(store Store, prefix string) (*Weight, error) {
	qweight, err := store.Sharded(prefix+".qweight", 0)
	if err != nil {
		return nil, l.wrapMissing(err)
	}

	wholeInput := l.DescAct || l.GroupSize == -1

	var qzeros *weights.Tensor
	if !l.Sym {
		if wholeInput {
			qzeros, err = store.Tensor(prefix + ".qzeros")
		} else {
			qzeros, err = store.Sharded(prefix+".qzeros", 0)
		}
		if err != nil {
			return nil, err
		}
	}

	var gidx *weights.Tensor
	if l.Method != AWQ {
		if gidx, err = store.Sharded(prefix+".g_idx", 0); err != nil {
			return nil, err
		}
	}

	var scales *weights.Tensor
	if wholeInput {
		scales, err = store.Tensor(prefix + ".scales")
	} else {
		scales, err = store.Sharded(prefix+".scales", 0)
	}
	if err != nil {
		return nil, err
	}

	return l.repackTensors(qweight, qzeros, scales, gidx, store.WorldSize() > 1)
}

func (l *Loader) load(store Store, prefix string, fetch func(string) (*weights.Tensor, error), shardedInFeatures bool) (*Weight, error) {
	qweight, err := fetch(prefix + ".qweight")
	if err != nil {
		return nil, l.wrapMissing(err)
	}

	var qzeros *weights.Tensor
	if !l.Sym {
		if qzeros, err = fetch(prefix + ".qzeros"); err != nil {
			return nil, err
		}
	}

	var gidx *weights.Tensor
	if l.Method != AWQ {
		if gidx, err = store.Tensor(prefix + ".g_idx"); err != nil {
			return nil, err
		}
	}

	scales, err := fetch(prefix + ".scales")
	if err != nil {
		return nil, err
	}

	return l.repackTensors(qweight, qzeros, scales, gidx, shardedInFeatures)
}

// repackTensors converts fetched tensors into a Source and runs the pipeline.
func (l *Loader) repackTensors(qweight, qzeros, scales, gidx *weights.Tensor, shardedInFeatures bool) (*Weight, error) {
	src := Source{
		Method:    l.Method,
		Bits:      l.Bits,
		GroupSize: l.GroupSize,
		DescAct:   l.DescAct,
		Sym:       l.Sym,
	}

	var err error
	if src.QWeight, err = intMat(qweight); err != nil {
		return nil, err
	}
	if src.Scales, err = floatMat(scales); err != nil {
		return nil, err
	}
	if qzeros != nil {
		if src.QZeros, err = intMat(qzeros); err != nil {
			return nil, err
		}
	}
	if gidx != nil {
		if src.GIdx, err = gidx.Int32s(); err != nil {
			return nil, err
		}
	}

	return Repack(src, shardedInFeatures)
}

// wrapMissing adds the remediation hint for a missing quantized weight: the
// usual cause is pointing the loader at a model that was never quantized.
func (l *Loader) wrapMissing(err error) error {
	return fmt.Errorf("cannot load %s weight for Marlin repacking, make sure the model is already quantized: %w", l.Method, err)
}

func scalarInt(store Store, name string) (int, error) {
	t, err := store.Tensor(name)
	if err != nil {
		return 0, err
	}
	v, err := t.Int32s()
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("marlin: %s: expected scalar, got shape %v", name, t.Shape)
	}
	return int(v[0]), nil
}

func intMat(t *weights.Tensor) (kernels.IntMat, error) {
	if len(t.Shape) != 2 {
		return kernels.IntMat{}, fmt.Errorf("marlin: %s: expected matrix, got shape %v", t.Name, t.Shape)
	}
	data, err := t.Int32s()
	if err != nil {
		return kernels.IntMat{}, err
	}
	return kernels.IntMat{Rows: t.Shape[0], Cols: t.Shape[1], Data: data}, nil
}

func floatMat(t *weights.Tensor) (kernels.FloatMat, error) {
	if len(t.Shape) != 2 {
		return kernels.FloatMat{}, fmt.Errorf("marlin: %s: expected matrix, got shape %v", t.Name, t.Shape)
	}
	data, err := t.Float32s()
	if err != nil {
		return kernels.FloatMat{}, err
	}
	return kernels.FloatMat{Rows: t.Shape[0], Cols: t.Shape[1], Data: data}, nil
}
