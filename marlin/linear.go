package marlin

import (
	"fmt"

	"github.com/jmorganca/marlin/kernels"
)

// Linear applies a repacked Marlin weight to activations. It owns the kernel
// workspace and the scalar-type selection; the weight itself stays immutable.
type Linear struct {
	weight    *Weight
	bias      []float32
	quantType kernels.ScalarType
	workspace []int32

	inFeatures  int
	outFeatures int
}

// NewLinear validates the repacked weight against the kernel's tile
// configurations and prepares it for inference. bias may be nil.
func NewLinear(w *Weight, bias []float32) (*Linear, error) {
	inFeatures := w.InFeatures()
	outFeatures := w.OutFeatures()

	if err := checkValidShape(inFeatures, outFeatures); err != nil {
		return nil, err
	}

	var quantType kernels.ScalarType
	switch {
	case w.Bits == 4 && !w.QZeros.Empty():
		quantType = kernels.Uint4
	case w.Bits == 8 && !w.QZeros.Empty():
		quantType = kernels.Uint8
	case w.Bits == 4:
		quantType = kernels.Uint4B8
	case w.Bits == 8:
		quantType = kernels.Uint8B128
	default:
		return nil, configErrorf("linear layer supports 4- and 8-bit weights, got %d", w.Bits)
	}

	if bias != nil && len(bias) != outFeatures {
		return nil, fmt.Errorf("marlin: bias has %d elements, want %d", len(bias), outFeatures)
	}

	return &Linear{
		weight:      w,
		bias:        bias,
		quantType:   quantType,
		workspace:   make([]int32, outFeatures/64*16),
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
	}, nil
}

// InFeatures returns the layer's input width.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the layer's output width.
func (l *Linear) OutFeatures() int { return l.outFeatures }

// Forward multiplies activations by the weight. x is row-major with any
// number of leading rows; len(x) must be a multiple of InFeatures.
func (l *Linear) Forward(x []float32) ([]float32, error) {
	if len(x)%l.inFeatures != 0 {
		return nil, fmt.Errorf("marlin: %d activations not divisible by %d input features", len(x), l.inFeatures)
	}
	m := len(x) / l.inFeatures

	w := l.weight
	out, err := kernels.Gemm(x, w.QWeight, w.Scales, w.QZeros, w.GIdx, w.Perm,
		l.workspace, l.quantType, m, l.outFeatures, l.inFeatures, w.IsFullK, !w.QZeros.Empty())
	if err != nil {
		return nil, err
	}

	if l.bias != nil {
		for r := 0; r < m; r++ {
			for j, b := range l.bias {
				out[r*l.outFeatures+j] += b
			}
		}
	}

	return out, nil
}

// checkValidShape enforces the kernel's two thread-tile configurations. This
// is a hard precondition; an off shape has no valid kernel launch.
func checkValidShape(inFeatures, outFeatures int) error {
	if (inFeatures%128 != 0 || outFeatures%64 != 0) &&
		(inFeatures%64 != 0 || outFeatures%128 != 0) {
		return configErrorf("no valid kernel thread configuration for weight matrix with shape (%d, %d); shape elements must be divisible by (128, 64) or (64, 128)", outFeatures, inFeatures)
	}
	return nil
}
