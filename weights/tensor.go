package weights

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Tensor is one materialized tensor: raw little-endian data plus enough
// metadata to interpret it.
type Tensor struct {
	Name  string
	DType string
	Shape []int

	data []byte
}

// NewTensor wraps raw little-endian data as a tensor. The data length must
// match the shape and dtype.
func NewTensor(name, dtype string, shape []int, data []byte) (*Tensor, error) {
	t := &Tensor{Name: name, DType: dtype, Shape: shape, data: data}
	es, err := elemSize(dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != t.Elems()*es {
		return nil, fmt.Errorf("weights: %s: %d bytes of data for shape %v (%s)", name, len(data), shape, dtype)
	}
	return t, nil
}

// NewInt32 builds an I32 tensor from values.
func NewInt32(name string, shape []int, values []int32) (*Tensor, error) {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
	}
	return NewTensor(name, "I32", shape, data)
}

// NewFloat32 builds an F32 tensor from values.
func NewFloat32(name string, shape []int, values []float32) (*Tensor, error) {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return NewTensor(name, "F32", shape, data)
}

func elemSize(dtype string) (int, error) {
	switch dtype {
	case "F16", "BF16":
		return 2, nil
	case "F32", "I32", "U32":
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown data type: %s", dtype)
	}
}

// Elems returns the number of elements.
func (t *Tensor) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Float32s decodes the tensor into float32 values. F16 and BF16 data is
// widened the same way the model converter does it.
func (t *Tensor) Float32s() ([]float32, error) {
	switch t.DType {
	case "F32":
		f32s := make([]float32, t.Elems())
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:]))
		}
		return f32s, nil
	case "F16":
		f32s := make([]float32, t.Elems())
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(t.data[i*2:])).Float32()
		}
		return f32s, nil
	case "BF16":
		return bfloat16.DecodeFloat32(t.data), nil
	default:
		return nil, fmt.Errorf("weights: %s: cannot decode %s as float32", t.Name, t.DType)
	}
}

// Int32s decodes the tensor into int32 values.
func (t *Tensor) Int32s() ([]int32, error) {
	switch t.DType {
	case "I32", "U32":
		i32s := make([]int32, t.Elems())
		for i := range i32s {
			i32s[i] = int32(binary.LittleEndian.Uint32(t.data[i*4:]))
		}
		return i32s, nil
	default:
		return nil, fmt.Errorf("weights: %s: cannot decode %s as int32", t.Name, t.DType)
	}
}

// narrow returns the [start, start+size) slice of t along dim as a new tensor.
func (t *Tensor) narrow(dim, start, size int) (*Tensor, error) {
	es, err := elemSize(t.DType)
	if err != nil {
		return nil, err
	}

	// bytes per index step along dim
	inner := es
	for _, d := range t.Shape[dim+1:] {
		inner *= d
	}
	outer := 1
	for _, d := range t.Shape[:dim] {
		outer *= d
	}

	shape := slices.Clone(t.Shape)
	shape[dim] = size

	data := make([]byte, 0, outer*size*inner)
	stride := t.Shape[dim] * inner
	for o := 0; o < outer; o++ {
		base := o*stride + start*inner
		data = append(data, t.data[base:base+size*inner]...)
	}

	return &Tensor{Name: t.Name, DType: t.DType, Shape: shape, data: data}, nil
}

// Concat joins tensors along dim. All other dimensions and dtypes must match.
func Concat(ts []*Tensor, dim int) (*Tensor, error) {
	if len(ts) == 1 {
		return ts[0], nil
	}

	first := ts[0]
	es, err := elemSize(first.DType)
	if err != nil {
		return nil, err
	}

	shape := slices.Clone(first.Shape)
	for _, t := range ts[1:] {
		if t.DType != first.DType || len(t.Shape) != len(first.Shape) {
			return nil, fmt.Errorf("weights: cannot concatenate %s and %s", first.Name, t.Name)
		}
		for d := range t.Shape {
			if d != dim && t.Shape[d] != first.Shape[d] {
				return nil, fmt.Errorf("weights: cannot concatenate %s and %s along dim %d", first.Name, t.Name, dim)
			}
		}
		shape[dim] += t.Shape[dim]
	}

	inner := es
	for _, d := range first.Shape[dim+1:] {
		inner *= d
	}
	outer := 1
	for _, d := range first.Shape[:dim] {
		outer *= d
	}

	data := make([]byte, 0, outer*shape[dim]*inner)
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			stride := t.Shape[dim] * inner
			data = append(data, t.data[o*stride:(o+1)*stride]...)
		}
	}

	return &Tensor{Name: first.Name, DType: first.DType, Shape: shape, data: data}, nil
}
