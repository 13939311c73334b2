package ml

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Tensor is an immutable, row-major N-dimensional float32 array. A Tensor never aliases memory it
// did not allocate.
type Tensor struct {
	shape   []int
	strides []int
	data    []float32
}

// NewTensor copies data into a tensor of the given shape. Zero sized dimensions are allowed, in
// which case data must be empty.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.New("tensor must have at least one dimension")
	}
	size := 1
	for i, d := range shape {
		if d < 0 {
			return nil, errors.Errorf("dimension %d of shape %v is negative", i, shape)
		}
		size *= d
	}
	if size != len(data) {
		return nil, errors.Errorf("shape %v holds %d values but %d were given", shape, size, len(data))
	}
	owned := make([]float32, len(data))
	copy(owned, data)
	return newTensor(append([]int(nil), shape...), owned), nil
}

func newTensor(shape []int, data []float32) *Tensor {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return &Tensor{shape: shape, strides: strides, data: data}
}

// FromDense copies a gorgonia tensor of any numeric type into a float32 Tensor. Views are
// materialized first.
func FromDense(d *tensor.Dense) (*Tensor, error) {
	if d == nil {
		return nil, errors.New("nil tensor")
	}
	if d.IsMaterializable() {
		mat, ok := d.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("materialized tensor is %T, not *tensor.Dense", d.Materialize())
		}
		d = mat
	}
	data, err := ToFloat32Slice(d.Data())
	if err != nil {
		return nil, err
	}
	shape := []int(d.Shape().Clone())
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	return NewTensor(shape, data)
}

// Dense returns a gorgonia copy of t. Empty tensors have no gorgonia form.
func (t *Tensor) Dense() (*tensor.Dense, error) {
	if len(t.data) == 0 {
		return nil, errors.Errorf("cannot build a dense tensor with shape %v", t.shape)
	}
	backing := make([]float32, len(t.data))
	copy(backing, t.data)
	return tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(backing)), nil
}

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Dims is the number of dimensions.
func (t *Tensor) Dims() int { return len(t.shape) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Stride returns the element distance between consecutive indices of dimension i.
func (t *Tensor) Stride(i int) int { return t.strides[i] }

// Len is the total number of values.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns a copy of the values in row-major order.
func (t *Tensor) Data() []float32 {
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out
}

// Flat returns the value at row-major offset i.
func (t *Tensor) Flat(i int) float32 { return t.data[i] }

// At returns the value at the given index.
func (t *Tensor) At(idx ...int) (float32, error) {
	if len(idx) != len(t.shape) {
		return 0, errors.Errorf("index %v has %d coordinates but tensor has %d dimensions", idx, len(idx), len(t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			return 0, errors.Errorf("index %v out of range for shape %v", idx, t.shape)
		}
		off += v * t.strides[i]
	}
	return t.data[off], nil
}

// ArgmaxAlong scans n values starting at offset, stride apart, and returns the index (0..n-1) of
// the largest along with the value. The earliest index wins ties.
func (t *Tensor) ArgmaxAlong(offset, stride, n int) (int, float32) {
	best := -1
	var bestVal float32
	for i := 0; i < n; i++ {
		v := t.data[offset+i*stride]
		if best < 0 || v > bestVal || (math.IsNaN(float64(bestVal)) && !math.IsNaN(float64(v))) {
			best, bestVal = i, v
		}
	}
	return best, bestVal
}

// MatchesShape reports whether t fits want, where a non-positive entry in want accepts any size.
func (t *Tensor) MatchesShape(want []int) bool {
	if len(want) != len(t.shape) {
		return false
	}
	for i, w := range want {
		if w > 0 && w != t.shape[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}
