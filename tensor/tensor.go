package tensor

import (
	"fmt"
)

// Tensor is a dense float32 array with row-major layout.
// Shape is immutable after creation; Data may be mutated in place.
type Tensor struct {
	Shape   []int
	Strides []int
	Data    []float32
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) (*Tensor, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		Shape:   shapeCopy,
		Strides: calculateStrides(shapeCopy),
		Data:    make([]float32, n),
	}, nil
}

// FromData wraps an existing float32 slice. The slice is not copied; the
// caller must not resize it.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("data size %d doesn't match shape %v (expected %d)", len(data), shape, n)
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		Shape:   shapeCopy,
		Strides: calculateStrides(shapeCopy),
		Data:    data,
	}, nil
}

// NumElements returns the total element count.
func (t *Tensor) NumElements() int {
	return len(t.Data)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)

	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)

	return &Tensor{
		Shape:   shape,
		Strides: calculateStrides(shape),
		Data:    data,
	}
}

// Zero resets all elements to zero.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.offset(indices)]
}

// Set writes the element at the given multi-dimensional index.
func (t *Tensor) Set(v float32, indices ...int) {
	t.Data[t.offset(indices)] = v
}

// Reshape returns a view over the same data with a new shape. The element
// count must match.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape, len(t.Data), shape, n)
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		Shape:   shapeCopy,
		Strides: calculateStrides(shapeCopy),
		Data:    t.Data,
	}, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, len(t.Data))
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for %d-dimensional tensor", len(indices), len(t.Shape)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0, %d) in dimension %d", idx, t.Shape[i], i))
		}
		off += idx * t.Strides[i]
	}
	return off
}

func checkShape(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("shape cannot be empty")
	}
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("invalid shape dimension: %d", dim)
		}
		n *= dim
	}
	return n, nil
}

func calculateStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
