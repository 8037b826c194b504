package tensors

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// DataType is the element type of a Tensor.
type DataType int

const (
	Invalid DataType = iota
	Float32
	Int32
	// Float64 is only accepted by the custom operators, backends reject it at load time.
	Float64
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("invalid(%d)", int(d))
	}
}

// Size returns the width of one element in bytes.
func (d DataType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "float32", "float":
		return Float32, nil
	case "int32":
		return Int32, nil
	case "float64", "double":
		return Float64, nil
	}
	return Invalid, fmt.Errorf("unsupported data type %q", s)
}

// ElementCount is the product of the dimensions. It returns -1 if any dimension is unresolved.
func ElementCount(shape []int64) int64 {
	count := int64(1)
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		count *= d
	}
	return count
}

// Tensor is a typed, shaped, contiguous numeric buffer.
type Tensor struct {
	dtype DataType
	shape []int64
	data  []byte
}

// New allocates a zeroed tensor for the given spec. The spec must be concrete.
func New(spec Spec) (*Tensor, error) {
	if spec.DType.Size() == 0 {
		return nil, fmt.Errorf("cannot allocate tensor of type %s", spec.DType)
	}
	count := ElementCount(spec.Shape)
	if count < 0 {
		return nil, fmt.Errorf("cannot allocate tensor with unresolved shape %v", spec.Shape)
	}
	return &Tensor{
		dtype: spec.DType,
		shape: cloneShape(spec.Shape),
		data:  alignedBytes(int(count) * spec.DType.Size()),
	}, nil
}

// MustNew is New for specs known to be valid, it panics otherwise.
func MustNew(spec Spec) *Tensor {
	t, err := New(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// FromFloat32 creates a float32 tensor holding a copy of data.
func FromFloat32(shape []int64, data []float32) (*Tensor, error) {
	return fromSlice(Float32, shape, data)
}

// FromInt32 creates an int32 tensor holding a copy of data.
func FromInt32(shape []int64, data []int32) (*Tensor, error) {
	return fromSlice(Int32, shape, data)
}

func fromSlice[T float32 | int32 | float64](dtype DataType, shape []int64, data []T) (*Tensor, error) {
	t, err := New(Spec{DType: dtype, Shape: shape})
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != ElementCount(shape) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, ElementCount(shape), len(data))
	}
	copy(viewAs[T](t.data), data)
	return t, nil
}

// alignedBytes allocates through a uint64 slice so every element view is aligned.
func alignedBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

func viewAs[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(data) == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/size)
}

func cloneShape(shape []int64) []int64 {
	out := make([]int64, len(shape))
	copy(out, shape)
	return out
}

func (t *Tensor) DType() DataType { return t.dtype }

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() []int64 { return cloneShape(t.shape) }

func (t *Tensor) Spec() Spec { return Spec{DType: t.dtype, Shape: t.Shape()} }

// Len is the number of elements.
func (t *Tensor) Len() int { return len(t.data) / t.dtype.Size() }

// Bytes returns the backing buffer without copying.
func (t *Tensor) Bytes() []byte { return t.data }

func (t *Tensor) Float32s() []float32 {
	t.mustBe(Float32)
	return viewAs[float32](t.data)
}

func (t *Tensor) Int32s() []int32 {
	t.mustBe(Int32)
	return viewAs[int32](t.data)
}

func (t *Tensor) Float64s() []float64 {
	t.mustBe(Float64)
	return viewAs[float64](t.data)
}

func (t *Tensor) mustBe(dtype DataType) {
	if t.dtype != dtype {
		panic(fmt.Sprintf("tensor holds %s, not %s", t.dtype, dtype))
	}
}

// View reinterprets the buffer under another data type of the same width without copying.
// The returned tensor aliases t.
func (t *Tensor) View(dtype DataType) (*Tensor, error) {
	if dtype.Size() != t.dtype.Size() {
		return nil, fmt.Errorf("cannot view %s buffer as %s: element widths differ", t.dtype, dtype)
	}
	return &Tensor{dtype: dtype, shape: t.shape, data: t.data}, nil
}

// CopyFrom copies src into t. Data types and shapes must agree.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if src.dtype != t.dtype {
		return fmt.Errorf("cannot copy %s tensor into %s tensor", src.dtype, t.dtype)
	}
	if !equalShape(src.shape, t.shape) {
		return fmt.Errorf("cannot copy tensor of shape %v into shape %v", src.shape, t.shape)
	}
	copy(t.data, src.data)
	return nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{dtype: t.dtype, shape: t.Shape(), data: alignedBytes(len(t.data))}
	copy(out.data, t.data)
	return out
}

// Float64Values widens the contents for comparisons and encoding.
func (t *Tensor) Float64Values() []float64 {
	switch t.dtype {
	case Float32:
		return widen(t.Float32s())
	case Int32:
		return widen(t.Int32s())
	case Float64:
		out := make([]float64, t.Len())
		copy(out, t.Float64s())
		return out
	}
	return nil
}

// SetFloat64Values narrows values into the tensor's own type.
func (t *Tensor) SetFloat64Values(values []float64) error {
	if len(values) != t.Len() {
		return fmt.Errorf("tensor %s holds %d elements, got %d values", t.Spec(), t.Len(), len(values))
	}
	switch t.dtype {
	case Float32:
		narrow(values, t.Float32s())
	case Int32:
		narrow(values, t.Int32s())
	case Float64:
		copy(t.Float64s(), values)
	}
	return nil
}

func widen[T constraints.Integer | constraints.Float](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func narrow[T constraints.Integer | constraints.Float](in []float64, out []T) {
	for i, v := range in {
		out[i] = T(v)
	}
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s)", t.Spec())
}
