package tensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocatesFromSpec(t *testing.T) {
	tensor, err := New(Spec{DType: Float32, Shape: []int64{2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 6, tensor.Len())
	assert.Len(t, tensor.Bytes(), 24)
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0}, tensor.Float32s())

	_, err = New(Spec{DType: Float32, Shape: []int64{-1, 3}})
	assert.Error(t, err)
	_, err = New(Spec{DType: Invalid, Shape: []int64{1}})
	assert.Error(t, err)
}

func TestFromSliceChecksLength(t *testing.T) {
	_, err := FromFloat32([]int64{1, 3}, []float32{1, 2})
	assert.Error(t, err)

	tensor, err := FromInt32([]int64{3}, []int32{1, -2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -2, 3}, tensor.Int32s())
	assert.Panics(t, func() { tensor.Float32s() })
}

func TestViewIsZeroCopy(t *testing.T) {
	tensor, err := FromFloat32([]int64{2}, []float32{1, -1})
	require.NoError(t, err)

	view, err := tensor.View(Int32)
	require.NoError(t, err)
	assert.Equal(t, int32(0x3f800000), view.Int32s()[0])

	view.Int32s()[1] = 0x40000000
	assert.Equal(t, float32(2), tensor.Float32s()[1])

	_, err = tensor.View(Float64)
	assert.Error(t, err)
}

func TestCopyFromIsChecked(t *testing.T) {
	dst := MustNew(Spec{DType: Float32, Shape: []int64{1, 3}})
	src, err := FromFloat32([]int64{1, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, []float32{1, 2, 3}, dst.Float32s())

	wrongType := MustNew(Spec{DType: Int32, Shape: []int64{1, 3}})
	assert.Error(t, dst.CopyFrom(wrongType))
	wrongShape := MustNew(Spec{DType: Float32, Shape: []int64{3}})
	assert.Error(t, dst.CopyFrom(wrongShape))
}

func TestCloneDoesNotAlias(t *testing.T) {
	tensor, err := FromFloat32([]int64{2}, []float32{1, 2})
	require.NoError(t, err)
	clone := tensor.Clone()
	clone.Float32s()[0] = 5
	assert.Equal(t, float32(1), tensor.Float32s()[0])
}

func TestSpecCompatible(t *testing.T) {
	port := Spec{DType: Float32, Shape: []int64{1, 3}}
	assert.NoError(t, port.Compatible(Spec{DType: Float32, Shape: []int64{1, 3}}))
	assert.ErrorContains(t, port.Compatible(Spec{DType: Int32, Shape: []int64{1, 3}}), "data type int32 does not match float32")
	assert.ErrorContains(t, port.Compatible(Spec{DType: Float32, Shape: []int64{1, 4}}), "dimension 1")
	assert.ErrorContains(t, port.Compatible(Spec{DType: Float32, Shape: []int64{3}}), "rank")

	unresolved := Spec{DType: Float32, Shape: []int64{-1, 3}}
	assert.ErrorContains(t, unresolved.Compatible(port), "unresolved")
	assert.False(t, unresolved.Concrete())
	assert.Equal(t, "float32[-1,3]", unresolved.String())
}

func TestValueRoundTrip(t *testing.T) {
	tensor, err := FromInt32([]int64{2, 1}, []int32{4, -7})
	require.NoError(t, err)
	value := ToValue(tensor)
	assert.Equal(t, "int32", value.DType)

	back, err := value.Tensor()
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32s(), back.Int32s())
	assert.Equal(t, tensor.Shape(), back.Shape())

	_, err = Value{DType: "uint8", Shape: []int64{1}, Data: []float64{1}}.Tensor()
	assert.Error(t, err)
}
