package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
)

type agent struct {
	discount    float32
	observation []float32
	gear        int32
	throttle    float32
	steer       []float32
}

func newAgent() *agent {
	return &agent{observation: make([]float32, 3), steer: make([]float32, 3)}
}

func agentTable(t *testing.T, a *agent) *Table {
	t.Helper()
	table, err := NewBuilder().
		Floats("0/observation/x", a.observation, Range{Min: -10, Max: 10}).
		Float("0/discount", &a.discount, Range{Min: 0, Max: 1}).
		Int("0/gear", &a.gear, Range{Min: 0, Max: 5}).
		FloatOutput("action/throttle", &a.throttle, Range{Min: -1, Max: 1}).
		FloatsOutput("action/steer", a.steer, Unbounded).
		Build()
	require.NoError(t, err)
	return table
}

func TestTableOrder(t *testing.T) {
	table := agentTable(t, newAgent())
	inputs := table.Inputs()
	require.Len(t, inputs, 3)
	assert.Equal(t, "0/discount", inputs[0].Name)
	assert.Equal(t, "0/gear", inputs[1].Name)
	assert.Equal(t, "0/observation/x", inputs[2].Name)
	assert.Equal(t, tensors.Spec{DType: tensors.Float32, Shape: []int64{1, 3}}.String(), inputs[2].Tensor.Spec().String())
	assert.Equal(t, tensors.Int32, inputs[1].Tensor.DType())

	outputs := table.Outputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "action/steer", outputs[0].Name)
	assert.Equal(t, "action/throttle", outputs[1].Name)
}

func TestTableMatchesSignature(t *testing.T) {
	float := func(name string, shape ...int64) signature.ModelPort {
		return signature.ModelPort{Name: name, Tensor: tensors.NamedSpec{ID: name, Spec: tensors.Spec{DType: tensors.Float32, Shape: shape}}}
	}
	sig := signature.New(
		[]signature.ModelPort{float("0/observation/x", 1, 3), float("0/discount", 1)},
		[]signature.ModelPort{float("action/throttle", 1)},
	)
	a := newAgent()
	table, err := NewBuilder().
		Floats("0/observation/x", a.observation, Unbounded).
		Float("0/discount", &a.discount, Unbounded).
		FloatOutput("action/throttle", &a.throttle, Unbounded).
		Build()
	require.NoError(t, err)

	_, err = signature.ValidateRequest(signature.Input, sig.Inputs, table.Inputs())
	assert.NoError(t, err)
	_, err = signature.ValidateRequest(signature.Output, sig.Outputs, table.Outputs())
	assert.NoError(t, err)
}

func TestPushPull(t *testing.T) {
	a := newAgent()
	table := agentTable(t, a)

	a.discount = 0.5
	a.gear = 3
	copy(a.observation, []float32{-2, 0, 3.5})
	require.NoError(t, table.Push())
	inputs := table.Inputs()
	assert.Equal(t, []float32{0.5}, inputs[0].Tensor.Float32s())
	assert.Equal(t, []int32{3}, inputs[1].Tensor.Int32s())
	assert.Equal(t, []float32{-2, 0, 3.5}, inputs[2].Tensor.Float32s())

	outputs := table.Outputs()
	copy(outputs[0].Tensor.Float32s(), []float32{-1, 0, 1})
	outputs[1].Tensor.Float32s()[0] = 7
	table.Pull()
	assert.Equal(t, []float32{-1, 0, 1}, a.steer)
	assert.Equal(t, float32(1), a.throttle, "clamped into range")
}

func TestPushRejectsOutOfRange(t *testing.T) {
	a := newAgent()
	table := agentTable(t, a)
	a.discount = 0.25
	require.NoError(t, table.Push())

	a.discount = 0.75
	a.gear = 9
	err := table.Push()
	assert.ErrorContains(t, err, `"0/gear"`)
	// nothing was written
	assert.Equal(t, []float32{0.25}, table.Inputs()[0].Tensor.Float32s())
}

func TestBuildErrors(t *testing.T) {
	var f float32
	var i int32
	_, err := NewBuilder().Float("", &f, Unbounded).Build()
	assert.ErrorContains(t, err, "empty name")

	_, err = NewBuilder().Float("x", &f, Unbounded).Int("x", &i, Unbounded).Build()
	assert.ErrorContains(t, err, "bound twice")

	_, err = NewBuilder().Float("x", &f, Range{Min: 1, Max: 0}).Build()
	assert.ErrorContains(t, err, "invalid range")

	_, err = NewBuilder().Floats("x", nil, Unbounded).Build()
	assert.ErrorContains(t, err, "no values")

	_, err = NewBuilder().Float("0/discount", nil, Unbounded).Build()
	assert.ErrorContains(t, err, `input "0/discount" is bound to a nil pointer`)
	_, err = NewBuilder().Int("0/gear", nil, Unbounded).Build()
	assert.ErrorContains(t, err, "nil pointer")
	_, err = NewBuilder().FloatOutput("action/throttle", nil, Unbounded).Build()
	assert.ErrorContains(t, err, `output "action/throttle" is bound to a nil pointer`)
	_, err = NewBuilder().IntOutput("action/gear", nil, Unbounded).Build()
	assert.ErrorContains(t, err, "nil pointer")

	// the same name may be an input and an output
	_, err = NewBuilder().Float("x", &f, Unbounded).FloatOutput("x", &f, Unbounded).Build()
	assert.NoError(t, err)
}
