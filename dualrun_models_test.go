package dualrun

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
	"github.com/knights-analytics/dualrun/testcases"
)

func writeModel(t *testing.T, model testcases.Model) string {
	t.Helper()
	dir, err := model.WriteDir(filepath.Join(t.TempDir(), model.Name), "model.onnx")
	require.NoError(t, err)
	return dir
}

func scenarioModel(t *testing.T, session *Session) {
	t.Helper()
	ctx := context.Background()
	sig, err := session.LoadModel(ctx, writeModel(t, testcases.Scenario()))
	require.NoError(t, err)
	assert.Equal(t, []string{"0/discount", "0/observation/x"}, sig.InputNames())
	assert.Equal(t, []string{"action/steer", "action/throttle"}, sig.OutputNames())

	inputs, err := signature.Allocate(sig.Inputs)
	require.NoError(t, err)
	outputs, err := signature.Allocate(sig.Outputs)
	require.NoError(t, err)
	require.NoError(t, session.PrepareModel(ctx, inputs, outputs))

	inputs[0].Tensor.Float32s()[0] = 0.25
	copy(inputs[1].Tensor.Float32s(), []float32{-2, 0, 3.5})
	require.NoError(t, session.RunModel(ctx, inputs, outputs))
	steer := append([]float32(nil), outputs[0].Tensor.Float32s()...)
	throttle := append([]float32(nil), outputs[1].Tensor.Float32s()...)
	assert.Equal(t, []float32{-1, 0, 1}, steer)
	assert.Equal(t, []float32{0.5}, throttle)

	// identical inputs give identical outputs
	require.NoError(t, session.RunModel(ctx, inputs, outputs))
	assert.Equal(t, steer, outputs[0].Tensor.Float32s())
	assert.Equal(t, throttle, outputs[1].Tensor.Float32s())

	renamed := []tensors.Named{{Name: "0/Discount", Tensor: inputs[0].Tensor}, inputs[1]}
	var portErr *signature.PortError
	require.ErrorAs(t, session.PrepareModel(ctx, renamed, outputs), &portErr)
	assert.Equal(t, 0, portErr.Index)
	assert.Panics(t, func() { _ = session.RunModel(ctx, inputs, outputs) })
}

func loadResetModel(t *testing.T, session *Session) {
	t.Helper()
	ctx := context.Background()
	_, err := session.LoadModel(ctx, writeModel(t, testcases.Scenario()))
	require.NoError(t, err)
	_, err = session.LoadModel(ctx, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, session.Signature().Empty())
	assert.Equal(t, Unloaded, session.State())
}

// resizedInputModel runs with an input whose dtype matches the prepared one but whose
// element count does not. Every backend must reject it and stay prepared.
func resizedInputModel(t *testing.T, session *Session) {
	t.Helper()
	ctx := context.Background()
	sig, err := session.LoadModel(ctx, writeModel(t, testcases.Scenario()))
	require.NoError(t, err)
	inputs, err := signature.Allocate(sig.Inputs)
	require.NoError(t, err)
	outputs, err := signature.Allocate(sig.Outputs)
	require.NoError(t, err)
	require.NoError(t, session.PrepareModel(ctx, inputs, outputs))

	short, err := tensors.FromFloat32([]int64{1, 2}, []float32{7, 7})
	require.NoError(t, err)
	resized := []tensors.Named{inputs[0], {Name: inputs[1].Name, Tensor: short}}
	err = session.RunModel(ctx, resized, outputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float32[1,2]")
	assert.Equal(t, Prepared, session.State())

	copy(inputs[1].Tensor.Float32s(), []float32{1, -1, 0})
	require.NoError(t, session.RunModel(ctx, inputs, outputs))
	assert.Equal(t, []float32{1, -1, 0}, outputs[0].Tensor.Float32s())
}
