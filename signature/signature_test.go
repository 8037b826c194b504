package signature

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/dualrun/tensors"
)

func port(name, id string, dtype tensors.DataType, shape ...int64) ModelPort {
	return ModelPort{Name: name, Tensor: tensors.NamedSpec{ID: id, Spec: tensors.Spec{DType: dtype, Shape: shape}}}
}

func scenarioSignature() ModelSignature {
	return New(
		[]ModelPort{
			port("0/observation/x", "1", tensors.Float32, 1, 3),
			port("0/discount", "0", tensors.Float32, 1),
		},
		[]ModelPort{port("action/throttle", "2", tensors.Float32, 1)},
	)
}

func request(t *testing.T, entries ...tensors.Named) []tensors.Named {
	t.Helper()
	return entries
}

func named(t *testing.T, name string, dtype tensors.DataType, shape ...int64) tensors.Named {
	t.Helper()
	tensor, err := tensors.New(tensors.Spec{DType: dtype, Shape: shape})
	require.NoError(t, err)
	return tensors.Named{Name: name, Tensor: tensor}
}

func TestNewSortsPorts(t *testing.T) {
	sig := scenarioSignature()
	assert.Equal(t, []string{"0/discount", "0/observation/x"}, sig.InputNames())
	assert.Equal(t, []string{"action/throttle"}, sig.OutputNames())
	assert.False(t, sig.Empty())

	clone := sig.Clone()
	assert.Empty(t, cmp.Diff(sig, clone))
	clone.Inputs[0].Tensor.Spec.Shape[0] = 7
	assert.Equal(t, int64(1), sig.Inputs[0].Tensor.Spec.Shape[0])

	sig.Clear()
	assert.True(t, sig.Empty())
}

func TestValidateRequestMatches(t *testing.T) {
	sig := scenarioSignature()
	handles, err := ValidateRequest(Input, sig.Inputs, request(t,
		named(t, "0/discount", tensors.Float32, 1),
		named(t, "0/observation/x", tensors.Float32, 1, 3),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, handles)
}

func TestValidateRequestCount(t *testing.T) {
	sig := scenarioSignature()
	_, err := ValidateRequest(Output, sig.Outputs, nil)
	var countErr *CountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 1, countErr.Expected)
	assert.Equal(t, 0, countErr.Actual)
	assert.Contains(t, err.Error(), "expects 1 tensors, got 0")
}

func TestValidateRequestOrderContract(t *testing.T) {
	sig := scenarioSignature()
	// the right set of names in the wrong order is still rejected
	_, err := ValidateRequest(Input, sig.Inputs, request(t,
		named(t, "0/observation/x", tensors.Float32, 1, 3),
		named(t, "0/discount", tensors.Float32, 1),
	))
	var portErr *PortError
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, 0, portErr.Index)
	assert.Equal(t, "0/discount", portErr.ExpectedName)
	assert.Equal(t, "0/observation/x", portErr.ActualName)

	renamed := request(t,
		named(t, "0/Discount", tensors.Float32, 1),
		named(t, "0/observation/x", tensors.Float32, 1, 3),
	)
	Order(renamed)
	_, err = ValidateRequest(Input, sig.Inputs, renamed)
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, 0, portErr.Index)
	assert.Contains(t, err.Error(), "Input 0")
}

func TestValidateRequestSpec(t *testing.T) {
	sig := scenarioSignature()
	cases := map[string]tensors.Named{
		"dtype": named(t, "0/observation/x", tensors.Int32, 1, 3),
		"shape": named(t, "0/observation/x", tensors.Float32, 1, 4),
	}
	for name, wrong := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateRequest(Input, sig.Inputs, request(t, named(t, "0/discount", tensors.Float32, 1), wrong))
			var portErr *PortError
			require.ErrorAs(t, err, &portErr)
			assert.Equal(t, 1, portErr.Index)
			assert.Equal(t, "float32[1,3]", portErr.ExpectedSpec.String())
			assert.Equal(t, wrong.Tensor.Spec().String(), portErr.ActualSpec.String())
			assert.Contains(t, err.Error(), "expected float32[1,3]")
		})
	}
}

func TestCompareAggregatesEveryMismatch(t *testing.T) {
	ort := scenarioSignature()
	goSig := New(
		[]ModelPort{
			port("0/discount", "0", tensors.Float32, 1),
			port("0/observation/x", "1", tensors.Int32, 1, 3),
		},
		[]ModelPort{
			port("action/throttle", "2", tensors.Float32, 1, 1),
			port("action/steer", "3", tensors.Float32, 1),
		},
	)
	err := Compare(Labeled{Backend: "ORT", Signature: ort}, Labeled{Backend: "GO", Signature: goSig})
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Len(t, mismatch.Mismatches, 4)
	assert.Contains(t, err.Error(), "output action/throttle: float32[1] (ORT) vs float32[1,1] (GO)")
	assert.Contains(t, err.Error(), "input 0/observation/x: float32[1,3] (ORT) vs int32[1,3] (GO)")
	assert.Contains(t, err.Error(), "output action/steer: missing in ORT")
	assert.Contains(t, err.Error(), "port count 1 (ORT) vs 2 (GO)")
}

func TestCompareIgnoresBackendIDs(t *testing.T) {
	a := scenarioSignature()
	b := scenarioSignature()
	b.Inputs[0].Tensor.ID = "serving_default_discount:0"
	assert.NoError(t, Compare(Labeled{Backend: "ORT", Signature: a}, Labeled{Backend: "GO", Signature: b}))
}

func TestAllocate(t *testing.T) {
	sig := scenarioSignature()
	inputs, err := Allocate(sig.Inputs)
	require.NoError(t, err)
	_, err = ValidateRequest(Input, sig.Inputs, inputs)
	assert.NoError(t, err)
}
