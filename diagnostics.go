package dualrun

import (
	"fmt"

	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
)

// RunMismatchError is returned in diagnostics mode when a Run's tensor lists differ from
// the ones given to the last Prepare.
type RunMismatchError struct {
	Side signature.Side
	// Index is -1 for a count mismatch.
	Index    int
	Field    string
	Expected string
	Actual   string
}

func (e *RunMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s %s differs from Prepare: expected %s, got %s", e.Side, e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s %d %s differs from Prepare: expected %s, got %s", e.Side, e.Index, e.Field, e.Expected, e.Actual)
}

type snapshot struct {
	inputs  []tensors.NamedSpec
	outputs []tensors.NamedSpec
}

func takeSnapshot(inputs, outputs []tensors.Named) *snapshot {
	return &snapshot{inputs: tensors.Specs(inputs), outputs: tensors.Specs(outputs)}
}

func (s *snapshot) verify(inputs, outputs []tensors.Named) error {
	if err := verifySide(signature.Input, s.inputs, inputs); err != nil {
		return err
	}
	return verifySide(signature.Output, s.outputs, outputs)
}

func verifySide(side signature.Side, expected []tensors.NamedSpec, actual []tensors.Named) error {
	if len(expected) != len(actual) {
		return &RunMismatchError{Side: side, Index: -1, Field: "count",
			Expected: fmt.Sprint(len(expected)), Actual: fmt.Sprint(len(actual))}
	}
	for i, want := range expected {
		got := actual[i]
		if got.Name != want.ID {
			return &RunMismatchError{Side: side, Index: i, Field: "name", Expected: want.ID, Actual: got.Name}
		}
		if got.Tensor == nil {
			return &RunMismatchError{Side: side, Index: i, Field: "spec", Expected: want.Spec.String(), Actual: "nil tensor"}
		}
		if spec := got.Tensor.Spec(); !want.Spec.Equal(spec) {
			return &RunMismatchError{Side: side, Index: i, Field: "spec", Expected: want.Spec.String(), Actual: spec.String()}
		}
	}
	return nil
}
