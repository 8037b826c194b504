package binding

import (
	"fmt"

	"github.com/knights-analytics/dualrun/tensors"
)

type boundTensor struct {
	field
	tensor *tensors.Tensor
}

// Table is a built binding. Its tensor lists are sorted by name, the order PrepareModel expects.
type Table struct {
	inputs  []boundTensor
	outputs []boundTensor
}

func (t *Table) Inputs() []tensors.Named {
	return named(t.inputs)
}

func (t *Table) Outputs() []tensors.Named {
	return named(t.outputs)
}

func named(bound []boundTensor) []tensors.Named {
	out := make([]tensors.Named, len(bound))
	for i, b := range bound {
		out[i] = tensors.Named{Name: b.name, Tensor: b.tensor}
	}
	return out
}

// Push copies the input fields into their tensors. A value outside its range, or a vector whose
// length changed since Build, fails before any tensor is written.
func (t *Table) Push() error {
	staged := make([][]float64, len(t.inputs))
	for i, b := range t.inputs {
		values := b.get()
		if len(values) != b.tensor.Len() {
			return fmt.Errorf("input %q has %d values, bound with %d", b.name, len(values), b.tensor.Len())
		}
		for j, v := range values {
			if !b.rng.contains(v) {
				return fmt.Errorf("input %q[%d] = %g is outside [%g, %g]", b.name, j, v, b.rng.Min, b.rng.Max)
			}
		}
		staged[i] = values
	}
	for i, b := range t.inputs {
		if err := b.tensor.SetFloat64Values(staged[i]); err != nil {
			return fmt.Errorf("input %q: %w", b.name, err)
		}
	}
	return nil
}

// Pull copies the output tensors into their fields, clamping into each field's range.
func (t *Table) Pull() {
	for _, b := range t.outputs {
		values := b.tensor.Float64Values()
		for j, v := range values {
			values[j] = b.rng.clamp(v)
		}
		b.set(values)
	}
}
