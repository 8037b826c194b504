// Package ops holds the elementwise operators the lite runtime needs beyond its built-in set.
package ops

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// Operator is a stateless operator evaluated in two phases: Prepare validates the
// inputs and allocates outputs sized to them, Eval fills the outputs.
type Operator interface {
	// OpType is the graph node type the operator is registered under.
	OpType() string
	NumInputs() int
	Prepare(inputs []tensor.Tensor) ([]*tensor.Dense, error)
	Eval(inputs []tensor.Tensor, outputs []*tensor.Dense) error
}

// Registry maps node op types to operators. It is built once and passed to the
// backends that need it.
type Registry struct {
	operators map[string]Operator
}

func NewRegistry() *Registry {
	return &Registry{operators: map[string]Operator{}}
}

// DefaultRegistry returns a new registry holding Atan2 and Sign.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// registering into a fresh registry cannot collide
	_ = r.Register(Atan2{})
	_ = r.Register(Sign{})
	return r
}

func (r *Registry) Register(op Operator) error {
	if _, ok := r.operators[op.OpType()]; ok {
		return fmt.Errorf("operator %s is already registered", op.OpType())
	}
	r.operators[op.OpType()] = op
	return nil
}

func (r *Registry) Lookup(opType string) (Operator, bool) {
	if r == nil {
		return nil, false
	}
	op, ok := r.operators[opType]
	return op, ok
}

// OpTypes lists the registered op types in sorted order.
func (r *Registry) OpTypes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.operators))
	for k := range r.operators {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Apply runs both phases of op.
func Apply(op Operator, inputs ...tensor.Tensor) ([]*tensor.Dense, error) {
	if len(inputs) != op.NumInputs() {
		return nil, fmt.Errorf("%s expects %d inputs, got %d", op.OpType(), op.NumInputs(), len(inputs))
	}
	outputs, err := op.Prepare(inputs)
	if err != nil {
		return nil, err
	}
	if err = op.Eval(inputs, outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

func checkFloatType(opType string, t tensor.Tensor) error {
	switch t.Dtype() {
	case tensor.Float32, tensor.Float64:
		return nil
	}
	return fmt.Errorf("%s supports float32 and float64 inputs, got %s", opType, t.Dtype())
}

// values returns the elements of t. A rank-0 tensor yields a one element copy.
func values[T float32 | float64](t tensor.Tensor) []T {
	switch v := t.Data().(type) {
	case []T:
		return v
	case T:
		return []T{v}
	}
	return nil
}

// fill lets write populate the elements of out. A rank-0 Dense hides its backing
// array behind Data, so its single value is written back through Set.
func fill[T float32 | float64](out *tensor.Dense, write func(dst []T)) error {
	switch data := out.Data().(type) {
	case []T:
		write(data)
	case T:
		scalar := []T{data}
		write(scalar)
		out.Set(0, scalar[0])
	default:
		return fmt.Errorf("cannot write into %s tensor", out.Dtype())
	}
	return nil
}

func newLike(t tensor.Tensor) *tensor.Dense {
	if len(t.Shape()) == 0 {
		switch t.Dtype() {
		case tensor.Float32:
			return tensor.New(tensor.FromScalar(float32(0)))
		case tensor.Float64:
			return tensor.New(tensor.FromScalar(float64(0)))
		}
	}
	return tensor.New(tensor.Of(t.Dtype()), tensor.WithShape(t.Shape().Clone()...))
}
