// Package binding maps application fields to the named tensors a model session reads and writes.
//
// A Table is built once from explicit field declarations; no reflection is involved.
// Push copies field values into the input tensors before a run, Pull copies the output
// tensors back into the fields after it.
package binding

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/knights-analytics/dualrun/tensors"
)

// Range bounds the values of a field. Inputs outside it are rejected, outputs are clamped into it.
type Range struct {
	Min float64
	Max float64
}

// Unbounded accepts every finite value.
var Unbounded = Range{Min: math.Inf(-1), Max: math.Inf(1)}

func (r Range) validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max {
		return fmt.Errorf("invalid range [%g, %g]", r.Min, r.Max)
	}
	return nil
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// field is one declared binding. get and set move values between the application
// and the float64 staging form. They are nil when the field was bound to a nil pointer.
type field struct {
	name  string
	dtype tensors.DataType
	shape []int64
	rng   Range
	get   func() []float64
	set   func([]float64)
}

type Builder struct {
	inputs  []field
	outputs []field
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Float binds a scalar float32 input, fed as a tensor of shape [1].
func (b *Builder) Float(name string, value *float32, r Range) *Builder {
	b.inputs = append(b.inputs, floatField(name, value, r))
	return b
}

// Int binds a scalar int32 input, fed as a tensor of shape [1].
func (b *Builder) Int(name string, value *int32, r Range) *Builder {
	b.inputs = append(b.inputs, intField(name, value, r))
	return b
}

// Floats binds a float32 vector input, fed as a tensor of shape [1, len(values)].
// The slice is read on every Push, its length is fixed at Build.
func (b *Builder) Floats(name string, values []float32, r Range) *Builder {
	b.inputs = append(b.inputs, floatsField(name, values, r))
	return b
}

// FloatOutput binds a scalar float32 output of shape [1].
func (b *Builder) FloatOutput(name string, value *float32, r Range) *Builder {
	b.outputs = append(b.outputs, floatField(name, value, r))
	return b
}

// IntOutput binds a scalar int32 output of shape [1].
func (b *Builder) IntOutput(name string, value *int32, r Range) *Builder {
	b.outputs = append(b.outputs, intField(name, value, r))
	return b
}

// FloatsOutput binds a float32 vector output of shape [1, len(values)].
func (b *Builder) FloatsOutput(name string, values []float32, r Range) *Builder {
	b.outputs = append(b.outputs, floatsField(name, values, r))
	return b
}

func floatField(name string, value *float32, r Range) field {
	f := field{name: name, dtype: tensors.Float32, shape: []int64{1}, rng: r}
	if value != nil {
		f.get = func() []float64 { return []float64{float64(*value)} }
		f.set = func(v []float64) { *value = float32(v[0]) }
	}
	return f
}

func intField(name string, value *int32, r Range) field {
	f := field{name: name, dtype: tensors.Int32, shape: []int64{1}, rng: r}
	if value != nil {
		f.get = func() []float64 { return []float64{float64(*value)} }
		f.set = func(v []float64) { *value = int32(math.Round(v[0])) }
	}
	return f
}

func floatsField(name string, values []float32, r Range) field {
	return field{
		name:  name,
		dtype: tensors.Float32,
		shape: []int64{1, int64(len(values))},
		rng:   r,
		get: func() []float64 {
			out := make([]float64, len(values))
			for i, v := range values {
				out[i] = float64(v)
			}
			return out
		},
		set: func(v []float64) {
			for i := range values {
				values[i] = float32(v[i])
			}
		},
	}
}

// Build validates every declaration and allocates one tensor per field.
func (b *Builder) Build() (*Table, error) {
	var errs []error
	seen := map[string]bool{}
	check := func(kind string, fields []field) {
		for _, f := range fields {
			if f.name == "" {
				errs = append(errs, fmt.Errorf("%s field with empty name", kind))
				continue
			}
			if seen[kind+f.name] {
				errs = append(errs, fmt.Errorf("%s %q is bound twice", kind, f.name))
			}
			seen[kind+f.name] = true
			if err := f.rng.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s %q: %w", kind, f.name, err))
			}
			switch {
			case f.get == nil || f.set == nil:
				errs = append(errs, fmt.Errorf("%s %q is bound to a nil pointer", kind, f.name))
			case tensors.ElementCount(f.shape) == 0:
				errs = append(errs, fmt.Errorf("%s %q has no values", kind, f.name))
			}
		}
	}
	check("input", b.inputs)
	check("output", b.outputs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	inputs, err := allocate(b.inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := allocate(b.outputs)
	if err != nil {
		return nil, err
	}
	return &Table{inputs: inputs, outputs: outputs}, nil
}

func allocate(fields []field) ([]boundTensor, error) {
	bound := make([]boundTensor, len(fields))
	for i, f := range fields {
		t, err := tensors.New(tensors.Spec{DType: f.dtype, Shape: f.shape})
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.name, err)
		}
		bound[i] = boundTensor{field: f, tensor: t}
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].name < bound[j].name })
	return bound, nil
}
