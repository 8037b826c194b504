package tensors

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec describes the type and shape of a tensor. Dimensions may be negative
// while unresolved but must be concrete before allocation.
type Spec struct {
	DType DataType
	Shape []int64
}

// Concrete reports whether every dimension is resolved.
func (s Spec) Concrete() bool {
	for _, d := range s.Shape {
		if d < 0 {
			return false
		}
	}
	return true
}

// Compatible returns nil when both specs have the same data type and the same
// dimensions. An unresolved dimension on either side is an error, not a wildcard.
func (s Spec) Compatible(other Spec) error {
	if s.DType != other.DType {
		return fmt.Errorf("data type %s does not match %s", other.DType, s.DType)
	}
	if len(s.Shape) != len(other.Shape) {
		return fmt.Errorf("rank %d of %s does not match rank %d of %s", len(other.Shape), other, len(s.Shape), s)
	}
	for i := range s.Shape {
		if s.Shape[i] < 0 || other.Shape[i] < 0 {
			return fmt.Errorf("dimension %d is unresolved comparing %s with %s", i, other, s)
		}
		if s.Shape[i] != other.Shape[i] {
			return fmt.Errorf("dimension %d of %s does not match %s", i, other, s)
		}
	}
	return nil
}

// Equal is Compatible as a predicate.
func (s Spec) Equal(other Spec) bool {
	return s.Compatible(other) == nil
}

func (s Spec) String() string {
	dims := make([]string, len(s.Shape))
	for i, d := range s.Shape {
		dims[i] = strconv.FormatInt(d, 10)
	}
	return s.DType.String() + "[" + strings.Join(dims, ",") + "]"
}

// NamedSpec pairs a backend-internal tensor handle with its spec.
// The ID is meaningful only to the backend that produced it.
type NamedSpec struct {
	ID   string
	Spec Spec
}

// Named is a tensor the caller feeds or fetches under a semantic name.
type Named struct {
	Name   string
	Tensor *Tensor
}

// Specs extracts the (name, spec) pairs of a request list.
func Specs(named []Named) []NamedSpec {
	out := make([]NamedSpec, len(named))
	for i, n := range named {
		out[i] = NamedSpec{ID: n.Name, Spec: n.Tensor.Spec()}
	}
	return out
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
