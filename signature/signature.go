package signature

import (
	"sort"

	"github.com/knights-analytics/dualrun/tensors"
)

// ModelPort binds the semantic name callers use to the backend tensor behind it.
type ModelPort struct {
	Name   string
	Tensor tensors.NamedSpec
}

// ModelSignature is the ordered set of input and output ports a loaded model exposes.
// Both lists are sorted by semantic name.
type ModelSignature struct {
	Inputs  []ModelPort
	Outputs []ModelPort
}

// New copies the given ports and sorts them by name.
func New(inputs, outputs []ModelPort) ModelSignature {
	s := ModelSignature{
		Inputs:  clonePorts(inputs),
		Outputs: clonePorts(outputs),
	}
	s.Sort()
	return s
}

// Sort orders both port lists by semantic name.
func (s *ModelSignature) Sort() {
	sortPorts(s.Inputs)
	sortPorts(s.Outputs)
}

// Clear empties the signature.
func (s *ModelSignature) Clear() {
	s.Inputs = nil
	s.Outputs = nil
}

// Empty reports whether no model is described.
func (s ModelSignature) Empty() bool {
	return len(s.Inputs) == 0 && len(s.Outputs) == 0
}

// Clone returns a deep copy.
func (s ModelSignature) Clone() ModelSignature {
	return ModelSignature{Inputs: clonePorts(s.Inputs), Outputs: clonePorts(s.Outputs)}
}

// InputNames returns the input port names in signature order.
func (s ModelSignature) InputNames() []string { return names(s.Inputs) }

// OutputNames returns the output port names in signature order.
func (s ModelSignature) OutputNames() []string { return names(s.Outputs) }

// Allocate creates zeroed tensors for every port, in signature order.
func Allocate(ports []ModelPort) ([]tensors.Named, error) {
	out := make([]tensors.Named, len(ports))
	for i, p := range ports {
		t, err := tensors.New(p.Tensor.Spec)
		if err != nil {
			return nil, err
		}
		out[i] = tensors.Named{Name: p.Name, Tensor: t}
	}
	return out, nil
}

// Order sorts a request list by name so that it follows the positional contract of Prepare.
func Order(named []tensors.Named) {
	sort.SliceStable(named, func(i, j int) bool { return named[i].Name < named[j].Name })
}

func sortPorts(ports []ModelPort) {
	sort.SliceStable(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
}

func clonePorts(ports []ModelPort) []ModelPort {
	if ports == nil {
		return nil
	}
	out := make([]ModelPort, len(ports))
	for i, p := range ports {
		out[i] = ModelPort{
			Name: p.Name,
			Tensor: tensors.NamedSpec{
				ID:   p.Tensor.ID,
				Spec: tensors.Spec{DType: p.Tensor.Spec.DType, Shape: append([]int64(nil), p.Tensor.Spec.Shape...)},
			},
		}
	}
	return out
}

func names(ports []ModelPort) []string {
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = p.Name
	}
	return out
}
