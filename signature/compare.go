package signature

import (
	"fmt"
	"slices"
	"strings"

	"github.com/knights-analytics/dualrun/tensors"
)

// Labeled is a signature together with the backend that reported it.
type Labeled struct {
	Backend   string
	Signature ModelSignature
}

// PortMismatch is one difference between two signatures.
type PortMismatch struct {
	Side   Side
	Port   string
	Detail string
}

func (m PortMismatch) String() string {
	if m.Port == "" {
		return fmt.Sprintf("%s: %s", strings.ToLower(string(m.Side)), m.Detail)
	}
	return fmt.Sprintf("%s %s: %s", strings.ToLower(string(m.Side)), m.Port, m.Detail)
}

// MismatchError aggregates every difference found between two backend signatures.
type MismatchError struct {
	Reference  string
	Other      string
	Mismatches []PortMismatch
}

func (e *MismatchError) Error() string {
	lines := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		lines[i] = m.String()
	}
	return fmt.Sprintf("signatures of %s and %s disagree on %d port(s): %s",
		e.Reference, e.Other, len(e.Mismatches), strings.Join(lines, "; "))
}

// Compare checks that two signatures expose the same ports with the same specs.
// Backend tensor IDs are not compared, they are backend specific.
func Compare(reference, other Labeled) error {
	var mismatches []PortMismatch
	mismatches = append(mismatches, compareSide(Input, reference.Backend, reference.Signature.Inputs, other.Backend, other.Signature.Inputs)...)
	mismatches = append(mismatches, compareSide(Output, reference.Backend, reference.Signature.Outputs, other.Backend, other.Signature.Outputs)...)
	if len(mismatches) == 0 {
		return nil
	}
	return &MismatchError{Reference: reference.Backend, Other: other.Backend, Mismatches: mismatches}
}

func compareSide(side Side, refName string, ref []ModelPort, otherName string, other []ModelPort) []PortMismatch {
	var out []PortMismatch
	if len(ref) != len(other) {
		out = append(out, PortMismatch{
			Side:   side,
			Detail: fmt.Sprintf("port count %d (%s) vs %d (%s)", len(ref), refName, len(other), otherName),
		})
	}

	otherByName := make(map[string]ModelPort, len(other))
	for _, p := range other {
		otherByName[p.Name] = p
	}
	seen := make(map[string]bool, len(ref))
	for _, p := range ref {
		seen[p.Name] = true
		o, ok := otherByName[p.Name]
		if !ok {
			out = append(out, PortMismatch{Side: side, Port: p.Name, Detail: "missing in " + otherName})
			continue
		}
		if !sameSpec(p.Tensor.Spec, o.Tensor.Spec) {
			out = append(out, PortMismatch{
				Side:   side,
				Port:   p.Name,
				Detail: fmt.Sprintf("%s (%s) vs %s (%s)", p.Tensor.Spec, refName, o.Tensor.Spec, otherName),
			})
		}
	}
	for _, p := range other {
		if !seen[p.Name] {
			out = append(out, PortMismatch{Side: side, Port: p.Name, Detail: "missing in " + refName})
		}
	}
	return out
}

func sameSpec(a, b tensors.Spec) bool {
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape)
}
