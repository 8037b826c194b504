package dualrun

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/tensors"
)

// maxReportedDivergences caps the elements listed per port.
const maxReportedDivergences = 8

// Divergence is one output element on which two backends disagree.
type Divergence struct {
	Port      string
	Index     int
	Reference float64
	Other     float64
}

// DivergenceError reports outputs that differ between backends beyond the tolerance.
// It indicates a bug in one of the engines, not a caller error.
type DivergenceError struct {
	Reference   string
	Other       string
	Divergences []Divergence
	// MaxAbsDiff is the largest absolute difference over all compared ports.
	MaxAbsDiff float64
}

func (e *DivergenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "outputs of %s and %s diverge (max abs diff %g):", e.Reference, e.Other, e.MaxAbsDiff)
	for _, d := range e.Divergences {
		fmt.Fprintf(&b, "\n  %s[%d]: %g (%s) vs %g (%s)", d.Port, d.Index, d.Reference, e.Reference, d.Other, e.Other)
	}
	return b.String()
}

func compareOutputs(tolerance options.Tolerance, referenceName string, reference []tensors.Named, otherName string, other []tensors.Named) error {
	result := &DivergenceError{Reference: referenceName, Other: otherName}
	for i := range reference {
		a := reference[i].Tensor.Float64Values()
		b := other[i].Tensor.Float64Values()
		if len(a) != len(b) {
			return fmt.Errorf("output %q: %s produced %d values, %s produced %d", reference[i].Name, referenceName, len(a), otherName, len(b))
		}
		if len(a) == 0 {
			continue
		}
		result.MaxAbsDiff = math.Max(result.MaxAbsDiff, floats.Distance(a, b, math.Inf(1)))
		reported := 0
		for j := range a {
			if scalar.EqualWithinAbsOrRel(a[j], b[j], tolerance.Abs, tolerance.Rel) {
				continue
			}
			if reported < maxReportedDivergences {
				result.Divergences = append(result.Divergences, Divergence{Port: reference[i].Name, Index: j, Reference: a[j], Other: b[j]})
			}
			reported++
		}
	}
	if len(result.Divergences) == 0 {
		return nil
	}
	return result
}
