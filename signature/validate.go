package signature

import (
	"fmt"

	"github.com/knights-analytics/dualrun/tensors"
)

// Side tells inputs and outputs apart in error messages.
type Side string

const (
	Input  Side = "Input"
	Output Side = "Output"
)

// CountError is returned when a request does not carry one tensor per port.
type CountError struct {
	Side     Side
	Expected int
	Actual   int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("%s count mismatch: model expects %d tensors, got %d", e.Side, e.Expected, e.Actual)
}

// PortError describes the first request entry that does not match its port.
type PortError struct {
	Side         Side
	Index        int
	ExpectedName string
	ActualName   string
	ExpectedSpec tensors.Spec
	ActualSpec   tensors.Spec
	Err          error
}

func (e *PortError) Error() string {
	if e.ExpectedName != e.ActualName {
		return fmt.Sprintf("%s %d: expected name %q, got %q", e.Side, e.Index, e.ExpectedName, e.ActualName)
	}
	return fmt.Sprintf("%s %d (%s): expected %s, got %s: %v", e.Side, e.Index, e.ExpectedName, e.ExpectedSpec, e.ActualSpec, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

// ValidateRequest checks a request list against ports position by position.
// The i-th request must carry the i-th port name and a compatible spec, and the
// returned handles map each position to the backend tensor ID of its port.
func ValidateRequest(side Side, ports []ModelPort, requested []tensors.Named) ([]string, error) {
	if len(ports) != len(requested) {
		return nil, &CountError{Side: side, Expected: len(ports), Actual: len(requested)}
	}
	handles := make([]string, len(ports))
	for i, port := range ports {
		req := requested[i]
		if req.Tensor == nil {
			return nil, &PortError{Side: side, Index: i, ExpectedName: port.Name, ActualName: req.Name,
				ExpectedSpec: port.Tensor.Spec, Err: fmt.Errorf("nil tensor")}
		}
		if req.Name != port.Name {
			return nil, &PortError{Side: side, Index: i, ExpectedName: port.Name, ActualName: req.Name,
				ExpectedSpec: port.Tensor.Spec, ActualSpec: req.Tensor.Spec()}
		}
		if err := port.Tensor.Spec.Compatible(req.Tensor.Spec()); err != nil {
			return nil, &PortError{Side: side, Index: i, ExpectedName: port.Name, ActualName: req.Name,
				ExpectedSpec: port.Tensor.Spec, ActualSpec: req.Tensor.Spec(), Err: err}
		}
		handles[i] = port.Tensor.ID
	}
	return handles, nil
}
