package ops

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Sign maps each element to 1, -1 or 0.
type Sign struct{}

func (Sign) OpType() string { return "Sign" }

func (Sign) NumInputs() int { return 1 }

func (s Sign) Prepare(inputs []tensor.Tensor) ([]*tensor.Dense, error) {
	if err := checkFloatType(s.OpType(), inputs[0]); err != nil {
		return nil, err
	}
	return []*tensor.Dense{newLike(inputs[0])}, nil
}

func (s Sign) Eval(inputs []tensor.Tensor, outputs []*tensor.Dense) error {
	switch inputs[0].Dtype() {
	case tensor.Float32:
		in := values[float32](inputs[0])
		return fill(outputs[0], func(dst []float32) { signOf(in, dst) })
	case tensor.Float64:
		in := values[float64](inputs[0])
		return fill(outputs[0], func(dst []float64) { signOf(in, dst) })
	}
	return fmt.Errorf("Sign: unsupported type %s", inputs[0].Dtype())
}

func signOf[T float32 | float64](in, out []T) {
	for i, v := range in {
		switch {
		case v > 0:
			out[i] = 1
		case v < 0:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
}
