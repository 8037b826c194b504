package ops

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// Atan2 computes atan2(y, x) elementwise. Inputs are y then x and must share shape and type.
type Atan2 struct{}

func (Atan2) OpType() string { return "Atan2" }

func (Atan2) NumInputs() int { return 2 }

func (a Atan2) Prepare(inputs []tensor.Tensor) ([]*tensor.Dense, error) {
	y, x := inputs[0], inputs[1]
	if err := checkFloatType(a.OpType(), y); err != nil {
		return nil, err
	}
	if y.Dtype() != x.Dtype() {
		return nil, fmt.Errorf("Atan2: y is %s but x is %s", y.Dtype(), x.Dtype())
	}
	if !y.Shape().Eq(x.Shape()) {
		return nil, fmt.Errorf("Atan2: y has shape %v but x has shape %v", y.Shape(), x.Shape())
	}
	return []*tensor.Dense{newLike(y)}, nil
}

func (a Atan2) Eval(inputs []tensor.Tensor, outputs []*tensor.Dense) error {
	y, x := inputs[0], inputs[1]
	switch y.Dtype() {
	case tensor.Float32:
		ys, xs := values[float32](y), values[float32](x)
		return fill(outputs[0], func(dst []float32) {
			for i := range dst {
				dst[i] = float32(math.Atan2(float64(ys[i]), float64(xs[i])))
			}
		})
	case tensor.Float64:
		ys, xs := values[float64](y), values[float64](x)
		return fill(outputs[0], func(dst []float64) {
			for i := range dst {
				dst[i] = math.Atan2(ys[i], xs[i])
			}
		})
	}
	return fmt.Errorf("Atan2: unsupported type %s", y.Dtype())
}
