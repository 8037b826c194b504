package backends

import (
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"github.com/advancedclimatesystems/gonnx/onnx"
	gonnxops "github.com/advancedclimatesystems/gonnx/ops"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/dualrun/ops"
)

// goOperator exposes a registry operator to the gonnx graph executor.
type goOperator struct {
	op ops.Operator
}

func (g *goOperator) String() string { return "custom operator " + g.op.OpType() }

func (g *goOperator) Init(node *onnx.NodeProto) error {
	if len(node.GetInput()) != g.op.NumInputs() {
		return fmt.Errorf("node %q: %s expects %d inputs, got %d", node.GetName(), g.op.OpType(), g.op.NumInputs(), len(node.GetInput()))
	}
	if len(node.GetOutput()) != 1 {
		return fmt.Errorf("node %q: %s produces 1 output, graph expects %d", node.GetName(), g.op.OpType(), len(node.GetOutput()))
	}
	return nil
}

func (g *goOperator) Apply(inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	outputs, err := ops.Apply(g.op, inputs...)
	if err != nil {
		return nil, err
	}
	result := make([]tensor.Tensor, len(outputs))
	for i, o := range outputs {
		result[i] = o
	}
	return result, nil
}

func (g *goOperator) ValidateInputs(inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	if len(inputs) != g.op.NumInputs() {
		return nil, fmt.Errorf("%s expects %d inputs, got %d", g.op.OpType(), g.op.NumInputs(), len(inputs))
	}
	return inputs, nil
}

func (g *goOperator) GetMinInputs() int { return g.op.NumInputs() }

func (g *goOperator) GetMaxInputs() int { return g.op.NumInputs() }

func (g *goOperator) GetInputTypeConstraints() [][]tensor.Dtype {
	constraints := make([][]tensor.Dtype, g.op.NumInputs())
	for i := range constraints {
		constraints[i] = []tensor.Dtype{tensor.Float32, tensor.Float64}
	}
	return constraints
}

// operatorGetter resolves registry operators first and falls back to the built-in opset.
// Every call returns a fresh operator, gonnx initialises one per node.
func operatorGetter(registry *ops.Registry, fallback gonnx.OpGetter) gonnx.OpGetter {
	return func(opType string) (gonnxops.Operator, error) {
		if op, ok := registry.Lookup(opType); ok {
			return &goOperator{op: op}, nil
		}
		if fallback == nil {
			return nil, fmt.Errorf("operator %s is not supported", opType)
		}
		return fallback(opType)
	}
}
