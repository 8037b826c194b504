// Package testcases builds the small ONNX models the tests and the example tooling run.
package testcases

import (
	"os"
	"path/filepath"

	"github.com/advancedclimatesystems/gonnx/onnx"
	"google.golang.org/protobuf/proto"
)

// CustomDomain is the operator domain of nodes only the registry implements.
const CustomDomain = "ai.dualrun"

// Dynamic marks an unresolved dimension in a Port shape.
const Dynamic int64 = -1

type Port struct {
	Name     string
	ElemType onnx.TensorProto_DataType
	Dims     []int64
}

type Node struct {
	OpType string
	Domain string
	Inputs []string
	Output string
}

// Model is a single graph description. Bytes serialises it as an ONNX model proto.
type Model struct {
	Name    string
	Inputs  []Port
	Outputs []Port
	Nodes   []Node
}

func Float(name string, dims ...int64) Port {
	return Port{Name: name, ElemType: onnx.TensorProto_FLOAT, Dims: dims}
}

func Int32(name string, dims ...int64) Port {
	return Port{Name: name, ElemType: onnx.TensorProto_INT32, Dims: dims}
}

func Int64(name string, dims ...int64) Port {
	return Port{Name: name, ElemType: onnx.TensorProto_INT64, Dims: dims}
}

// Scenario feeds a discount and an observation and produces a throttle (discount+discount)
// and a steer (sign of the observation).
func Scenario() Model {
	return Model{
		Name:    "scenario",
		Inputs:  []Port{Float("0/observation/x", 1, 3), Float("0/discount", 1)},
		Outputs: []Port{Float("action/throttle", 1), Float("action/steer", 1, 3)},
		Nodes: []Node{
			{OpType: "Add", Inputs: []string{"0/discount", "0/discount"}, Output: "action/throttle"},
			{OpType: "Sign", Inputs: []string{"0/observation/x"}, Output: "action/steer"},
		},
	}
}

// Atan2 only runs where the custom Atan2 operator is registered.
func Atan2() Model {
	return Model{
		Name:    "atan2",
		Inputs:  []Port{Float("y", 2), Float("x", 2)},
		Outputs: []Port{Float("angle", 2)},
		Nodes:   []Node{{OpType: "Atan2", Domain: CustomDomain, Inputs: []string{"y", "x"}, Output: "angle"}},
	}
}

// DynamicBatch has an unresolved batch dimension.
func DynamicBatch() Model {
	return Model{
		Name:    "dynamic",
		Inputs:  []Port{Float("x", Dynamic, 3)},
		Outputs: []Port{Float("y", Dynamic, 3)},
		Nodes:   []Node{{OpType: "Sign", Inputs: []string{"x"}, Output: "y"}},
	}
}

func Int32Sum() Model {
	return Model{
		Name:    "int32sum",
		Inputs:  []Port{Int32("a", 2), Int32("b", 2)},
		Outputs: []Port{Int32("sum", 2)},
		Nodes:   []Node{{OpType: "Add", Inputs: []string{"a", "b"}, Output: "sum"}},
	}
}

// UnsupportedType declares int64 ports, which no backend accepts.
func UnsupportedType() Model {
	return Model{
		Name:    "int64",
		Inputs:  []Port{Int64("ids", 2)},
		Outputs: []Port{Int64("doubled", 2)},
		Nodes:   []Node{{OpType: "Add", Inputs: []string{"ids", "ids"}, Output: "doubled"}},
	}
}

// Scalar takes the sign of a rank-0 input.
func Scalar() Model {
	return Model{
		Name:    "scalar",
		Inputs:  []Port{Float("s")},
		Outputs: []Port{Float("o")},
		Nodes:   []Node{{OpType: "Sign", Inputs: []string{"s"}, Output: "o"}},
	}
}

func Unnamed() Model {
	return Model{
		Name:    "unnamed",
		Inputs:  []Port{Float("", 1)},
		Outputs: []Port{Float("y", 1)},
		Nodes:   []Node{{OpType: "Add", Inputs: []string{"", ""}, Output: "y"}},
	}
}

func (m Model) Proto() *onnx.ModelProto {
	graph := &onnx.GraphProto{Name: m.Name}
	customDomain := false
	for _, p := range m.Inputs {
		graph.Input = append(graph.Input, p.valueInfo())
	}
	for _, p := range m.Outputs {
		graph.Output = append(graph.Output, p.valueInfo())
	}
	for _, n := range m.Nodes {
		graph.Node = append(graph.Node, &onnx.NodeProto{
			Name:   n.OpType + "_" + n.Output,
			OpType: n.OpType,
			Domain: n.Domain,
			Input:  n.Inputs,
			Output: []string{n.Output},
		})
		customDomain = customDomain || n.Domain == CustomDomain
	}
	opsets := []*onnx.OperatorSetIdProto{{Domain: "", Version: 13}}
	if customDomain {
		opsets = append(opsets, &onnx.OperatorSetIdProto{Domain: CustomDomain, Version: 1})
	}
	return &onnx.ModelProto{
		IrVersion:    8,
		ProducerName: "dualrun-testcases",
		OpsetImport:  opsets,
		Graph:        graph,
	}
}

func (p Port) valueInfo() *onnx.ValueInfoProto {
	dims := make([]*onnx.TensorShapeProto_Dimension, len(p.Dims))
	for i, d := range p.Dims {
		if d == Dynamic {
			dims[i] = &onnx.TensorShapeProto_Dimension{Value: &onnx.TensorShapeProto_Dimension_DimParam{DimParam: "batch"}}
			continue
		}
		dims[i] = &onnx.TensorShapeProto_Dimension{Value: &onnx.TensorShapeProto_Dimension_DimValue{DimValue: d}}
	}
	return &onnx.ValueInfoProto{
		Name: p.Name,
		Type: &onnx.TypeProto{
			Value: &onnx.TypeProto_TensorType{
				TensorType: &onnx.TypeProto_Tensor{
					ElemType: int32(p.ElemType),
					Shape:    &onnx.TensorShapeProto{Dim: dims},
				},
			},
		},
	}
}

func (m Model) Bytes() ([]byte, error) {
	return proto.Marshal(m.Proto())
}

// WriteDir writes the model to dir/filename, creating dir when needed, and returns dir.
func (m Model) WriteDir(dir, filename string) (string, error) {
	data, err := m.Bytes()
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}
	return dir, os.WriteFile(filepath.Join(dir, filename), data, 0o600)
}

// All lists every model under its directory name.
func All() map[string]Model {
	return map[string]Model{
		"scenario":         Scenario(),
		"atan2":            Atan2(),
		"dynamic":          DynamicBatch(),
		"int32sum":         Int32Sum(),
		"unsupported-type": UnsupportedType(),
		"unnamed":          Unnamed(),
		"scalar":           Scalar(),
	}
}
