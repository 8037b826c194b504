package backends

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/advancedclimatesystems/gonnx"
	"github.com/advancedclimatesystems/gonnx/onnx"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
)

// GoModel runs models with the pure Go gonnx interpreter. It is the lite runtime: no
// native library, custom operators come from the options' registry.
type GoModel struct {
	portState
	options *options.Options
	model   *gonnx.Model
	// inputNames and outputNames map tensor IDs (graph positions) to graph tensor names.
	inputNames  map[string]string
	outputNames map[string]string
	inputs      map[string]*tensor.Dense
}

var _ Backend = (*GoModel)(nil)

func NewGoModel(o *options.Options) *GoModel {
	return &GoModel{portState: newPortState(options.BackendGo, o), options: o}
}

func (m *GoModel) Load(path string) (signature.ModelSignature, error) {
	m.Clear()
	loadErr := func(stage Stage, err error) (signature.ModelSignature, error) {
		m.Clear()
		m.logger.Error().Err(err).Str("path", path).Str("stage", string(stage)).Msg("load failed")
		return signature.ModelSignature{}, &LoadError{Backend: m.name, Stage: stage, Path: path, Err: err}
	}

	onnxBytes, modelPath, err := readModel(path, m.options.ModelFilename)
	if err != nil {
		return loadErr(StageRead, err)
	}
	mp, err := gonnx.ModelProtoFromBytes(onnxBytes)
	if err != nil {
		return loadErr(StageParse, err)
	}
	model, err := gonnx.NewModel(mp)
	if err != nil {
		return loadErr(StageParse, err)
	}
	inputs, outputs := loadInputOutputMetaGo(model, mp.GetGraph())
	sig, err := buildSignature(inputs, outputs, m.options.DynamicDimensionSize)
	if err != nil {
		return loadErr(StageSignature, err)
	}

	model.GetOperator = operatorGetter(m.options.Operators, model.GetOperator)
	if err = resolveOperators(model.GetOperator, mp.GetGraph()); err != nil {
		return loadErr(StageAllocate, err)
	}
	m.inputNames = graphNames(inputs)
	m.outputNames = graphNames(outputs)
	m.inputs = make(map[string]*tensor.Dense, len(sig.Inputs))
	for _, port := range sig.Inputs {
		native, allocErr := newDense(port.Tensor.Spec)
		if allocErr != nil {
			return loadErr(StageAllocate, fmt.Errorf("input %q: %w", port.Name, allocErr))
		}
		m.inputs[port.Tensor.ID] = native
	}

	m.model = model
	m.signature = sig
	m.loaded = true
	m.logger.Info().Str("path", modelPath).Int("inputs", len(sig.Inputs)).Int("outputs", len(sig.Outputs)).Msg("model loaded")
	return sig.Clone(), nil
}

// loadInputOutputMetaGo reads the graph ports. Graph positions become the tensor IDs,
// initializers listed as inputs are skipped.
func loadInputOutputMetaGo(model *gonnx.Model, graph *onnx.GraphProto) ([]InputOutputInfo, []InputOutputInfo) {
	initializers := map[string]bool{}
	for _, init := range graph.GetInitializer() {
		initializers[init.GetName()] = true
	}
	elemTypes := map[string]int32{}
	for _, vi := range graph.GetInput() {
		elemTypes[vi.GetName()] = vi.GetType().GetTensorType().GetElemType()
	}
	for _, vi := range graph.GetOutput() {
		elemTypes[vi.GetName()] = vi.GetType().GetTensorType().GetElemType()
	}

	var inputs, outputs []InputOutputInfo
	inputShapes := model.InputShapes()
	for i, name := range model.InputNames() {
		if initializers[name] {
			continue
		}
		inputs = append(inputs, InputOutputInfo{
			ID:         strconv.Itoa(i),
			Name:       name,
			ElemType:   elemTypes[name],
			Dimensions: dimensionsGo(inputShapes[name]),
		})
	}
	outputShapes := model.OutputShapes()
	for i, name := range model.OutputNames() {
		outputs = append(outputs, InputOutputInfo{
			ID:         strconv.Itoa(i),
			Name:       name,
			ElemType:   elemTypes[name],
			Dimensions: dimensionsGo(outputShapes[name]),
		})
	}
	return inputs, outputs
}

func graphNames(infos []InputOutputInfo) map[string]string {
	names := make(map[string]string, len(infos))
	for _, info := range infos {
		names[info.ID] = info.Name
	}
	return names
}

func dimensionsGo(shape onnx.Shape) []int64 {
	dimensions := make([]int64, len(shape))
	for i, dim := range shape {
		if dim.IsDynamic {
			dimensions[i] = -1
			continue
		}
		dimensions[i] = dim.Size
	}
	return dimensions
}

// resolveOperators fails early for node types neither gonnx nor the registry implements.
func resolveOperators(getter gonnx.OpGetter, graph *onnx.GraphProto) error {
	var errs []error
	seen := map[string]bool{}
	for _, node := range graph.GetNode() {
		opType := node.GetOpType()
		if seen[opType] {
			continue
		}
		seen[opType] = true
		if _, err := getter(opType); err != nil {
			errs = append(errs, fmt.Errorf("node %q: operator %s: %w", node.GetName(), opType, err))
		}
	}
	return errors.Join(errs...)
}

func newDense(spec tensors.Spec) (*tensor.Dense, error) {
	var dtype tensor.Dtype
	var zero any
	switch spec.DType {
	case tensors.Float32:
		dtype, zero = tensor.Float32, float32(0)
	case tensors.Int32:
		dtype, zero = tensor.Int32, int32(0)
	default:
		return nil, fmt.Errorf("data type %s is not supported", spec.DType)
	}
	if len(spec.Shape) == 0 {
		return tensor.New(tensor.FromScalar(zero)), nil
	}
	shape := make([]int, len(spec.Shape))
	for i, d := range spec.Shape {
		shape[i] = int(d)
	}
	return tensor.New(tensor.Of(dtype), tensor.WithShape(shape...)), nil
}

func (m *GoModel) Run(inputs, outputs []tensors.Named) error {
	if err := m.checkRun(inputs, outputs); err != nil {
		return err
	}
	start := time.Now()

	feed := make(gonnx.Tensors, len(inputs))
	for i, in := range inputs {
		handle := m.inputHandles[i]
		native := m.inputs[handle]
		if err := copyToDense(native, in.Tensor); err != nil {
			return fmt.Errorf("input %q: %w", in.Name, err)
		}
		feed[m.inputNames[handle]] = native
	}
	result, err := m.model.Run(feed)
	if err != nil {
		return &RunError{Backend: m.name, Err: err}
	}
	for i, out := range outputs {
		name := m.outputNames[m.outputHandles[i]]
		native, ok := result[name]
		if !ok {
			return &RunError{Backend: m.name, Err: fmt.Errorf("output %q was not produced", name)}
		}
		if err = copyFromGo(out.Tensor, native); err != nil {
			return &RunError{Backend: m.name, Err: fmt.Errorf("output %q: %w", name, err)}
		}
	}
	m.timings.add(time.Since(start))
	return nil
}

func copyToDense(dst *tensor.Dense, src *tensors.Tensor) error {
	switch src.DType() {
	case tensors.Float32:
		return copyDenseData(dst, src.Float32s(), src.Spec())
	case tensors.Int32:
		return copyDenseData(dst, src.Int32s(), src.Spec())
	}
	return fmt.Errorf("data type %s is not supported", src.DType())
}

// copyDenseData copies src into dst. Rank-0 tensors return their value, not their
// backing array, from Data, so they are written through Set.
func copyDenseData[T float32 | int32](dst *tensor.Dense, src []T, spec tensors.Spec) error {
	switch data := dst.Data().(type) {
	case []T:
		if len(data) == len(src) {
			copy(data, src)
			return nil
		}
	case T:
		if len(src) == 1 {
			dst.Set(0, src[0])
			return nil
		}
	}
	return fmt.Errorf("cannot copy %s into %s tensor of shape %v", spec, dst.Dtype(), dst.Shape())
}

func copyFromGo(dst *tensors.Tensor, src tensor.Tensor) error {
	switch dst.DType() {
	case tensors.Float32:
		return copyGoData(dst.Float32s(), src)
	case tensors.Int32:
		return copyGoData(dst.Int32s(), src)
	default:
		return fmt.Errorf("data type %s is not supported", dst.DType())
	}
}

func copyGoData[T float32 | int32](dst []T, src tensor.Tensor) error {
	switch data := src.Data().(type) {
	case []T:
		if len(data) != len(dst) {
			return fmt.Errorf("engine produced %d values of shape %v, expected %d", len(data), src.Shape(), len(dst))
		}
		copy(dst, data)
	case T:
		if len(dst) != 1 {
			return fmt.Errorf("engine produced a scalar, expected %d values", len(dst))
		}
		dst[0] = data
	default:
		return fmt.Errorf("engine produced %s values", src.Dtype())
	}
	return nil
}

func (m *GoModel) Clear() {
	m.model = nil
	m.inputNames = nil
	m.outputNames = nil
	m.inputs = nil
	m.reset()
}

func (m *GoModel) Destroy() error {
	m.Clear()
	m.timings.reset()
	return nil
}
