//go:build cgo && (ORT || ALL)

package backends

import (
	"errors"
	"fmt"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
)

// ORTModel runs models with onnxruntime, the full runtime. The environment must be
// initialised by the session before Load.
type ORTModel struct {
	portState
	options *options.Options
	Session *ort.DynamicAdvancedSession
	// slots maps tensor IDs to positions in inputValues/outputValues.
	slots        map[string]int
	inputValues  []ort.Value
	outputValues []ort.Value
}

var _ Backend = (*ORTModel)(nil)

func NewORTModel(o *options.Options) *ORTModel {
	return &ORTModel{portState: newPortState(options.BackendORT, o), options: o}
}

func (m *ORTModel) Load(path string) (signature.ModelSignature, error) {
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
	inputs, outputs, err := loadInputOutputMetaORT(onnxBytes)
	if err != nil {
		return loadErr(StageParse, err)
	}
	sig, err := buildSignature(inputs, outputs, m.options.DynamicDimensionSize)
	if err != nil {
		return loadErr(StageSignature, err)
	}

	sessionOptions, _ := m.options.BackendOptions.(*ort.SessionOptions)
	inputNames := make([]string, len(sig.Inputs))
	outputNames := make([]string, len(sig.Outputs))
	m.slots = make(map[string]int, len(inputNames)+len(outputNames))
	for i, port := range sig.Inputs {
		inputNames[i] = port.Tensor.ID
		m.slots[port.Tensor.ID] = i
	}
	for i, port := range sig.Outputs {
		outputNames[i] = port.Tensor.ID
		m.slots[port.Tensor.ID] = i
	}
	m.Session, err = ort.NewDynamicAdvancedSessionWithONNXData(onnxBytes, inputNames, outputNames, sessionOptions)
	if err != nil {
		return loadErr(StageAllocate, err)
	}
	if m.inputValues, err = newORTValues(sig.Inputs); err != nil {
		return loadErr(StageAllocate, err)
	}
	if m.outputValues, err = newORTValues(sig.Outputs); err != nil {
		return loadErr(StageAllocate, err)
	}

	m.signature = sig
	m.loaded = true
	m.logger.Info().Str("path", modelPath).Int("inputs", len(sig.Inputs)).Int("outputs", len(sig.Outputs)).Msg("model loaded")
	return sig.Clone(), nil
}

// loadInputOutputMetaORT reads the ports from the model bytes. ORT addresses tensors
// by their graph name, so the name doubles as the ID.
func loadInputOutputMetaORT(onnxBytes []byte) ([]InputOutputInfo, []InputOutputInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, nil, err
	}
	return convertORTInputOutputs(inputs), convertORTInputOutputs(outputs), nil
}

func convertORTInputOutputs(inputOutputs []ort.InputOutputInfo) []InputOutputInfo {
	infos := make([]InputOutputInfo, len(inputOutputs))
	for i, info := range inputOutputs {
		infos[i] = InputOutputInfo{
			ID:         info.Name,
			Name:       info.Name,
			ElemType:   int32(info.DataType),
			Dimensions: append([]int64(nil), info.Dimensions...),
		}
	}
	return infos
}

func newORTValues(ports []signature.ModelPort) ([]ort.Value, error) {
	values := make([]ort.Value, 0, len(ports))
	for _, port := range ports {
		shape := ort.NewShape(port.Tensor.Spec.Shape...)
		var value ort.Value
		var err error
		switch port.Tensor.Spec.DType {
		case tensors.Float32:
			value, err = ort.NewEmptyTensor[float32](shape)
		case tensors.Int32:
			value, err = ort.NewEmptyTensor[int32](shape)
		default:
			err = fmt.Errorf("data type %s is not supported", port.Tensor.Spec.DType)
		}
		if err != nil {
			return values, errors.Join(fmt.Errorf("tensor %q: %w", port.Name, err), destroyORTValues(values))
		}
		values = append(values, value)
	}
	return values, nil
}

func destroyORTValues(values []ort.Value) error {
	var errs []error
	for _, v := range values {
		if v != nil {
			errs = append(errs, v.Destroy())
		}
	}
	return errors.Join(errs...)
}

func (m *ORTModel) Run(inputs, outputs []tensors.Named) error {
	if err := m.checkRun(inputs, outputs); err != nil {
		return err
	}
	start := time.Now()

	for i, in := range inputs {
		if err := copyToORT(m.inputValues[m.slots[m.inputHandles[i]]], in.Tensor); err != nil {
			return fmt.Errorf("input %q: %w", in.Name, err)
		}
	}
	if err := m.Session.Run(m.inputValues, m.outputValues); err != nil {
		return &RunError{Backend: m.name, Err: err}
	}
	for i, out := range outputs {
		if err := copyFromORT(out.Tensor, m.outputValues[m.slots[m.outputHandles[i]]]); err != nil {
			return &RunError{Backend: m.name, Err: fmt.Errorf("output %q: %w", out.Name, err)}
		}
	}
	m.timings.add(time.Since(start))
	return nil
}

func copyToORT(dst ort.Value, src *tensors.Tensor) error {
	switch native := dst.(type) {
	case *ort.Tensor[float32]:
		if src.DType() != tensors.Float32 {
			return fmt.Errorf("cannot copy %s into a float32 tensor", src.Spec())
		}
		return copyChecked(native.GetData(), src.Float32s(), src.Spec(), native.GetShape())
	case *ort.Tensor[int32]:
		if src.DType() != tensors.Int32 {
			return fmt.Errorf("cannot copy %s into an int32 tensor", src.Spec())
		}
		return copyChecked(native.GetData(), src.Int32s(), src.Spec(), native.GetShape())
	}
	return fmt.Errorf("unexpected engine tensor %T", dst)
}

func copyFromORT(dst *tensors.Tensor, src ort.Value) error {
	switch native := src.(type) {
	case *ort.Tensor[float32]:
		if dst.DType() != tensors.Float32 {
			return fmt.Errorf("engine produced float32, caller tensor is %s", dst.Spec())
		}
		return copyChecked(dst.Float32s(), native.GetData(), dst.Spec(), native.GetShape())
	case *ort.Tensor[int32]:
		if dst.DType() != tensors.Int32 {
			return fmt.Errorf("engine produced int32, caller tensor is %s", dst.Spec())
		}
		return copyChecked(dst.Int32s(), native.GetData(), dst.Spec(), native.GetShape())
	}
	return fmt.Errorf("unexpected engine tensor %T", src)
}

// copyChecked copies src into dst when both hold the same number of elements.
func copyChecked[T float32 | int32](dst, src []T, caller tensors.Spec, engine ort.Shape) error {
	if len(dst) != len(src) {
		return fmt.Errorf("cannot copy between %s and engine tensor of shape %v", caller, engine)
	}
	copy(dst, src)
	return nil
}

func (m *ORTModel) Clear() {
	if err := m.release(); err != nil {
		m.logger.Error().Err(err).Msg("releasing onnxruntime resources")
	}
	m.reset()
}

func (m *ORTModel) release() error {
	var errs []error
	errs = append(errs, destroyORTValues(m.inputValues), destroyORTValues(m.outputValues))
	if m.Session != nil {
		errs = append(errs, m.Session.Destroy())
	}
	m.inputValues, m.outputValues, m.Session, m.slots = nil, nil, nil, nil
	return errors.Join(errs...)
}

func (m *ORTModel) Destroy() error {
	err := m.release()
	m.reset()
	m.timings.reset()
	return err
}
