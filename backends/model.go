package backends

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
	"github.com/knights-analytics/dualrun/utils"
	"github.com/knights-analytics/dualrun/utils/checks"
)

// InputOutputInfo is the engine metadata of one model tensor before it becomes a port.
type InputOutputInfo struct {
	// ID is the handle the engine uses to address the tensor.
	ID   string
	Name string
	// ElemType is the raw ONNX element type code.
	ElemType   int32
	Dimensions []int64
}

// ONNX element type codes shared by both engines.
const (
	onnxFloat int32 = 1
	onnxInt32 int32 = 6
)

func dataTypeFromONNX(code int32) tensors.DataType {
	switch code {
	case onnxFloat:
		return tensors.Float32
	case onnxInt32:
		return tensors.Int32
	default:
		return tensors.Invalid
	}
}

// buildSignature turns engine metadata into a sorted signature. Unresolved dimensions
// take dynamicSize, or fail when it is zero.
func buildSignature(inputs, outputs []InputOutputInfo, dynamicSize int64) (signature.ModelSignature, error) {
	in, err := buildPorts(signature.Input, inputs, dynamicSize)
	if err != nil {
		return signature.ModelSignature{}, err
	}
	out, err := buildPorts(signature.Output, outputs, dynamicSize)
	if err != nil {
		return signature.ModelSignature{}, err
	}
	return signature.New(in, out), nil
}

func buildPorts(side signature.Side, infos []InputOutputInfo, dynamicSize int64) ([]signature.ModelPort, error) {
	ports := make([]signature.ModelPort, 0, len(infos))
	seen := make(map[string]bool, len(infos))
	for i, info := range infos {
		if info.Name == "" {
			return nil, fmt.Errorf("%s tensor %d has no name", side, i)
		}
		if seen[info.Name] {
			return nil, fmt.Errorf("%s tensor %q is declared twice", side, info.Name)
		}
		seen[info.Name] = true
		dtype := dataTypeFromONNX(info.ElemType)
		if dtype == tensors.Invalid {
			return nil, fmt.Errorf("%s tensor %q has unsupported element type %d", side, info.Name, info.ElemType)
		}
		shape := make([]int64, len(info.Dimensions))
		for d, size := range info.Dimensions {
			if size >= 0 {
				shape[d] = size
				continue
			}
			if dynamicSize == 0 {
				return nil, fmt.Errorf("%s tensor %q has unresolved dimension %d", side, info.Name, d)
			}
			shape[d] = dynamicSize
		}
		ports = append(ports, signature.ModelPort{
			Name:   info.Name,
			Tensor: tensors.NamedSpec{ID: info.ID, Spec: tensors.Spec{DType: dtype, Shape: shape}},
		})
	}
	return ports, nil
}

// portState is the bookkeeping both engines share: the signature of the loaded model and
// the handle order fixed by the last successful Prepare.
type portState struct {
	name          string
	logger        zerolog.Logger
	signature     signature.ModelSignature
	loaded        bool
	prepared      bool
	inputHandles  []string
	outputHandles []string
	timings       timings
}

func newPortState(name string, o *options.Options) portState {
	return portState{name: name, logger: o.Logger.With().Str("backend", name).Logger()}
}

func (s *portState) Name() string { return s.name }

func (s *portState) Signature() signature.ModelSignature {
	return s.signature.Clone()
}

func (s *portState) GetStats() []string {
	return s.timings.stats(s.name)
}

// Prepare validates inputs and outputs position by position. On failure no previous
// preparation survives.
func (s *portState) Prepare(inputs, outputs []tensors.Named) error {
	s.unprepare()
	if !s.loaded {
		return ErrNoModelLoaded
	}
	inputHandles, err := signature.ValidateRequest(signature.Input, s.signature.Inputs, inputs)
	if err != nil {
		return err
	}
	outputHandles, err := signature.ValidateRequest(signature.Output, s.signature.Outputs, outputs)
	if err != nil {
		return err
	}
	s.inputHandles = inputHandles
	s.outputHandles = outputHandles
	s.prepared = true
	s.logger.Debug().Int("inputs", len(inputs)).Int("outputs", len(outputs)).Msg("prepared")
	return nil
}

// checkRun guards Run. Running without a model is an error, any other misuse is a
// programming error and panics.
func (s *portState) checkRun(inputs, outputs []tensors.Named) error {
	if !s.loaded {
		return ErrNoModelLoaded
	}
	checks.Assert(s.prepared, "%s: Run called without a successful Prepare", s.name)
	checks.Assert(len(inputs) == len(s.inputHandles), "%s: Run got %d inputs, Prepare fixed %d", s.name, len(inputs), len(s.inputHandles))
	checks.Assert(len(outputs) == len(s.outputHandles), "%s: Run got %d outputs, Prepare fixed %d", s.name, len(outputs), len(s.outputHandles))
	return nil
}

func (s *portState) unprepare() {
	s.prepared = false
	s.inputHandles = nil
	s.outputHandles = nil
}

func (s *portState) reset() {
	s.unprepare()
	s.loaded = false
	s.signature.Clear()
}

// readModel reads the model artifact. path may be the model file itself or a directory holding filename.
func readModel(path, filename string) ([]byte, string, error) {
	if path == "" {
		return nil, "", errors.New("model path is empty")
	}
	modelPath := path
	candidate := utils.PathJoinSafe(path, filename)
	if exists, err := utils.FileExists(candidate); err == nil && exists {
		modelPath = candidate
	}
	data, err := utils.ReadFileBytes(modelPath)
	if err != nil {
		return nil, modelPath, err
	}
	if len(data) == 0 {
		return nil, modelPath, fmt.Errorf("%s is empty", modelPath)
	}
	return data, modelPath, nil
}
