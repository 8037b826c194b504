package options

import (
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knights-analytics/dualrun/ops"
	"github.com/knights-analytics/dualrun/utils"
)

const (
	BackendORT = "ORT"
	BackendGo  = "GO"
)

type Options struct {
	// Backends lists the active backends, in the order they are loaded and compared.
	Backends []string
	// BackendOptions holds backend specific runtime handles, e.g. the ORT session options.
	BackendOptions any
	ORTOptions     *OrtOptions
	// ModelFilename is the model file inside a model directory.
	ModelFilename string
	// DynamicDimensionSize replaces unresolved model dimensions. Zero rejects them.
	DynamicDimensionSize int64
	// Operators are the custom operators made available to the Go backend.
	Operators *ops.Registry
	// Diagnostics enables the Prepare snapshot check on every Run.
	Diagnostics bool
	Tolerance   Tolerance
	Logger      zerolog.Logger
	Destroy     func() error
}

// Tolerance bounds the difference allowed between two backends' outputs.
type Tolerance struct {
	Abs float64
	Rel float64
}

func Defaults() *Options {
	_, libraryPathDefault := getDefaultLibraryPaths()
	return &Options{
		ORTOptions: &OrtOptions{
			LibraryPath: &libraryPathDefault,
		},
		ModelFilename:        "model.onnx",
		DynamicDimensionSize: 1,
		Operators:            ops.DefaultRegistry(),
		Tolerance:            Tolerance{Abs: 1e-5, Rel: 1e-4},
		Logger:               log.Logger,
		Destroy: func() error {
			return nil
		},
	}
}

// HasBackend reports whether the named backend is active.
func (o *Options) HasBackend(backend string) bool {
	return slices.Contains(o.Backends, backend)
}

func getDefaultLibraryPaths() (string, string) {
	switch runtime.GOOS {
	case "windows":
		return `onnxruntime.dll`, `.\onnxruntime.dll`
	case "darwin":
		return "libonnxruntime.dylib", "/usr/local/lib/libonnxruntime.dylib"
	default:
		return "libonnxruntime.so", "/usr/lib/libonnxruntime.so"
	}
}

type OrtOptions struct {
	LibraryPath       *string
	Telemetry         *bool
	IntraOpNumThreads *int
	InterOpNumThreads *int
	CPUMemArena       *bool
	MemPattern        *bool
	CudaOptions       map[string]string
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options) error

// Apply applies opts in order to o.
func Apply(o *Options, opts ...WithOption) error {
	for _, option := range opts {
		if option == nil {
			continue
		}
		if err := option(o); err != nil {
			return err
		}
	}
	return nil
}

var errORTOnly = errors.New("is only supported when the ORT backend is active")

// WithOnnxLibraryPath (ORT only) Use this function to set the path to the "libonnxruntime.so", "libonnxruntime.dylib" or "onnxruntime.dll" file.
func WithOnnxLibraryPath(ortLibraryPath string) WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithOnnxLibraryPath %w", errORTOnly)
		}
		exists, err := utils.FileExists(ortLibraryPath)
		if err != nil {
			return fmt.Errorf("failed to access ONNX Runtime library path %q: %w", ortLibraryPath, err)
		}
		if !exists {
			return fmt.Errorf("ONNX Runtime library does not exist at %q", ortLibraryPath)
		}
		o.ORTOptions.LibraryPath = &ortLibraryPath
		return nil
	}
}

// WithTelemetry (ORT only) Enables telemetry events for the onnxruntime environment. Default is off.
func WithTelemetry() WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithTelemetry %w", errORTOnly)
		}
		enabled := true
		o.ORTOptions.Telemetry = &enabled
		return nil
	}
}

// WithIntraOpNumThreads (ORT only) Sets the number of threads used to parallelize execution within onnxruntime
// graph nodes. If unspecified, onnxruntime uses the number of physical CPU cores.
func WithIntraOpNumThreads(numThreads int) WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithIntraOpNumThreads %w", errORTOnly)
		}
		o.ORTOptions.IntraOpNumThreads = &numThreads
		return nil
	}
}

// WithInterOpNumThreads (ORT only) Sets the number of threads used to parallelize execution across separate
// onnxruntime graph nodes. If unspecified, onnxruntime uses the number of physical CPU cores.
func WithInterOpNumThreads(numThreads int) WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithInterOpNumThreads %w", errORTOnly)
		}
		o.ORTOptions.InterOpNumThreads = &numThreads
		return nil
	}
}

// WithCPUMemArena (ORT only) Enable/Disable the usage of the memory arena on CPU.
// Arena may pre-allocate memory for future usage. Default is true.
func WithCPUMemArena(enable bool) WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithCPUMemArena %w", errORTOnly)
		}
		o.ORTOptions.CPUMemArena = &enable
		return nil
	}
}

// WithMemPattern (ORT only) Enable/Disable the memory pattern optimization.
// If this is enabled memory is preallocated if all shapes are known. Default is true.
func WithMemPattern(enable bool) WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithMemPattern %w", errORTOnly)
		}
		o.ORTOptions.MemPattern = &enable
		return nil
	}
}

// WithCuda (ORT only) Use this function to set the options for the CUDA provider.
func WithCuda(options map[string]string) WithOption {
	return func(o *Options) error {
		if !o.HasBackend(BackendORT) {
			return fmt.Errorf("WithCuda %w", errORTOnly)
		}
		o.ORTOptions.CudaOptions = options
		return nil
	}
}

// WithModelFilename sets the model file looked up inside a model directory. Default is "model.onnx".
func WithModelFilename(filename string) WithOption {
	return func(o *Options) error {
		if filename == "" {
			return errors.New("model filename cannot be empty")
		}
		o.ModelFilename = filename
		return nil
	}
}

// WithDynamicDimensionSize sets the size substituted for unresolved model dimensions (e.g. the batch axis).
// Default is 1. With 0, models declaring unresolved dimensions fail to load.
func WithDynamicDimensionSize(size int64) WithOption {
	return func(o *Options) error {
		if size < 0 {
			return fmt.Errorf("dynamic dimension size must be >= 0, got %d", size)
		}
		o.DynamicDimensionSize = size
		return nil
	}
}

// WithOperatorRegistry replaces the custom operators available to the Go backend.
func WithOperatorRegistry(registry *ops.Registry) WithOption {
	return func(o *Options) error {
		if registry == nil {
			return errors.New("operator registry cannot be nil")
		}
		o.Operators = registry
		return nil
	}
}

// WithDiagnostics makes every Run verify that its tensors match the ones given to Prepare.
func WithDiagnostics() WithOption {
	return func(o *Options) error {
		o.Diagnostics = true
		return nil
	}
}

// WithComparisonTolerance sets the absolute and relative tolerance used when two backends run side by side.
func WithComparisonTolerance(abs, rel float64) WithOption {
	return func(o *Options) error {
		if abs < 0 || rel < 0 {
			return fmt.Errorf("tolerances must be >= 0, got abs %g rel %g", abs, rel)
		}
		o.Tolerance = Tolerance{Abs: abs, Rel: rel}
		return nil
	}
}

// WithLogger sets the logger used by the session and its backends.
func WithLogger(logger zerolog.Logger) WithOption {
	return func(o *Options) error {
		o.Logger = logger
		return nil
	}
}
