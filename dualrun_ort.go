//go:build cgo && (ORT || ALL)

package dualrun

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/knights-analytics/dualrun/backends"
	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/utils"
)

// NewORTSession creates a session on onnxruntime. Only one ORT session can be active at a time.
func NewORTSession(opts ...options.WithOption) (*Session, error) {
	session, err := newSession([]string{options.BackendORT}, opts...)
	if err != nil {
		return nil, err
	}
	if session, err = ortSession(session); err != nil {
		return nil, err
	}
	session.backends = []backends.Backend{backends.NewORTModel(session.options)}
	return session, nil
}

// NewComparisonSession runs every model on onnxruntime and on the Go backend, returning the
// onnxruntime outputs and failing runs whose Go outputs diverge beyond the tolerance.
func NewComparisonSession(opts ...options.WithOption) (*Session, error) {
	session, err := newSession([]string{options.BackendORT, options.BackendGo}, opts...)
	if err != nil {
		return nil, err
	}
	if session, err = ortSession(session); err != nil {
		return nil, err
	}
	session.backends = []backends.Backend{
		backends.NewORTModel(session.options),
		backends.NewGoModel(session.options),
	}
	return session, nil
}

var errORTActive = errors.New("another session is currently active, and only one session can be active at one time")

// ortSession starts the onnxruntime environment and attaches the shared session options.
// Whatever was created is released again when a later step fails.
func ortSession(session *Session) (*Session, error) {
	if ort.IsInitialized() {
		return nil, errORTActive
	}
	o := session.options.ORTOptions
	if err := loadORTLibrary(o); err != nil {
		return nil, err
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialising onnxruntime: %w", err)
	}
	sessionOptions, err := configureORT(o)
	if err != nil {
		return nil, errors.Join(err, ort.DestroyEnvironment())
	}
	session.options.BackendOptions = sessionOptions
	session.options.Destroy = sessionOptions.Destroy
	session.environmentDestroy = ort.DestroyEnvironment
	return session, nil
}

func loadORTLibrary(o *options.OrtOptions) error {
	if o.LibraryPath == nil {
		return nil
	}
	exists, err := utils.FileExists(*o.LibraryPath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("cannot find the ort library at: %s", *o.LibraryPath)
	}
	ort.SetSharedLibraryPath(*o.LibraryPath)
	return nil
}

// configureORT sets environment telemetry and builds the session options every model
// of the session is loaded with.
func configureORT(o *options.OrtOptions) (*ort.SessionOptions, error) {
	telemetry := ort.DisableTelemetry
	if o.Telemetry != nil && *o.Telemetry {
		telemetry = ort.EnableTelemetry
	}
	if err := telemetry(); err != nil {
		return nil, fmt.Errorf("setting onnxruntime telemetry: %w", err)
	}
	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if err = applySessionOptions(sessionOptions, o); err != nil {
		return nil, errors.Join(err, sessionOptions.Destroy())
	}
	return sessionOptions, nil
}

func applySessionOptions(so *ort.SessionOptions, o *options.OrtOptions) error {
	var errs []error
	if o.IntraOpNumThreads != nil {
		errs = append(errs, so.SetIntraOpNumThreads(*o.IntraOpNumThreads))
	}
	if o.InterOpNumThreads != nil {
		errs = append(errs, so.SetInterOpNumThreads(*o.InterOpNumThreads))
	}
	if o.CPUMemArena != nil {
		errs = append(errs, so.SetCpuMemArena(*o.CPUMemArena))
	}
	if o.MemPattern != nil {
		errs = append(errs, so.SetMemPattern(*o.MemPattern))
	}
	if o.CudaOptions != nil {
		errs = append(errs, appendCUDA(so, o.CudaOptions))
	}
	return errors.Join(errs...)
}

// appendCUDA adds the CUDA provider. The session options keep their own copy of the
// provider settings, so the provider options are released on return.
func appendCUDA(so *ort.SessionOptions, settings map[string]string) (err error) {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, cuda.Destroy())
	}()
	if len(settings) > 0 {
		if err = cuda.Update(settings); err != nil {
			return err
		}
	}
	return so.AppendExecutionProviderCUDA(cuda)
}
