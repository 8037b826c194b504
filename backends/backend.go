package backends

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
)

// Backend is an inference engine able to load a model artifact and run it on caller owned tensors.
type Backend interface {
	Name() string
	// Load reads the model at path and returns its canonical (sorted) signature.
	Load(path string) (signature.ModelSignature, error)
	Signature() signature.ModelSignature
	// Prepare validates the caller tensors against the signature and records the handle order.
	Prepare(inputs, outputs []tensors.Named) error
	// Run executes the model. It panics when called without a successful Prepare.
	Run(inputs, outputs []tensors.Named) error
	// Clear releases the engine and returns the backend to the unloaded state.
	Clear()
	GetStats() []string
	Destroy() error
}

// ErrNoModelLoaded is returned when an operation needs a loaded model.
var ErrNoModelLoaded = errors.New("no model loaded")

// Stage identifies the load step that failed.
type Stage string

const (
	StageRead      Stage = "read"
	StageParse     Stage = "parse"
	StageSignature Stage = "signature"
	StageAllocate  Stage = "allocate"
)

type LoadError struct {
	Backend string
	Stage   Stage
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: loading %s failed at %s: %v", e.Backend, e.Path, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RunError wraps a failure reported by the engine itself.
type RunError struct {
	Backend string
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: run failed: %v", e.Backend, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

type timings struct {
	NumCalls uint64
	TotalNS  uint64
}

func (t *timings) add(d time.Duration) {
	atomic.AddUint64(&t.NumCalls, 1)
	atomic.AddUint64(&t.TotalNS, uint64(d))
}

func (t *timings) reset() {
	atomic.StoreUint64(&t.NumCalls, 0)
	atomic.StoreUint64(&t.TotalNS, 0)
}

func (t *timings) stats(backend string) []string {
	calls := atomic.LoadUint64(&t.NumCalls)
	total := atomic.LoadUint64(&t.TotalNS)
	average := time.Duration(0)
	if calls > 0 {
		average = time.Duration(total / calls)
	}
	return []string{
		fmt.Sprintf("Statistics for backend: %s", backend),
		fmt.Sprintf("Run: Total time=%s, Execution count=%d, Average query time=%s",
			time.Duration(total), calls, average),
	}
}
