package dualrun

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knights-analytics/dualrun/backends"
	"github.com/knights-analytics/dualrun/options"
	"github.com/knights-analytics/dualrun/signature"
	"github.com/knights-analytics/dualrun/tensors"
	"github.com/knights-analytics/dualrun/utils/checks"
)

// ErrSessionDestroyed is returned when a model is loaded into a destroyed session.
var ErrSessionDestroyed = errors.New("session destroyed")

// State is the lifecycle position of a Session.
type State int

const (
	Unloaded State = iota
	Loaded
	Prepared
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Prepared:
		return "prepared"
	default:
		return "unloaded"
	}
}

// Session dispatches Load, Prepare and Run to one backend, or to two backends side by side
// whose signatures and outputs must agree. A Session is not safe for concurrent use.
type Session struct {
	id                 string
	backends           []backends.Backend
	options            *options.Options
	logger             zerolog.Logger
	state              State
	signature          signature.ModelSignature
	snapshot           *snapshot
	scratch            [][]tensors.Named
	environmentDestroy func() error
}

func newSession(backendNames []string, opts ...options.WithOption) (*Session, error) {
	parsedOptions := options.Defaults()
	parsedOptions.Backends = backendNames
	if err := options.Apply(parsedOptions, opts...); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		options: parsedOptions,
		logger:  parsedOptions.Logger.With().Str("session", id).Strs("backends", backendNames).Logger(),
		environmentDestroy: func() error {
			return nil
		},
	}, nil
}

// NewSession creates a session over the given backends. With two backends the first is
// the reference whose outputs the caller receives, the second is checked against it.
func NewSession(backendList []backends.Backend, opts ...options.WithOption) (*Session, error) {
	if len(backendList) == 0 {
		return nil, errors.New("a session needs at least one backend")
	}
	if len(backendList) > 2 {
		return nil, fmt.Errorf("a session runs at most two backends, got %d", len(backendList))
	}
	names := make([]string, len(backendList))
	for i, b := range backendList {
		names[i] = b.Name()
	}
	session, err := newSession(names, opts...)
	if err != nil {
		return nil, err
	}
	session.backends = backendList
	return session, nil
}

// ID identifies the session in logs and spans.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return s.state
}

// Signature returns the reconciled signature, empty when no model is loaded.
func (s *Session) Signature() signature.ModelSignature {
	return s.signature.Clone()
}

// LoadModel loads the model at path into every backend. With two backends their
// signatures must match port by port; all mismatches are reported in one error.
// On any failure every backend is cleared.
func (s *Session) LoadModel(ctx context.Context, path string) (signature.ModelSignature, error) {
	_, span := tracer.Start(ctx, "LoadModel", trace.WithAttributes(
		attribute.String("session", s.id), attribute.String("model.path", path)))
	defer span.End()

	if len(s.backends) == 0 {
		return signature.ModelSignature{}, ErrSessionDestroyed
	}
	s.unload()
	labeled := make([]signature.Labeled, 0, len(s.backends))
	for _, b := range s.backends {
		sig, err := b.Load(path)
		modelLoads.WithLabelValues(b.Name(), resultLabel(err)).Inc()
		if err != nil {
			return signature.ModelSignature{}, s.failLoad(span, path, err)
		}
		labeled = append(labeled, signature.Labeled{Backend: b.Name(), Signature: sig})
	}
	var mismatches []error
	for _, other := range labeled[1:] {
		if err := signature.Compare(labeled[0], other); err != nil {
			mismatches = append(mismatches, err)
		}
	}
	if err := errors.Join(mismatches...); err != nil {
		return signature.ModelSignature{}, s.failLoad(span, path, err)
	}

	s.signature = labeled[0].Signature.Clone()
	s.state = Loaded
	s.logger.Info().Str("model", path).
		Strs("inputs", s.signature.InputNames()).
		Strs("outputs", s.signature.OutputNames()).
		Msg("model loaded")
	return s.signature.Clone(), nil
}

func (s *Session) failLoad(span trace.Span, path string, err error) error {
	s.unload()
	span.RecordError(err)
	span.SetStatus(codes.Error, "load failed")
	s.logger.Error().Err(err).Str("model", path).Msg("model load failed")
	return err
}

func (s *Session) unload() {
	for _, b := range s.backends {
		b.Clear()
	}
	s.signature.Clear()
	s.snapshot = nil
	s.scratch = nil
	s.state = Unloaded
}

// PrepareModel fixes the tensors later runs read and write. inputs and outputs must follow
// the signature order: the i-th entry carries the i-th port name (see signature.Order).
func (s *Session) PrepareModel(ctx context.Context, inputs, outputs []tensors.Named) error {
	_, span := tracer.Start(ctx, "PrepareModel", trace.WithAttributes(
		attribute.String("session", s.id), attribute.Int("inputs", len(inputs)), attribute.Int("outputs", len(outputs))))
	defer span.End()

	if s.state == Unloaded {
		return backends.ErrNoModelLoaded
	}
	s.state = Loaded
	s.snapshot = nil
	s.scratch = nil
	for _, b := range s.backends {
		if err := b.Prepare(inputs, outputs); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "prepare failed")
			s.logger.Warn().Err(err).Str("backend", b.Name()).Msg("prepare failed")
			return err
		}
	}
	for range s.backends[1:] {
		clones := make([]tensors.Named, len(outputs))
		for i, out := range outputs {
			clones[i] = tensors.Named{Name: out.Name, Tensor: out.Tensor.Clone()}
		}
		s.scratch = append(s.scratch, clones)
	}
	if s.options.Diagnostics {
		s.snapshot = takeSnapshot(inputs, outputs)
	}
	s.state = Prepared
	s.logger.Info().Int("inputs", len(inputs)).Int("outputs", len(outputs)).Bool("diagnostics", s.options.Diagnostics).Msg("model prepared")
	return nil
}

// RunModel runs the prepared model. Calling it without a successful PrepareModel is a
// programming error and panics.
func (s *Session) RunModel(ctx context.Context, inputs, outputs []tensors.Named) error {
	_, span := tracer.Start(ctx, "RunModel", trace.WithAttributes(attribute.String("session", s.id)))
	defer span.End()

	checks.Assert(s.state == Prepared, "RunModel called in state %s, PrepareModel must succeed first", s.state)
	if s.snapshot != nil {
		if err := s.snapshot.verify(inputs, outputs); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "diagnostics")
			return err
		}
	}

	reference := s.backends[0]
	if err := s.runBackend(reference, inputs, outputs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return err
	}
	for i, other := range s.backends[1:] {
		scratch := s.scratch[i]
		if err := s.runBackend(other, inputs, scratch); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run failed")
			return err
		}
		if err := compareOutputs(s.options.Tolerance, reference.Name(), outputs, other.Name(), scratch); err != nil {
			outputDivergences.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "outputs diverge")
			s.logger.Warn().Err(err).Str("reference", reference.Name()).Str("backend", other.Name()).Msg("outputs diverge")
			return err
		}
	}
	return nil
}

func (s *Session) runBackend(b backends.Backend, inputs, outputs []tensors.Named) error {
	start := time.Now()
	err := b.Run(inputs, outputs)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error().Err(err).Str("backend", b.Name()).Msg("run failed")
		return err
	}
	runDuration.WithLabelValues(b.Name()).Observe(elapsed.Seconds())
	s.logger.Debug().Str("backend", b.Name()).Dur("elapsed", elapsed).Msg("run")
	return nil
}

// GetStats returns the run statistics of every backend.
func (s *Session) GetStats() []string {
	stats := make([][]string, len(s.backends))
	for i, b := range s.backends {
		stats[i] = b.GetStats()
	}
	return slices.Concat(stats...)
}

// Destroy releases every backend, the runtime options and the engine environment.
// A session should be destroyed when not needed any more, preferably with a defer() call.
func (s *Session) Destroy() error {
	var err error
	for _, b := range s.backends {
		err = errors.Join(err, b.Destroy())
	}
	s.backends = nil
	s.signature.Clear()
	s.snapshot = nil
	s.scratch = nil
	s.state = Unloaded
	if s.options.Destroy != nil {
		err = errors.Join(err, s.options.Destroy())
		s.options.Destroy = nil
	}
	err = errors.Join(err, s.environmentDestroy())
	s.environmentDestroy = func() error { return nil }
	return err
}
