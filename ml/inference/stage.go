// Package inference runs a model over frames with at most one model call in flight. What happens
// to a call that arrives while the model is busy is set by a BusyPolicy.
package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/sync/semaphore"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
)

// BusyPolicy decides what a call does when another call holds the model.
type BusyPolicy string

const (
	// BusyPolicyQueue keeps one waiting call. A newer call takes its place and the replaced call
	// returns ErrFrameDropped.
	BusyPolicyQueue = BusyPolicy("queue")
	// BusyPolicyReject returns ErrBusy immediately.
	BusyPolicyReject = BusyPolicy("reject")
	// BusyPolicyWait blocks every caller and admits them in arrival order. Nothing is dropped.
	BusyPolicyWait = BusyPolicy("wait")
)

// Validate returns an error for unknown policies.
func (p BusyPolicy) Validate() error {
	switch p {
	case BusyPolicyQueue, BusyPolicyReject, BusyPolicyWait:
		return nil
	default:
		return errors.Errorf("unknown busy policy %q", p)
	}
}

// State is whether a model call is in flight.
type State int32

// The stage states.
const (
	StateIdle State = iota
	StateBusy
)

func (s State) String() string {
	if s == StateBusy {
		return "busy"
	}
	return "idle"
}

// Stats counts what happened to calls since the stage was created.
type Stats struct {
	Completed int64
	Failed    int64
	Rejected  int64
	Dropped   int64
}

// Stage serializes calls into one model.
type Stage struct {
	model    mlmodel.Service
	metadata mlmodel.MLMetadata
	policy   BusyPolicy
	logger   logging.Logger

	sem   *semaphore.Weighted
	state atomic.Int32

	mu      sync.Mutex
	pending *waiter

	completed, failed, rejected, dropped atomic.Int64
}

// NewStage reads and validates the model's metadata once and returns a stage around it.
func NewStage(ctx context.Context, model mlmodel.Service, policy BusyPolicy, logger logging.Logger) (*Stage, error) {
	if model == nil {
		return nil, errors.New("no model given")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	md, err := model.Metadata(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read model metadata")
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return &Stage{
		model:    model,
		metadata: md,
		policy:   policy,
		logger:   logger,
		sem:      semaphore.NewWeighted(1),
	}, nil
}

// Metadata is the model metadata read at construction.
func (s *Stage) Metadata() mlmodel.MLMetadata { return s.metadata }

// Policy returns the busy policy.
func (s *Stage) Policy() BusyPolicy { return s.policy }

// State reports whether a model call is in flight.
func (s *Stage) State() State { return State(s.state.Load()) }

// Stats returns a snapshot of the call counters.
func (s *Stage) Stats() Stats {
	return Stats{
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Rejected:  s.rejected.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Infer runs the model over buf. A buffer that does not match the declared input fails with an
// *InferenceError wrapping an *InvalidInputError before any admission. Model errors and panics
// are returned as *InferenceError. ErrBusy, ErrFrameDropped and context errors are returned
// as is.
func (s *Stage) Infer(ctx context.Context, buf *rimage.ImageBuffer) (*ml.Tensor, error) {
	ctx, span := trace.StartSpan(ctx, "inference::Stage::Infer")
	defer span.End()

	if err := checkInput(s.metadata.Input, buf); err != nil {
		s.failed.Add(1)
		return nil, &InferenceError{Err: err}
	}
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.run(ctx, buf)
}

func (s *Stage) admit(ctx context.Context) error {
	if s.sem.TryAcquire(1) {
		return nil
	}
	switch s.policy {
	case BusyPolicyReject:
		s.rejected.Add(1)
		return ErrBusy
	case BusyPolicyWait:
		return s.sem.Acquire(ctx, 1)
	case BusyPolicyQueue:
		return s.waitReplaceable(ctx)
	default:
		return errors.Errorf("unknown busy policy %q", s.policy)
	}
}

type waiter struct {
	cancel context.CancelCauseFunc
}

// waitReplaceable waits for the model as the single pending call, evicting any earlier one.
func (s *Stage) waitReplaceable(ctx context.Context) error {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	me := &waiter{cancel: cancel}
	s.mu.Lock()
	if s.pending != nil {
		s.pending.cancel(ErrFrameDropped)
	}
	s.pending = me
	s.mu.Unlock()

	err := s.sem.Acquire(waitCtx, 1)

	s.mu.Lock()
	if s.pending == me {
		s.pending = nil
	}
	s.mu.Unlock()
	dropped := errors.Is(context.Cause(waitCtx), ErrFrameDropped)

	if err == nil {
		return nil
	}
	if dropped {
		s.dropped.Add(1)
		return ErrFrameDropped
	}
	return err
}

func (s *Stage) run(ctx context.Context, buf *rimage.ImageBuffer) (*ml.Tensor, error) {
	s.state.Store(int32(StateBusy))
	defer s.state.Store(int32(StateIdle))

	start := time.Now()
	out, err := s.callModel(ctx, buf)
	if err == nil && out == nil {
		err = errors.New("model returned no output")
	}
	if err == nil && !out.MatchesShape(s.metadata.Output.Shape) {
		err = errors.Errorf("model output shape %v does not match declared shape %v", out.Shape(), s.metadata.Output.Shape)
	}
	if err != nil {
		s.failed.Add(1)
		s.logger.Debugw("inference failed", "model", s.metadata.ModelName, "error", err)
		return nil, &InferenceError{Err: err}
	}
	s.completed.Add(1)
	s.logger.Debugw("inference done", "model", s.metadata.ModelName, "took", time.Since(start))
	return out, nil
}

func (s *Stage) callModel(ctx context.Context, buf *rimage.ImageBuffer) (out *ml.Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.Errorf("model panicked: %v", r)
		}
	}()
	return s.model.Run(ctx, buf)
}
