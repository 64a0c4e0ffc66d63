// Package mutation runs backend writes and their cache side effects.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
)

// Status is the lifecycle of the most recent Mutate call.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// State exposes the outcome of the most recent Mutate call for display.
type State[Out any] struct {
	Status      Status
	Data        Out
	Err         error
	SubmittedAt time.Time
}

// Func performs the write.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// Options carries the lifecycle callbacks. Every callback is optional.
//
// OnMutate runs before the write; its result is passed to OnError and
// OnSettled so they can restore what it changed. On error nothing is rolled
// back unless OnError does it.
type Options[In, Out any] struct {
	OnMutate  func(ctx context.Context, in In) (any, error)
	OnSuccess func(ctx context.Context, out Out, in In) error
	OnError   func(ctx context.Context, err error, in In, rollback any)
	OnSettled func(ctx context.Context, out Out, err error, in In, rollback any)

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Mutation is safe for concurrent use; State tracks the latest call.
type Mutation[In, Out any] struct {
	name    string
	fn      Func[In, Out]
	opts    Options[In, Out]
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu    sync.Mutex
	seq   uint64
	state State[Out]
}

func New[In, Out any](name string, fn Func[In, Out], opts Options[In, Out]) *Mutation[In, Out] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Mutation[In, Out]{
		name:    name,
		fn:      fn,
		opts:    opts,
		logger:  logger.With(slog.String("agent", "mutation"), slog.String("mutation", name)),
		metrics: opts.Metrics,
		state:   State[Out]{Status: StatusIdle},
	}
}

func (m *Mutation[In, Out]) Name() string { return m.name }

// Mutate runs the write and settles to success or error. An OnSuccess error
// turns the mutation into an error.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	seq := m.begin()

	var (
		out      Out
		err      error
		rollback any
	)
	if m.fn == nil {
		err = fmt.Errorf("mutation %s: no mutation function", m.name)
	} else if m.opts.OnMutate != nil {
		rollback, err = m.opts.OnMutate(ctx, in)
		if err != nil {
			err = fmt.Errorf("mutation %s: prepare: %w", m.name, err)
		}
	}
	if err == nil {
		out, err = m.fn(ctx, in)
	}
	if err == nil && m.opts.OnSuccess != nil {
		if successErr := m.opts.OnSuccess(ctx, out, in); successErr != nil {
			err = fmt.Errorf("mutation %s: on success: %w", m.name, successErr)
		}
	}
	if err != nil && m.opts.OnError != nil {
		m.opts.OnError(ctx, err, in, rollback)
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, out, err, in, rollback)
	}

	m.settle(ctx, seq, out, err)
	return out, err
}

// State returns the latest outcome.
func (m *Mutation[In, Out]) State() State[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the mutation to idle.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.state = State[Out]{Status: StatusIdle}
}

func (m *Mutation[In, Out]) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.state = State[Out]{Status: StatusPending, SubmittedAt: time.Now()}
	return m.seq
}

func (m *Mutation[In, Out]) settle(ctx context.Context, seq uint64, out Out, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		outcome = metrics.OutcomeCanceled
	case err != nil:
		outcome = metrics.OutcomeError
	}
	m.metrics.ObserveMutation(m.name, outcome)
	if outcome == metrics.OutcomeError {
		m.logger.WarnContext(ctx, "mutation failed", slog.Any("error", err))
	} else {
		m.logger.DebugContext(ctx, "mutation settled", slog.String("outcome", string(outcome)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq {
		return
	}
	m.state.Data = out
	m.state.Err = err
	if err != nil {
		m.state.Status = StatusError
	} else {
		m.state.Status = StatusSuccess
	}
}
