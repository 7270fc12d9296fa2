package sequence

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-sequence/runner"
)

// State is the lifecycle stage of a Sequence.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MetricsRecorder receives per-action measurements from a Sequence.
type MetricsRecorder interface {
	RecordDuration(actionType string, duration time.Duration)
	RecordError(actionType string)
	RecordSuccess(actionType string)
	RecordRetry(actionType string)
	RecordQueueDepth(depth int)
}

// OutcomeHandler is called once per dequeued action with its final error.
type OutcomeHandler func(ctx context.Context, action Executable, err error)

type Option func(*Sequence)

func WithLogger(logger Logger) Option {
	return func(s *Sequence) {
		s.logger = logger
	}
}

// WithRetryStrategy replaces the default 2^n seconds plus jitter backoff.
func WithRetryStrategy(strategy runner.RetryStrategy) Option {
	return func(s *Sequence) {
		if strategy != nil {
			s.strategy = strategy
		}
	}
}

// WithRetryLicenseFailures makes InvalidLicense errors retryable.
func WithRetryLicenseFailures(retry bool) Option {
	return func(s *Sequence) {
		s.retryLicense = retry
	}
}

// WithIdleBackoff sets the wait after an empty dequeue. Zero only yields.
func WithIdleBackoff(d time.Duration) Option {
	return func(s *Sequence) {
		s.idleBackoff = d
	}
}

func WithOutcomeHandler(fn OutcomeHandler) Option {
	return func(s *Sequence) {
		s.outcome = fn
	}
}

func WithRecorder(recorder MetricsRecorder) Option {
	return func(s *Sequence) {
		s.recorder = recorder
	}
}

// Sequence is the driver loop: it dequeues actions and hands them to its
// Worker with retry until shut down.
type Sequence struct {
	worker Worker
	queue  Queue
	life   *Life

	shutdown *Signal[bool]
	state    atomic.Int32
	control  *runner.ManualExecutionControl
	done     chan struct{}

	logger       Logger
	strategy     runner.RetryStrategy
	retryLicense bool
	idleBackoff  time.Duration
	outcome      OutcomeHandler
	recorder     MetricsRecorder
}

func NewSequence(worker Worker, queue Queue, life *Life, opts ...Option) *Sequence {
	if worker == nil {
		worker = PassThrough{}
	}
	if queue == nil {
		queue = NewProduction()
	}
	if life == nil {
		life = NewLife()
	}
	s := &Sequence{
		worker:   worker,
		queue:    queue,
		life:     life,
		shutdown: NewSignal(false),
		control:  runner.NewManualExecutionControl(),
		done:     make(chan struct{}),
		strategy: runner.JitteredExponentialStrategy{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = normalizeLogger(s.logger)
	return s
}

func (s *Sequence) Queue() Queue { return s.queue }
func (s *Sequence) Life() *Life  { return s.life }

func (s *Sequence) State() State {
	return State(s.state.Load())
}

// Done is closed once Run returns.
func (s *Sequence) Done() <-chan struct{} {
	return s.done
}

// Shutdown asks the loop to stop at its next iteration boundary. An action
// already handed to the worker runs to completion.
func (s *Sequence) Shutdown() {
	s.shutdown.Set(true)
	s.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown))
	s.control.Cancel(errors.New("sequence shutting down", errors.CategoryConflict).
		WithTextCode(ErrCodeSequenceState))
}

// Pause holds the loop before its next dequeue until Resume.
func (s *Sequence) Pause()  { s.control.Pause() }
func (s *Sequence) Resume() { s.control.Resume() }

// Run drives the loop until Shutdown, returning nil, or until ctx is done,
// returning the context error. A Sequence runs once.
func (s *Sequence) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return cloneError(ErrSequenceState, "sequence already started", nil, map[string]any{
			"state": s.State().String(),
		})
	}
	defer func() {
		s.state.Store(int32(StateStopped))
		close(s.done)
	}()

	s.logger.Debug("sequence started")

	for {
		if s.shutdown.Get() {
			s.state.Store(int32(StateShuttingDown))
			s.logger.Debug("sequence shutting down")
			return nil
		}

		if err := s.control.WaitIfPaused(ctx); err != nil {
			if s.shutdown.Get() {
				continue
			}
			return err
		}

		action, ok := s.queue.Dequeue()
		if !ok {
			if err := s.idle(ctx); err != nil {
				return err
			}
			continue
		}

		if s.recorder != nil {
			s.recorder.RecordQueueDepth(s.queue.Len())
		}

		err := s.ExecuteWithRetry(ctx, action)
		if s.outcome != nil {
			s.outcome(ctx, action, err)
		}
	}
}

// ExecuteWithRetry hands a fresh duplicate of action to the worker for each
// attempt, up to max_retries retries. InvalidLicense failures are not
// retried unless WithRetryLicenseFailures is set.
func (s *Sequence) ExecuteWithRetry(ctx context.Context, action Executable) error {
	if action == nil {
		return ExecutionError("nil action", nil, nil)
	}

	actionType := action.Type()
	logger := withLoggerFields(s.logger.WithContext(ctx), map[string]any{
		"action_type": actionType,
		"action_id":   action.ID(),
	})

	attempts := 0
	h := runner.NewHandler(
		runner.WithMaxRetries(s.life.MaxRetries()),
		runner.WithRetryStrategy(s.strategy),
		runner.WithRetryable(s.retryable),
		runner.WithLogger(logger),
		runner.WithAttemptHandler(func(attempt int, _ error) {
			attempts = attempt
		}),
	)

	start := time.Now()
	err := h.Run(ctx, func(ctx context.Context) error {
		return s.worker.Receive(ctx, action.Duplicate(), s.life)
	})

	if s.recorder != nil {
		s.recorder.RecordDuration(actionType, time.Since(start))
		retries := attempts - 1
		if err == nil {
			retries = attempts
		}
		for i := 0; i < retries; i++ {
			s.recorder.RecordRetry(actionType)
		}
		if err != nil {
			s.recorder.RecordError(actionType)
		} else {
			s.recorder.RecordSuccess(actionType)
		}
	}

	return err
}

func (s *Sequence) retryable(err error) bool {
	if IsInvalidLicense(err) {
		return s.retryLicense
	}
	return true
}

func (s *Sequence) idle(ctx context.Context) error {
	if s.idleBackoff <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	timer := time.NewTimer(s.idleBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
