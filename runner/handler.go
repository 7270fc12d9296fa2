package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// Logger is the subset of a logger the runner writes to.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler runs a function with bounded retries and backoff between attempts.
type Handler struct {
	mu sync.Mutex

	logger         Logger
	errorHandler   func(error)
	doneHandler    func(r *Handler)
	attemptHandler func(attempt int, err error)
	retryStrategy  RetryStrategy
	retryable      func(error) bool

	runs           int
	successfulRuns int

	maxRuns    int
	maxRetries int
	timeout    time.Duration
	deadline   time.Time
	runOnce    bool
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	r := &Handler{
		errorHandler:  func(err error) {},
		doneHandler:   func(r *Handler) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Run calls fn until it succeeds, its error is not retryable, or
// maxRetries+1 attempts were made. It returns the last error unchanged.
// Backoff waits end early when ctx is done.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()

	if h.runOnce && h.successfulRuns >= 1 {
		h.mu.Unlock()
		return nil
	}

	if h.successfulRuns >= h.maxRuns && h.maxRuns > 0 {
		h.mu.Unlock()
		return nil
	}

	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		err = fn(ctx)
		if err == nil {
			break
		}

		if h.attemptHandler != nil {
			h.attemptHandler(attempts, err)
		}

		if attempt >= maxRetries || !h.shouldRetry(err) {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			break
		}

		h.logWarn("Action failed, retrying in %s. Attempt %d of %d: %v",
			decision.Delay, attempts, maxRetries+1, err)

		if waitErr := sleep(ctx, decision.Delay); waitErr != nil {
			err = errors.Wrap(waitErr, errors.CategoryExternal, "retry wait interrupted").
				WithMetadata(map[string]any{"attempt": attempts, "last_error": err.Error()})
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++

	if err == nil {
		h.successfulRuns++
	} else {
		h.handleError(errors.Wrap(err, errors.CategoryHandler,
			fmt.Sprintf("run failed after %d attempts", attempts),
		).WithMetadata(map[string]any{"attempts": attempts}))
	}

	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.done()
	}

	return err
}

func (h *Handler) shouldRetry(err error) bool {
	if h.retryable == nil {
		return true
	}
	return h.retryable(err)
}

func (h *Handler) handleError(err error) {
	h.logError("%v", err)
	h.errorHandler(err)
}

func (h *Handler) logWarn(format string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(format, args...)
	}
}

func (h *Handler) logError(format string, args ...any) {
	if h.logger != nil {
		h.logger.Error(format, args...)
	}
}

func (h *Handler) done() {
	h.doneHandler(h)
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunValue runs fn through h and returns the value of the successful attempt.
func RunValue[R any](ctx context.Context, h *Handler, fn func(context.Context) (R, error)) (R, error) {
	var result R
	err := h.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
