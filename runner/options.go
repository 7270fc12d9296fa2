package runner

import "time"

type Option func(*Handler)

func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		r.timeout = t
	}
}

func WithDeadline(d time.Time) Option {
	return func(r *Handler) {
		r.deadline = d
	}
}

func WithRunOnce(once bool) Option {
	return func(r *Handler) {
		r.runOnce = once
	}
}

// WithMaxRetries sets how many attempts follow the first failed one.
func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
	}
}

func WithMaxRuns(max int) Option {
	return func(r *Handler) {
		r.maxRuns = max
	}
}

func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(err error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

func WithDoneHandler(d func(*Handler)) Option {
	return func(r *Handler) {
		if d == nil {
			d = func(r *Handler) {}
		}
		r.doneHandler = d
	}
}

// WithRetryStrategy sets the backoff between attempts.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		r.retryStrategy = s
	}
}

// WithRetryable filters which errors are retried. Errors it rejects end the
// run after the failing attempt.
func WithRetryable(fn func(error) bool) Option {
	return func(r *Handler) {
		r.retryable = fn
	}
}

// WithAttemptHandler is called after each failed attempt with the 1-based
// attempt number.
func WithAttemptHandler(fn func(attempt int, err error)) Option {
	return func(r *Handler) {
		r.attemptHandler = fn
	}
}
