package runner

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryStrategy encapsulates the delay between retries.
type RetryStrategy interface {
	// SleepDuration returns how long to wait before the next retry attempt.
	// The attempt index starts at 0, incrementing after each failure.
	SleepDuration(attempt int, err error) time.Duration
}

// RetryDecision is the outcome of asking a strategy whether to retry.
type RetryDecision struct {
	ShouldRetry bool
	Delay       time.Duration
	Metadata    map[string]any
}

// RetryDecider is implemented by strategies that can refuse a retry.
type RetryDecider interface {
	DecideRetry(attempt int, err error) RetryDecision
}

// DecideRetry asks strategy for a decision, falling back to SleepDuration.
func DecideRetry(strategy RetryStrategy, attempt int, err error) RetryDecision {
	if strategy == nil {
		return RetryDecision{ShouldRetry: true}
	}
	if decider, ok := strategy.(RetryDecider); ok {
		return decider.DecideRetry(attempt, err)
	}
	return RetryDecision{
		ShouldRetry: true,
		Delay:       strategy.SleepDuration(attempt, err),
	}
}

// NoDelayStrategy performs all retries immediately.
type NoDelayStrategy struct{}

func (n NoDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return 0
}

// ExponentialBackoffStrategy grows the delay by Factor each attempt.
//
//	WithRetryStrategy(ExponentialBackoffStrategy{
//	    Base:   100 * time.Millisecond,
//	    Factor: 2,
//	    Max:    5 * time.Second,
//	})
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	// Max caps the delay when positive.
	Max time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(e.Base) * math.Pow(e.Factor, float64(attempt))
	if time.Duration(delay) > e.Max && e.Max > 0 {
		return e.Max
	}
	return time.Duration(delay)
}

// JitteredExponentialStrategy waits Base*2^n plus a uniform random amount in
// [0, Jitter], where n is the number of attempts already made (attempt+1 for
// the 0-based index the handler passes). The zero value waits 2s, 4s, 8s and
// so on plus up to one second; a negative Jitter disables it.
type JitteredExponentialStrategy struct {
	Base   time.Duration
	Jitter time.Duration
	// Max caps the exponential part when positive.
	Max time.Duration
	// Rand returns a value in [0, n); defaults to math/rand/v2.
	Rand func(n int64) int64
}

func (j JitteredExponentialStrategy) SleepDuration(attempt int, err error) time.Duration {
	base := j.Base
	if base <= 0 {
		base = time.Second
	}
	jitter := j.Jitter
	if jitter == 0 {
		jitter = time.Second
	}

	if attempt < 0 {
		attempt = 0
	}
	delay := ExponentialBackoffStrategy{Base: base, Factor: 2, Max: j.Max}.SleepDuration(attempt+1, err)
	if jitter > 0 {
		randn := j.Rand
		if randn == nil {
			randn = rand.Int64N
		}
		delay += time.Duration(randn(int64(jitter) + 1))
	}
	return delay
}

// ClassifyingStrategy wraps a strategy and refuses to retry errors that
// Retryable rejects.
type ClassifyingStrategy struct {
	Strategy  RetryStrategy
	Retryable func(error) bool
}

func (c ClassifyingStrategy) SleepDuration(attempt int, err error) time.Duration {
	if c.Strategy == nil {
		return 0
	}
	return c.Strategy.SleepDuration(attempt, err)
}

func (c ClassifyingStrategy) DecideRetry(attempt int, err error) RetryDecision {
	if c.Retryable != nil && !c.Retryable(err) {
		return RetryDecision{
			ShouldRetry: false,
			Metadata:    map[string]any{"reason": "not_retryable"},
		}
	}
	return DecideRetry(c.Strategy, attempt, err)
}
