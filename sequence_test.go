package sequence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-sequence/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSequence(worker Worker, maxRetries int, opts ...Option) *Sequence {
	life := NewLife(WithSettings(MapSettings{SettingMaxRetries: maxRetries}))
	opts = append([]Option{
		WithRetryStrategy(runner.NoDelayStrategy{}),
		WithLogger(NopLogger{}),
	}, opts...)
	return NewSequence(worker, NewProduction(), life, opts...)
}

func TestExecuteWithRetryStopsAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	failing := WorkerFunc(func(context.Context, Executable, *Life) error {
		calls.Add(1)
		return errors.New("always")
	})
	s := newTestSequence(failing, 3)

	err := s.ExecuteWithRetry(context.Background(), New("Op", 0, NewPlan()))
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestExecuteWithRetrySucceedsOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	flaky := WorkerFunc(func(context.Context, Executable, *Life) error {
		if calls.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	})
	s := newTestSequence(flaky, 3)

	require.NoError(t, s.ExecuteWithRetry(context.Background(), New("Op", 0, NewPlan())))
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecuteWithRetryPresentsFreshDuplicates(t *testing.T) {
	original := New("Op", 0, NewPlan())
	var seen []Executable
	w := WorkerFunc(func(_ context.Context, action Executable, _ *Life) error {
		seen = append(seen, action)
		a := action.(*Action[int])
		if _, dirty := a.Metadata().Get("dirty"); dirty {
			return errors.New("saw state from a previous attempt")
		}
		a.Metadata().Set("dirty", true)
		if len(seen) < 3 {
			return errors.New("retry")
		}
		return nil
	})
	s := newTestSequence(w, 3)

	require.NoError(t, s.ExecuteWithRetry(context.Background(), original))
	require.Len(t, seen, 3)
	for i, action := range seen {
		assert.NotSame(t, original, action, "attempt %d", i)
	}
	_, dirty := original.Metadata().Get("dirty")
	assert.False(t, dirty)
}

func TestExecuteWithRetrySkipsLicenseFailures(t *testing.T) {
	rec := &recorder{}
	action := New("Op", 0, recordingPlan(rec, "Op"))
	action.Revoke()

	var calls atomic.Int32
	w := WorkerFunc(func(ctx context.Context, a Executable, life *Life) error {
		calls.Add(1)
		return a.Execute(ctx, life)
	})

	err := newTestSequence(w, 3).ExecuteWithRetry(context.Background(), action)
	assert.True(t, IsInvalidLicense(err))
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	err = newTestSequence(w, 3, WithRetryLicenseFailures(true)).ExecuteWithRetry(context.Background(), action)
	assert.True(t, IsInvalidLicense(err))
	assert.Equal(t, int32(4), calls.Load())
}

func TestSequenceRunProcessesQueueAndSurvivesFailures(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "Good")

	type outcome struct {
		actionType string
		err        error
	}
	outcomes := make(chan outcome, 4)
	s := newTestSequence(PassThrough{}, 1, WithOutcomeHandler(func(_ context.Context, a Executable, err error) {
		outcomes <- outcome{actionType: a.Type(), err: err}
	}))

	s.Queue().Enqueue(New("Missing", 0, plan))
	s.Queue().Enqueue(New("Good", 0, plan))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	first := <-outcomes
	assert.Equal(t, "Missing", first.actionType)
	assert.True(t, IsExecution(first.err))

	second := <-outcomes
	assert.Equal(t, "Good", second.actionType)
	assert.NoError(t, second.err)

	s.Shutdown()
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, []string{"Good"}, rec.list())
}

func TestSequenceShutdownLetsInFlightActionFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	w := WorkerFunc(func(context.Context, Executable, *Life) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	})
	s := newTestSequence(w, 0)
	s.Queue().Enqueue(New("First", 0, NewPlan()))
	s.Queue().Enqueue(New("Second", 0, NewPlan()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	<-started
	s.Shutdown()
	assert.Equal(t, StateShuttingDown, s.State())
	close(release)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sequence did not stop after shutdown")
	}

	assert.True(t, finished.Load())
	assert.Equal(t, 1, s.Queue().Len())
	assert.Equal(t, StateStopped, s.State())
	<-s.Done()
}

func TestSequenceRunTwiceFails(t *testing.T) {
	s := newTestSequence(PassThrough{}, 0)
	s.Shutdown()
	require.NoError(t, s.Run(context.Background()))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrCodeSequenceState, ErrorCode(err))
}

func TestSequenceRunStopsOnContextCancel(t *testing.T) {
	s := newTestSequence(PassThrough{}, 0, WithIdleBackoff(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSequencePauseHoldsDequeue(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "Op")
	done := make(chan struct{}, 1)
	s := newTestSequence(PassThrough{}, 0, WithOutcomeHandler(func(context.Context, Executable, error) {
		done <- struct{}{}
	}))

	s.Pause()
	s.Queue().Enqueue(New("Op", 0, plan))
	go s.Run(context.Background())

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.list())

	s.Resume()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected action to run after resume")
	}
	assert.Equal(t, []string{"Op"}, rec.list())

	s.Shutdown()
	<-s.Done()
}

type countingRecorder struct {
	mu        sync.Mutex
	successes int
	errors    int
	retries   int
}

func (r *countingRecorder) RecordDuration(string, time.Duration) {}
func (r *countingRecorder) RecordQueueDepth(int)                 {}
func (r *countingRecorder) RecordError(string)                   { r.mu.Lock(); r.errors++; r.mu.Unlock() }
func (r *countingRecorder) RecordSuccess(string)                 { r.mu.Lock(); r.successes++; r.mu.Unlock() }
func (r *countingRecorder) RecordRetry(string)                   { r.mu.Lock(); r.retries++; r.mu.Unlock() }

func TestExecuteWithRetryRecordsMetrics(t *testing.T) {
	metrics := &countingRecorder{}
	var calls atomic.Int32
	w := WorkerFunc(func(context.Context, Executable, *Life) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	s := newTestSequence(w, 3, WithRecorder(metrics))

	require.NoError(t, s.ExecuteWithRetry(context.Background(), New("Op", 0, NewPlan())))
	assert.Equal(t, 1, metrics.successes)
	assert.Equal(t, 0, metrics.errors)
	assert.Equal(t, 2, metrics.retries)
}

type scheduleRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

// SleepDuration records the default schedule and retries immediately.
func (r *scheduleRecorder) SleepDuration(attempt int, err error) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, runner.JitteredExponentialStrategy{Jitter: -1}.SleepDuration(attempt, err))
	return 0
}

func TestExecuteWithRetryBacksOffByAttemptsMade(t *testing.T) {
	failing := WorkerFunc(func(context.Context, Executable, *Life) error {
		return errors.New("always")
	})
	schedule := &scheduleRecorder{}
	s := newTestSequence(failing, 3, WithRetryStrategy(schedule))

	require.Error(t, s.ExecuteWithRetry(context.Background(), New("Op", 0, NewPlan())))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, schedule.delays)
}
