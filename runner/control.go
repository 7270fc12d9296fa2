package runner

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

// ExecutionControl lets a loop cooperatively pause and stop between units
// of work.
type ExecutionControl interface {
	WaitIfPaused(ctx context.Context) error
	Done() <-chan struct{}
	CancelCause() error
}

// ManualExecutionControl is an ExecutionControl driven by explicit calls.
type ManualExecutionControl struct {
	mu sync.RWMutex

	paused   bool
	resumeCh chan struct{}
	doneCh   chan struct{}
	cause    error
}

func NewManualExecutionControl() *ManualExecutionControl {
	return &ManualExecutionControl{
		resumeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// WaitIfPaused blocks while paused. It returns the cancel cause once the
// control is canceled, or the context error.
func (c *ManualExecutionControl) WaitIfPaused(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	for {
		c.mu.RLock()
		paused, resume, done, cause := c.paused, c.resumeCh, c.doneCh, c.cause
		c.mu.RUnlock()

		select {
		case <-done:
			return cause
		default:
		}

		if !paused {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		case <-resume:
		}
	}
}

func (c *ManualExecutionControl) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doneCh
}

func (c *ManualExecutionControl) CancelCause() error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cause
}

func (c *ManualExecutionControl) Paused() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// Pause blocks future WaitIfPaused calls until Resume or Cancel.
func (c *ManualExecutionControl) Pause() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cause != nil {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

func (c *ManualExecutionControl) Resume() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
}

// Cancel releases every waiter with cause. Later calls are ignored.
func (c *ManualExecutionControl) Cancel(cause error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cause != nil {
		return
	}
	if cause == nil {
		cause = errors.New("execution canceled", errors.CategoryExternal).
			WithTextCode("EXECUTION_CANCELED")
	}
	c.cause = cause
	if c.paused {
		c.paused = false
		close(c.resumeCh)
	}
	close(c.doneCh)
}
