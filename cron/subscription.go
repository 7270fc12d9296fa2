package cron

import (
	"sync"
	"time"
)

type Subscription interface {
	Unsubscribe()
}

// ScheduleStatus is the lifecycle stage of a scheduled job.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusIdle      ScheduleStatus = "idle"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCanceled  ScheduleStatus = "canceled"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusStopped   ScheduleStatus = "stopped"
)

// Handle controls one scheduled job and reports how it has fared.
type Handle interface {
	Subscription
	Cancel()
	Status() ScheduleStatus
	Err() error
	Done() <-chan struct{}
	ID() int64
	// Runs counts finished executions, failures included.
	Runs() int
	LastRun() time.Time
}

type scheduleHandle struct {
	scheduler *Scheduler
	id        int64
	entryID   int
	done      chan struct{}
	closeOnce sync.Once
	cancel    sync.Once

	mu      sync.RWMutex
	status  ScheduleStatus
	err     error
	runs    int
	lastRun time.Time
}

func (h *scheduleHandle) Unsubscribe() { h.Cancel() }

func (h *scheduleHandle) Cancel() {
	if h == nil {
		return
	}
	h.cancel.Do(func() {
		if h.scheduler != nil {
			h.scheduler.removeHandle(h.id)
		}
		h.finish(ScheduleStatusCanceled, nil)
	})
}

func (h *scheduleHandle) Status() ScheduleStatus {
	if h == nil {
		return ScheduleStatusStopped
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *scheduleHandle) Err() error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *scheduleHandle) Runs() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runs
}

func (h *scheduleHandle) LastRun() time.Time {
	if h == nil {
		return time.Time{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastRun
}

func (h *scheduleHandle) Done() <-chan struct{} {
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

func (h *scheduleHandle) ID() int64 {
	if h == nil {
		return 0
	}
	return h.id
}

// begin marks a run as started. It reports false once the handle is
// terminal.
func (h *scheduleHandle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if isTerminalStatus(h.status) {
		return false
	}
	h.status = ScheduleStatusRunning
	return true
}

// end records a finished run and moves the handle to next unless it became
// terminal meanwhile.
func (h *scheduleHandle) end(next ScheduleStatus, err error) {
	h.mu.Lock()
	h.runs++
	h.lastRun = time.Now()
	if !isTerminalStatus(h.status) {
		h.status = next
		h.err = err
	}
	terminal := isTerminalStatus(h.status)
	h.mu.Unlock()

	if terminal {
		h.closeDone()
	}
}

func (h *scheduleHandle) finish(status ScheduleStatus, err error) {
	h.mu.Lock()
	h.status = status
	h.err = err
	h.mu.Unlock()
	h.closeDone()
}

func (h *scheduleHandle) closeDone() {
	h.closeOnce.Do(func() { close(h.done) })
}
