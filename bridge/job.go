package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-sequence"
)

// JobIdleSleep is how long RunJob waits when its work list is empty.
const JobIdleSleep = 100 * time.Millisecond

// Work is a LIFO list of pending actions for RunJob.
type Work struct {
	mu    sync.Mutex
	items []sequence.Executable
}

func NewWork() *Work {
	return &Work{}
}

func (w *Work) Assign(action sequence.Executable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, action)
}

func (w *Work) Take() (sequence.Executable, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.items)
	if n == 0 {
		return nil, false
	}
	action := w.items[n-1]
	w.items[n-1] = nil
	w.items = w.items[:n-1]
	return action, true
}

// Site turns an action into its result.
type Site interface {
	Receive(ctx context.Context, action sequence.Executable) Result
}

// Executor is a Site that runs actions against a Life.
type Executor struct {
	Life *sequence.Life
}

func (e Executor) Receive(ctx context.Context, action sequence.Executable) Result {
	err := action.Execute(ctx, e.Life)
	var value any
	if err == nil && e.Life != nil {
		value, _ = e.Life.Take(action.ID())
	}
	res, encErr := NewResult(action, value, err)
	if encErr != nil {
		text := encErr.Error()
		return Result{Result: Outcome{Err: &text}}
	}
	return res
}

// RunJob takes actions from work, hands them to site and sends every result
// to results. It returns when ctx is done.
func RunJob(ctx context.Context, site Site, work *Work, results chan<- Result) error {
	for {
		action, ok := work.Take()
		if !ok {
			timer := time.NewTimer(JobIdleSleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		select {
		case results <- site.Receive(ctx, action):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func encodeResult(res Result) ([]byte, error) {
	return json.Marshal(res)
}
