package worksteal

import (
	"context"
	"sync"

	"github.com/goliatone/go-sequence"
)

// Worker routes received actions onto its own deque instead of executing
// them. A Pool picks them up later.
type Worker struct {
	id    int
	queue *Queue
}

func NewWorker(id int, queue *Queue) *Worker {
	return &Worker{id: id, queue: queue}
}

func (w *Worker) ID() int { return w.id }

func (w *Worker) Receive(_ context.Context, action sequence.Executable, _ *sequence.Life) error {
	if action == nil {
		return sequence.RoutingError("nil action", nil, map[string]any{"worker": w.id})
	}
	return w.queue.AssignTo(w.id, action)
}

// RoundRobin spreads received actions across the deques of a Queue.
type RoundRobin struct {
	mu    sync.Mutex
	queue *Queue
	next  int
}

func NewRoundRobin(queue *Queue) *RoundRobin {
	return &RoundRobin{queue: queue}
}

func (r *RoundRobin) Receive(_ context.Context, action sequence.Executable, _ *sequence.Life) error {
	r.mu.Lock()
	id := r.next
	r.next = (r.next + 1) % r.queue.Workers()
	r.mu.Unlock()
	return r.queue.AssignTo(id, action)
}
