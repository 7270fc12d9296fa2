package worksteal

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/goliatone/go-sequence"
)

type deque struct {
	mu    sync.Mutex
	items []sequence.Executable
}

func (d *deque) push(action sequence.Executable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, action)
}

func (d *deque) pop() (sequence.Executable, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil, false
	}
	action := d.items[n-1]
	d.items[n-1] = nil
	d.items = d.items[:n-1]
	return action, true
}

func (d *deque) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Queue keeps one LIFO deque per worker. A worker with an empty deque
// steals from the others in random order.
type Queue struct {
	deques  []*deque
	shuffle func(ids []int)
}

type QueueOption func(*Queue)

// WithShuffle replaces the victim ordering, mostly for tests.
func WithShuffle(fn func(ids []int)) QueueOption {
	return func(q *Queue) {
		if fn != nil {
			q.shuffle = fn
		}
	}
}

func NewQueue(workers int, opts ...QueueOption) *Queue {
	if workers < 1 {
		workers = 1
	}
	q := &Queue{
		deques:  make([]*deque, workers),
		shuffle: func(ids []int) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
	for i := range q.deques {
		q.deques[i] = &deque{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *Queue) Workers() int { return len(q.deques) }

// AssignTo pushes action onto the deque of worker id.
func (q *Queue) AssignTo(id int, action sequence.Executable) error {
	if id < 0 || id >= len(q.deques) {
		return sequence.RoutingError(fmt.Sprintf("worker %d out of range", id), nil, map[string]any{
			"worker":  id,
			"workers": len(q.deques),
		})
	}
	if action == nil {
		return nil
	}
	q.deques[id].push(action)
	return nil
}

// TakeFor pops from the worker's own deque, then from the other deques in
// shuffled order. ok is false when every deque is empty.
func (q *Queue) TakeFor(id int) (sequence.Executable, bool) {
	if id >= 0 && id < len(q.deques) {
		if action, ok := q.deques[id].pop(); ok {
			return action, true
		}
	}

	victims := make([]int, 0, len(q.deques)-1)
	for i := range q.deques {
		if i != id {
			victims = append(victims, i)
		}
	}
	q.shuffle(victims)

	for _, victim := range victims {
		if action, ok := q.deques[victim].pop(); ok {
			return action, true
		}
	}
	return nil, false
}

// Len is the total number of queued actions.
func (q *Queue) Len() int {
	total := 0
	for _, d := range q.deques {
		total += d.len()
	}
	return total
}

func (q *Queue) LenOf(id int) int {
	if id < 0 || id >= len(q.deques) {
		return 0
	}
	return q.deques[id].len()
}
