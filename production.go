package sequence

import "sync"

// Queue holds type-erased actions until a consumer takes them.
type Queue interface {
	Enqueue(action Executable)
	// Dequeue never blocks; ok is false when the queue is empty.
	Dequeue() (action Executable, ok bool)
	Len() int
}

// Production is a FIFO Queue safe for concurrent producers and consumers.
type Production struct {
	mu    sync.Mutex
	items []Executable
	head  int
}

func NewProduction() *Production {
	return &Production{}
}

func (p *Production) Enqueue(action Executable) {
	if action == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, action)
}

func (p *Production) Dequeue() (Executable, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.head >= len(p.items) {
		return nil, false
	}
	action := p.items[p.head]
	p.items[p.head] = nil
	p.head++
	if p.head == len(p.items) {
		p.items = p.items[:0]
		p.head = 0
	} else if p.head > 64 && p.head*2 >= len(p.items) {
		n := copy(p.items, p.items[p.head:])
		clear(p.items[n:])
		p.items = p.items[:n]
		p.head = 0
	}
	return action, true
}

func (p *Production) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) - p.head
}
