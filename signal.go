package sequence

import "sync"

// Signal is a mutex guarded cell used for flags shared across goroutines.
type Signal[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewSignal[T any](value T) *Signal[T] {
	return &Signal[T]{value: value}
}

func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Signal[T]) Set(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}
