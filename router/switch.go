// Package router selects the Worker that handles an action by matching its
// type against registered patterns.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-sequence"
)

type Option func(*Switch)

// WithMatcher replaces the default "." separated matcher.
func WithMatcher(fn func(pattern, actionType string) bool) Option {
	return func(s *Switch) {
		if fn != nil {
			s.match = fn
		}
	}
}

// WithFallback handles actions no pattern matches.
func WithFallback(w sequence.Worker) Option {
	return func(s *Switch) {
		s.fallback = w
	}
}

// Switch is a sequence.Worker that forwards each action to the worker of
// the first matching pattern. Exact matches win, then patterns in sorted
// order.
type Switch struct {
	mu       sync.RWMutex
	routes   map[string]sequence.Worker
	sorted   []string
	match    func(pattern, actionType string) bool
	fallback sequence.Worker
}

func NewSwitch(opts ...Option) *Switch {
	s := &Switch{
		routes: make(map[string]sequence.Worker),
		match:  MakeMatcher(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Route is returned by Handle and removes its registration.
type Route struct {
	sw      *Switch
	pattern string
}

func (r *Route) Pattern() string { return r.pattern }

func (r *Route) Remove() {
	r.sw.mu.Lock()
	defer r.sw.mu.Unlock()
	delete(r.sw.routes, r.pattern)
	r.sw.resort()
}

// Handle binds pattern to w, replacing any earlier binding.
func (s *Switch) Handle(pattern string, w sequence.Worker) *Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[pattern] = w
	s.resort()
	return &Route{sw: s, pattern: pattern}
}

func (s *Switch) resort() {
	keys := make([]string, 0, len(s.routes))
	for k := range s.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.sorted = keys
}

// Lookup returns the worker for actionType.
func (s *Switch) Lookup(actionType string) (sequence.Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.routes[actionType]; ok {
		return w, true
	}
	for _, p := range s.sorted {
		if s.match(p, actionType) {
			return s.routes[p], true
		}
	}
	if s.fallback != nil {
		return s.fallback, true
	}
	return nil, false
}

func (s *Switch) Receive(ctx context.Context, action sequence.Executable, life *sequence.Life) error {
	if action == nil {
		return sequence.RoutingError("nil action", nil, nil)
	}
	w, ok := s.Lookup(action.Type())
	if !ok {
		return sequence.RoutingError(fmt.Sprintf("no route for action type %s", action.Type()), nil, map[string]any{
			"action_type": action.Type(),
			"action_id":   action.ID(),
		})
	}
	return w.Receive(ctx, action, life)
}
