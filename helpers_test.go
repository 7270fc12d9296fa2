package sequence

import (
	"context"
	"sync"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// recordingPlan registers each name as an operation appending it to rec.
func recordingPlan(rec *recorder, names ...string) *Plan {
	b := NewPlanBuilder()
	for _, name := range names {
		name := name
		b.WithSignature(name, nil, "string").
			WithFunction(name, func(context.Context, []any) (any, error) {
				rec.add(name)
				return name, nil
			})
	}
	plan, err := b.Build()
	if err != nil {
		panic(err)
	}
	return plan
}
