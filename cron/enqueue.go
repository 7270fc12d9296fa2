package cron

import (
	"context"

	"github.com/goliatone/go-sequence"
)

// Enqueue returns a handler that pushes a fresh action from build onto q
// each time the schedule fires. The action runs on whatever drives q.
func Enqueue(q sequence.Queue, build func() (sequence.Executable, error)) func(context.Context) error {
	return func(context.Context) error {
		action, err := build()
		if err != nil {
			return err
		}
		if action == nil {
			return sequence.RoutingError("scheduled builder returned no action", nil, nil)
		}
		q.Enqueue(action)
		return nil
	}
}

// ScheduleAction enqueues an action built by build on every tick of expr.
func (s *Scheduler) ScheduleAction(expr string, q sequence.Queue, build func() (sequence.Executable, error)) (Handle, error) {
	return s.ScheduleCron(HandlerConfig{Expression: expr}, Enqueue(q, build))
}
