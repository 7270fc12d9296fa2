package sequence

import "context"

// Worker decides how a dequeued action is processed. Implementations shared
// between sequences must be safe for concurrent use.
type Worker interface {
	Receive(ctx context.Context, action Executable, life *Life) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, action Executable, life *Life) error

func (f WorkerFunc) Receive(ctx context.Context, action Executable, life *Life) error {
	return f(ctx, action, life)
}

// PassThrough executes every action it receives.
type PassThrough struct{}

func (PassThrough) Receive(ctx context.Context, action Executable, life *Life) error {
	if action == nil {
		return ExecutionError("nil action", nil, nil)
	}
	return action.Execute(ctx, life)
}

// Recovering wraps a Worker and turns panics into execution errors.
type Recovering struct {
	next    Worker
	recover PanicHandler
}

func NewRecovering(next Worker, logger PanicLogger) *Recovering {
	if next == nil {
		next = PassThrough{}
	}
	return &Recovering{next: next, recover: MakePanicHandler(logger)}
}

func (r *Recovering) Receive(ctx context.Context, action Executable, life *Life) (err error) {
	fields := map[string]any{}
	if action != nil {
		fields["action_type"] = action.Type()
		fields["action_id"] = action.ID()
	}
	defer r.recover(&err, "Worker.Receive", fields)
	return r.next.Receive(ctx, action, life)
}
