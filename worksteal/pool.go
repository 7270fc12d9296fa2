package worksteal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-sequence"
)

// DefaultIdleSleep is how long a pool loop waits after finding every deque
// empty.
const DefaultIdleSleep = 10 * time.Millisecond

type Option func(*Pool)

func WithIdleSleep(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.idle = d
		}
	}
}

// WithExecutor sets the worker that processes taken actions.
func WithExecutor(w sequence.Worker) Option {
	return func(p *Pool) {
		if w != nil {
			p.executor = w
		}
	}
}

// WithStopWhenEmpty makes each loop return once the whole queue is empty.
func WithStopWhenEmpty(stop bool) Option {
	return func(p *Pool) {
		p.stopWhenEmpty = stop
	}
}

func WithOutcomeHandler(fn sequence.OutcomeHandler) Option {
	return func(p *Pool) {
		p.outcome = fn
	}
}

func WithLogger(logger sequence.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool runs one loop per worker id over a Queue.
type Pool struct {
	queue         *Queue
	life          *sequence.Life
	executor      sequence.Worker
	idle          time.Duration
	stopWhenEmpty bool
	outcome       sequence.OutcomeHandler
	logger        sequence.Logger

	stopOnce  sync.Once
	stopped   chan struct{}
	drainOnce sync.Once
	draining  chan struct{}
}

func NewPool(queue *Queue, life *sequence.Life, opts ...Option) *Pool {
	if life == nil {
		life = sequence.NewLife()
	}
	p := &Pool{
		queue:    queue,
		life:     life,
		executor: sequence.PassThrough{},
		idle:     DefaultIdleSleep,
		stopped:  make(chan struct{}),
		draining: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = sequence.DefaultLogger()
	}
	return p
}

// Stop asks every loop to return once its current action has finished.
// Actions already taken keep the context given to Run.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}

// Drain asks every loop to return once the whole queue is empty, as with
// WithStopWhenEmpty.
func (p *Pool) Drain() {
	p.drainOnce.Do(func() { close(p.draining) })
}

// Run blocks until every loop has returned after Stop or Drain, or until ctx
// is done. Cancelling ctx also aborts in-flight actions; graceful shutdowns
// use Stop or Drain.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < p.queue.Workers(); id++ {
		g.Go(func() error {
			return p.loop(ctx, id)
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) error {
	p.logger.Debug("worksteal loop %d started", id)
	for {
		if closed(p.stopped) {
			p.logger.Debug("worksteal loop %d stopped", id)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		action, ok := p.queue.TakeFor(id)
		if !ok {
			if p.stopWhenEmpty || closed(p.draining) {
				return nil
			}
			if err := p.sleep(ctx, p.idle); err != nil {
				return err
			}
			continue
		}

		err := p.executor.Receive(ctx, action, p.life)
		if err != nil {
			p.logger.Error("worker %d action %s failed: %v", id, action.Type(), err)
		}
		if p.outcome != nil {
			p.outcome(ctx, action, err)
		}
	}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// sleep waits d, returning early on Stop, Drain or ctx.
func (p *Pool) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return nil
	case <-p.draining:
		return nil
	case <-timer.C:
		return nil
	}
}
