package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/goliatone/go-sequence"
)

// DefaultResultBuffer is the capacity of the outbound result channel.
const DefaultResultBuffer = 256

type Option func(*options)

type options struct {
	logger sequence.Logger
	life   *sequence.Life
	buffer int
	depth  int
}

func WithLogger(logger sequence.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLife lets Report take remembered operation results from the life
// cache as the Ok text.
func WithLife(life *sequence.Life) Option {
	return func(o *options) {
		o.life = life
	}
}

// WithChainDepth bounds the NextAction chain of every decoded action.
func WithChainDepth(depth int) Option {
	return func(o *options) {
		o.depth = depth
	}
}

func WithResultBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// Bridge moves serialized actions of payload T from a transport into a
// queue, and results from its result channel back onto the transport. It
// never executes actions itself.
type Bridge[T any] struct {
	plan    *sequence.Plan
	queue   sequence.Queue
	results chan Result
	logger  sequence.Logger
	life    *sequence.Life
	depth   int
}

func New[T any](plan *sequence.Plan, queue sequence.Queue, opts ...Option) *Bridge[T] {
	o := options{buffer: DefaultResultBuffer}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = sequence.DefaultLogger()
	}
	return &Bridge[T]{
		plan:    plan,
		queue:   queue,
		results: make(chan Result, o.buffer),
		logger:  o.logger,
		life:    o.life,
		depth:   o.depth,
	}
}

// Report queues the outcome of action for delivery. It matches
// sequence.OutcomeHandler. Results are dropped when the buffer is full.
func (b *Bridge[T]) Report(ctx context.Context, action sequence.Executable, err error) {
	var value any
	if err == nil && b.life != nil {
		value, _ = b.life.Take(action.ID())
	}
	res, encErr := NewResult(action, value, err)
	if encErr != nil {
		b.logger.Warn("bridge could not encode result of %s: %v", action.Type(), encErr)
		return
	}
	b.Publish(ctx, res)
}

// Publish queues res for delivery without blocking.
func (b *Bridge[T]) Publish(ctx context.Context, res Result) {
	select {
	case b.results <- res:
	case <-ctx.Done():
	default:
		b.logger.Warn("bridge result buffer full, dropping result")
	}
}

// Serve runs until ctx is done, the transport stops delivering frames, or
// a send fails. It closes the transport on return.
func (b *Bridge[T]) Serve(ctx context.Context, t Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer t.Close()

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := t.Receive(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return sequence.RoutingError("bridge receive failed", err, nil)
		case frame := <-inbound:
			b.accept(frame)
		case res := <-b.results:
			data, err := encodeResult(res)
			if err != nil {
				b.logger.Warn("bridge could not encode result: %v", err)
				continue
			}
			if err := t.Send(ctx, data); err != nil {
				return sequence.RoutingError("bridge send failed", err, nil)
			}
		}
	}
}

func (b *Bridge[T]) accept(frame []byte) {
	action, err := sequence.DecodeAction[T](frame, b.plan)
	if err != nil {
		b.logger.Debug("bridge dropped malformed frame: %v", err)
		return
	}
	if b.depth > 0 {
		action = action.WithChainDepth(b.depth)
	}
	b.queue.Enqueue(action)
}
