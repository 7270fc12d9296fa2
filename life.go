package sequence

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMaxRetries is used when the settings carry no usable max_retries.
const DefaultMaxRetries = 3

// SettingMaxRetries is the settings key read by the retry wrapper.
const SettingMaxRetries = "max_retries"

// Hook is a named callback run before an action is dispatched.
type Hook func(ctx context.Context) error

// Settings is the configuration surface consumed by the engine.
type Settings interface {
	GetInt(key string) (int, bool)
}

// MapSettings is a fixed Settings backed by a map.
type MapSettings map[string]int

func (m MapSettings) GetInt(key string) (int, bool) {
	v, ok := m[key]
	return v, ok
}

// Life is the execution context shared by every action: hooks, settings,
// a result cache and the named queues reachable from routing actions.
// Hooks and queues are only ever added; a cache entry lives until Take.
type Life struct {
	settings Settings
	log      Logger

	hooksMu sync.RWMutex
	hooks   map[string]Hook

	cacheMu sync.RWMutex
	cache   map[string]any

	queuesMu sync.RWMutex
	queues   map[string]Queue
}

type LifeOption func(*Life)

func WithSettings(s Settings) LifeOption {
	return func(l *Life) {
		l.settings = s
	}
}

func WithLifeLogger(logger Logger) LifeOption {
	return func(l *Life) {
		l.log = logger
	}
}

func WithHook(name string, hook Hook) LifeOption {
	return func(l *Life) {
		l.hooks[name] = hook
	}
}

func WithQueue(name string, q Queue) LifeOption {
	return func(l *Life) {
		l.queues[name] = q
	}
}

func NewLife(opts ...LifeOption) *Life {
	l := &Life{
		hooks:  make(map[string]Hook),
		cache:  make(map[string]any),
		queues: make(map[string]Queue),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.log = normalizeLogger(l.log)
	return l
}

func (l *Life) AddHook(name string, hook Hook) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.hooks[name] = hook
}

func (l *Life) Hook(name string) (Hook, bool) {
	l.hooksMu.RLock()
	defer l.hooksMu.RUnlock()
	h, ok := l.hooks[name]
	return h, ok && h != nil
}

func (l *Life) AddQueue(name string, q Queue) {
	l.queuesMu.Lock()
	defer l.queuesMu.Unlock()
	l.queues[name] = q
}

func (l *Life) Queue(name string) (Queue, bool) {
	l.queuesMu.RLock()
	defer l.queuesMu.RUnlock()
	q, ok := l.queues[name]
	return q, ok
}

// Remember stores a dispatch result under key. Operations opt in with
// RememberResult.
func (l *Life) Remember(key string, value any) {
	if key == "" {
		return
	}
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.cache[key] = value
}

func (l *Life) Recall(key string) (any, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	v, ok := l.cache[key]
	return v, ok
}

// Take removes and returns the entry stored under key.
func (l *Life) Take(key string) (any, bool) {
	if l == nil {
		return nil, false
	}
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	v, ok := l.cache[key]
	delete(l.cache, key)
	return v, ok
}

// RememberResult is a ResultFunc that stores the operation value in the
// executing Life under the action id, for Recall or Take.
func RememberResult(ctx context.Context, md *Metadata, value any) error {
	life, ok := LifeFromContext(ctx)
	if !ok || md == nil {
		return nil
	}
	id, _ := md.Get(KeyActionID)
	key, _ := id.(string)
	life.Remember(key, value)
	return nil
}

func (l *Life) Settings() Settings {
	return l.settings
}

// MaxRetries reads max_retries, falling back to DefaultMaxRetries.
func (l *Life) MaxRetries() int {
	if l == nil || l.settings == nil {
		return DefaultMaxRetries
	}
	v, ok := l.settings.GetInt(SettingMaxRetries)
	if !ok || v < 0 {
		return DefaultMaxRetries
	}
	return v
}

func (l *Life) logger() Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l.log
}

type lifeKey struct{}

// WithLife attaches life to ctx for operation functions.
func WithLife(ctx context.Context, life *Life) context.Context {
	if life == nil {
		return ctx
	}
	return context.WithValue(ctx, lifeKey{}, life)
}

// LifeFromContext returns the Life of the executing action, if any.
func LifeFromContext(ctx context.Context) (*Life, bool) {
	if ctx == nil {
		return nil, false
	}
	life, ok := ctx.Value(lifeKey{}).(*Life)
	return life, ok && life != nil
}

// OperationDrainQueue is the operation name installed by RegisterDrain.
const OperationDrainQueue = "DrainQueue"

// DrainQueue dequeues and executes every action of the named queue until it
// is empty, returning how many ran. The first failure stops the drain.
func DrainQueue(ctx context.Context, life *Life, name string) (int, error) {
	if life == nil {
		return 0, RoutingError("no execution context to drain from", nil, map[string]any{"queue": name})
	}
	q, ok := life.Queue(name)
	if !ok {
		return 0, RoutingError(fmt.Sprintf("queue %s not found", name), nil, map[string]any{"queue": name})
	}

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, CancellationError("drain interrupted", err, map[string]any{"queue": name})
		}
		action, ok := q.Dequeue()
		if !ok {
			return count, nil
		}
		if err := action.Execute(ctx, life); err != nil {
			return count, err
		}
		// drained actions report through the count only
		life.Take(action.ID())
		count++
	}
}

// RegisterDrain installs DrainQueue as an operation. The target queue name
// is read from the Queue metadata entry and the count is remembered.
func RegisterDrain(b *PlanBuilder) *PlanBuilder {
	return b.
		WithSignature(OperationDrainQueue, []string{"string"}, "int").
		WithFunction(OperationDrainQueue, func(ctx context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, RoutingError("DrainQueue expects a queue name", nil, nil)
			}
			name, ok := args[0].(string)
			if !ok || name == "" {
				return nil, RoutingError("DrainQueue expects a queue name", nil, nil)
			}
			life, _ := LifeFromContext(ctx)
			return DrainQueue(ctx, life, name)
		}).
		WithArguments(OperationDrainQueue, func(_ any, md *Metadata) ([]any, error) {
			v, ok := md.Get(KeyQueue)
			if !ok {
				return nil, fmt.Errorf("missing %s metadata", KeyQueue)
			}
			return []any{v}, nil
		}).
		WithResult(OperationDrainQueue, RememberResult)
}
