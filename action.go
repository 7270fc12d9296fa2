package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultChainDepth bounds how many NextAction links a single Execute follows.
const DefaultChainDepth = 32

// Executable is the type-erased contract shared by actions of any payload
// type, so heterogeneous actions can live in one queue.
type Executable interface {
	Execute(ctx context.Context, life *Life) error
	// Duplicate returns an independent copy used for each retry attempt.
	Duplicate() Executable
	Type() string
	ID() string
}

// Cloner lets a payload provide its own deep copy for Duplicate.
type Cloner[T any] interface {
	Clone() T
}

// Action is one unit of work: a payload, its metadata and a license flag,
// dispatched through the Plan it was built against.
type Action[T any] struct {
	content    T
	metadata   *Metadata
	license    *Signal[bool]
	plan       *Plan
	chainDepth int
}

// New builds an action for actionType and stamps its type, license and id.
func New[T any](actionType string, payload T, plan *Plan) *Action[T] {
	md := NewMetadata()
	md.Set(KeyActionType, actionType)
	md.Set(KeyLicense, LicenseValid)
	md.Set(KeyActionID, uuid.NewString())
	return &Action[T]{
		content:    payload,
		metadata:   md,
		license:    NewSignal(true),
		plan:       plan,
		chainDepth: DefaultChainDepth,
	}
}

// WithMetadata returns a copy of the action with key set to value.
func (a *Action[T]) WithMetadata(key string, value any) *Action[T] {
	cp := a.copy()
	cp.metadata.Set(key, value)
	return cp
}

// WithNext returns a copy of the action that runs next after itself.
func (a *Action[T]) WithNext(next *Action[T]) *Action[T] {
	return a.WithMetadata(KeyNextAction, next)
}

// WithChainDepth returns a copy with a different NextAction bound.
func (a *Action[T]) WithChainDepth(depth int) *Action[T] {
	cp := a.copy()
	if depth > 0 {
		cp.chainDepth = depth
	}
	return cp
}

func (a *Action[T]) Payload() T           { return a.content }
func (a *Action[T]) Metadata() *Metadata  { return a.metadata }
func (a *Action[T]) Plan() *Plan          { return a.plan }
func (a *Action[T]) Licensed() bool       { return a.license.Get() }
func (a *Action[T]) Revoke()              { a.license.Set(false) }
func (a *Action[T]) Grant()               { a.license.Set(true) }
func (a *Action[T]) Duplicate() Executable {
	if a == nil {
		return a
	}
	return a.copy()
}

func (a *Action[T]) Type() string {
	v, _ := a.metadata.Get(KeyActionType)
	s, _ := v.(string)
	return s
}

func (a *Action[T]) ID() string {
	v, _ := a.metadata.Get(KeyActionID)
	s, _ := v.(string)
	return s
}

func (a *Action[T]) copy() *Action[T] {
	content := a.content
	if c, ok := any(a.content).(Cloner[T]); ok {
		content = c.Clone()
	}
	depth := a.chainDepth
	if depth <= 0 {
		depth = DefaultChainDepth
	}
	return &Action[T]{
		content:    content,
		metadata:   a.metadata.Clone(),
		license:    NewSignal(a.license.Get()),
		plan:       a.plan,
		chainDepth: depth,
	}
}

// Execute runs the pipeline: type, license, delay, hooks, dispatch, then
// any NextAction chain, stopping at the first failure.
func (a *Action[T]) Execute(ctx context.Context, life *Life) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = WithLife(ctx, life)

	limit := a.chainDepth
	if limit <= 0 {
		limit = DefaultChainDepth
	}

	current := a
	for depth := 0; ; depth++ {
		if depth > limit {
			return ExecutionError(fmt.Sprintf("NextAction chain exceeds depth %d", limit), nil, a.errorFields())
		}
		next, err := current.run(ctx, life)
		if err != nil {
			return err
		}
		if current != a && current.ID() != a.ID() {
			// only the head's remembered value is kept
			life.Take(current.ID())
		}
		if next == nil {
			return nil
		}
		current = next
	}
}

func (a *Action[T]) run(ctx context.Context, life *Life) (*Action[T], error) {
	actionType, err := a.resolveType()
	if err != nil {
		return nil, err
	}

	if err := a.checkLicense(); err != nil {
		return nil, err
	}

	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	if err := a.runHooks(ctx, life); err != nil {
		return nil, err
	}

	if err := a.dispatch(ctx, life, actionType); err != nil {
		return nil, err
	}

	return a.next()
}

func (a *Action[T]) resolveType() (string, error) {
	v, ok := a.metadata.Get(KeyActionType)
	if !ok {
		return "", ExecutionError("ActionType not found", nil, a.errorFields())
	}
	s, ok := v.(string)
	if !ok {
		return "", ExecutionError("ActionType is not a string", nil, a.errorFields())
	}
	return s, nil
}

func (a *Action[T]) checkLicense() error {
	if officer, ok := a.metadata.Get(KeyCommandingOfficer); ok {
		if officerLicense(officer) != LicenseValid {
			return InvalidLicenseError("Invalid commanding officer license", a.errorFields())
		}
	}
	if !a.license.Get() {
		return InvalidLicenseError("Invalid action license", a.errorFields())
	}
	return nil
}

func officerLicense(officer any) string {
	var v any
	switch typed := officer.(type) {
	case map[string]any:
		v = typed[KeyLicense]
	case *Metadata:
		v, _ = typed.Get(KeyLicense)
	case json.RawMessage:
		var fields map[string]any
		if err := json.Unmarshal(typed, &fields); err == nil {
			v = fields[KeyLicense]
		}
	}
	s, _ := v.(string)
	return s
}

func (a *Action[T]) wait(ctx context.Context) error {
	v, ok := a.metadata.Get(KeyDelay)
	if !ok {
		return nil
	}
	seconds := toSeconds(v)
	if seconds == 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return CancellationError("action delay interrupted", ctx.Err(), a.errorFields())
	}
}

func (a *Action[T]) runHooks(ctx context.Context, life *Life) error {
	v, ok := a.metadata.Get(KeyHooks)
	if !ok || life == nil {
		return nil
	}
	names, err := toStrings(v)
	if err != nil {
		return ExecutionError("Hooks is not a list", err, a.errorFields())
	}
	for _, name := range names {
		hook, ok := life.Hook(name)
		if !ok {
			life.logger().Debug("hook %s not registered, skipping", name)
			continue
		}
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Action[T]) dispatch(ctx context.Context, life *Life, actionType string) error {
	if a.plan == nil {
		return ExecutionError(fmt.Sprintf("No function found for action type: %s", actionType), nil, a.errorFields())
	}
	fn, ok := a.plan.Lookup(actionType)
	if !ok {
		return ExecutionError(fmt.Sprintf("No function found for action type: %s", actionType), nil, a.errorFields())
	}

	args, err := a.plan.argumentsFor(actionType)(a.content, a.metadata)
	if err != nil {
		return ExecutionError(fmt.Sprintf("Failed to build arguments for %s", actionType), err, a.errorFields())
	}

	value, err := fn(ctx, args)
	if err != nil {
		if ErrorCode(err) != "" {
			return err
		}
		return ExecutionError(fmt.Sprintf("Operation %s failed", actionType), err, a.errorFields())
	}

	if err := a.plan.resultFor(actionType)(ctx, a.metadata, value); err != nil {
		return ExecutionError(fmt.Sprintf("Failed to handle result of %s", actionType), err, a.errorFields())
	}
	return nil
}

func (a *Action[T]) next() (*Action[T], error) {
	v, ok := a.metadata.Get(KeyNextAction)
	if !ok || v == nil {
		return nil, nil
	}

	var data []byte
	switch typed := v.(type) {
	case *Action[T]:
		return typed.copy(), nil
	case json.RawMessage:
		data = typed
	case []byte:
		data = typed
	case string:
		data = []byte(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, ExecutionError(fmt.Sprintf("Failed to parse NextAction: %v", err), err, a.errorFields())
		}
		data = encoded
	}

	next, err := DecodeAction[T](data, a.plan)
	if err != nil {
		return nil, ExecutionError(fmt.Sprintf("Failed to parse NextAction: %v", err), err, a.errorFields())
	}
	next.chainDepth = a.chainDepth
	return next, nil
}

func (a *Action[T]) errorFields() map[string]any {
	return map[string]any{
		"action_type": a.Type(),
		"action_id":   a.ID(),
	}
}

type actionWire[T any] struct {
	Content  T         `json:"content"`
	Metadata *Metadata `json:"metadata"`
}

func (a *Action[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionWire[T]{Content: a.content, Metadata: a.metadata})
}

// DecodeAction parses the serialized form of an action and binds it to plan.
// The license of a decoded action starts granted.
func DecodeAction[T any](data []byte, plan *Plan) (*Action[T], error) {
	wire := actionWire[T]{Metadata: NewMetadata()}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Metadata == nil {
		wire.Metadata = NewMetadata()
	}
	return &Action[T]{
		content:    wire.Content,
		metadata:   wire.Metadata,
		license:    NewSignal(true),
		plan:       plan,
		chainDepth: DefaultChainDepth,
	}, nil
}
