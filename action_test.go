package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionNewStampsMetadata(t *testing.T) {
	action := New("Read", "payload", NewPlan())

	assert.Equal(t, "Read", action.Type())
	assert.NotEmpty(t, action.ID())
	license, _ := action.Metadata().Get(KeyLicense)
	assert.Equal(t, LicenseValid, license)
	assert.True(t, action.Licensed())
}

func TestActionWithMetadataReturnsCopy(t *testing.T) {
	base := New("Read", "payload", NewPlan())
	decorated := base.WithMetadata(KeyDelay, 1)

	_, ok := base.Metadata().Get(KeyDelay)
	assert.False(t, ok)
	_, ok = decorated.Metadata().Get(KeyDelay)
	assert.True(t, ok)
	assert.Equal(t, base.ID(), decorated.ID())
}

func TestActionRevokedLicenseFails(t *testing.T) {
	rec := &recorder{}
	action := New("Op", 0, recordingPlan(rec, "Op"))
	action.Revoke()

	err := action.Execute(context.Background(), NewLife())
	require.Error(t, err)
	assert.True(t, IsInvalidLicense(err))
	assert.Empty(t, rec.list())

	unregistered := New("Nothing", 0, NewPlan())
	unregistered.Revoke()
	assert.True(t, IsInvalidLicense(unregistered.Execute(context.Background(), NewLife())))
}

func TestActionCommandingOfficerLicense(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "Op")

	denied := New("Op", 0, plan).WithMetadata(KeyCommandingOfficer, map[string]any{KeyLicense: "revoked"})
	err := denied.Execute(context.Background(), NewLife())
	assert.True(t, IsInvalidLicense(err))

	missing := New("Op", 0, plan).WithMetadata(KeyCommandingOfficer, map[string]any{})
	assert.True(t, IsInvalidLicense(missing.Execute(context.Background(), NewLife())))

	officer := New("Officer", 0, plan)
	allowed := New("Op", 0, plan).WithMetadata(KeyCommandingOfficer, officer.Metadata().Snapshot())
	require.NoError(t, allowed.Execute(context.Background(), NewLife()))
	assert.Equal(t, []string{"Op"}, rec.list())
}

func TestActionMissingFunction(t *testing.T) {
	plan, err := NewPlanBuilder().WithSignature("Declared", nil, "").Build()
	require.NoError(t, err)

	err = New("Declared", 0, plan).Execute(context.Background(), NewLife())
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.Contains(t, err.Error(), "No function found for action type: Declared")
}

func TestActionTypeMetadataErrors(t *testing.T) {
	action := New("Op", 0, NewPlan())
	action.Metadata().Delete(KeyActionType)
	err := action.Execute(context.Background(), NewLife())
	assert.True(t, IsExecution(err))
	assert.Contains(t, err.Error(), "ActionType not found")

	action.Metadata().Set(KeyActionType, 42)
	err = action.Execute(context.Background(), NewLife())
	assert.True(t, IsExecution(err))
	assert.Contains(t, err.Error(), "ActionType is not a string")
}

func TestActionHooksRunInOrderAndSkipMissing(t *testing.T) {
	rec := &recorder{}
	life := NewLife(
		WithHook("first", func(context.Context) error { rec.add("hook:first"); return nil }),
		WithHook("second", func(context.Context) error { rec.add("hook:second"); return nil }),
	)
	action := New("Op", 0, recordingPlan(rec, "Op")).
		WithMetadata(KeyHooks, []any{"first", "missing", "second"})

	require.NoError(t, action.Execute(context.Background(), life))
	assert.Equal(t, []string{"hook:first", "hook:second", "Op"}, rec.list())
}

func TestActionFailingHookAborts(t *testing.T) {
	rec := &recorder{}
	hookErr := errors.New("hook failed")
	life := NewLife(WithHook("guard", func(context.Context) error { return hookErr }))
	action := New("Op", 0, recordingPlan(rec, "Op")).WithMetadata(KeyHooks, []string{"guard"})

	err := action.Execute(context.Background(), life)
	assert.ErrorIs(t, err, hookErr)
	assert.Empty(t, rec.list())
}

func TestActionDelayHonoursContext(t *testing.T) {
	rec := &recorder{}
	action := New("Op", 0, recordingPlan(rec, "Op")).WithMetadata(KeyDelay, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := action.Execute(ctx, NewLife())
	assert.True(t, IsCancellation(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, rec.list())
}

func TestActionChainingRunsNextAction(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "First", "Second")

	action := New("First", "a", plan).WithNext(New("Second", "b", plan))
	require.NoError(t, action.Execute(context.Background(), NewLife()))
	assert.Equal(t, []string{"First", "Second"}, rec.list())
}

func TestActionChainingFromJSON(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "First", "Second")

	data := []byte(`{"content":"a","metadata":{"ActionType":"First","NextAction":{"content":"b","metadata":{"ActionType":"Second"}}}}`)
	action, err := DecodeAction[string](data, plan)
	require.NoError(t, err)

	require.NoError(t, action.Execute(context.Background(), NewLife()))
	assert.Equal(t, []string{"First", "Second"}, rec.list())
}

func TestActionChainFailurePropagates(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "First")

	action := New("First", 0, plan).WithNext(New("Unknown", 0, plan))
	err := action.Execute(context.Background(), NewLife())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown")
	assert.Equal(t, []string{"First"}, rec.list())

	bad := New("First", 0, plan).WithMetadata(KeyNextAction, "{not json")
	err = bad.Execute(context.Background(), NewLife())
	assert.True(t, IsExecution(err))
	assert.Contains(t, err.Error(), "Failed to parse NextAction")
}

func TestActionChainDepthIsBounded(t *testing.T) {
	rec := &recorder{}
	plan := recordingPlan(rec, "Step")

	tail := New("Step", 0, plan)
	for i := 0; i < 3; i++ {
		tail = New("Step", 0, plan).WithNext(tail)
	}

	err := tail.WithChainDepth(2).Execute(context.Background(), NewLife())
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.Len(t, rec.list(), 3)

	rec.calls = nil
	require.NoError(t, tail.WithChainDepth(3).Execute(context.Background(), NewLife()))
	assert.Len(t, rec.list(), 4)
}

func TestActionArgumentsAndResult(t *testing.T) {
	var handled any
	plan, err := NewPlanBuilder().
		WithSignature("Sum", []string{"int", "int"}, "int").
		WithFunction("Sum", func(_ context.Context, args []any) (any, error) {
			return args[0].(int) + args[1].(int), nil
		}).
		WithArguments("Sum", func(payload any, _ *Metadata) ([]any, error) {
			pair := payload.([2]int)
			return []any{pair[0], pair[1]}, nil
		}).
		WithResult("Sum", func(_ context.Context, _ *Metadata, value any) error {
			handled = value
			return nil
		}).
		Build()
	require.NoError(t, err)

	life := NewLife()
	action := New("Sum", [2]int{2, 3}, plan)
	require.NoError(t, action.Execute(context.Background(), life))
	assert.Equal(t, 5, handled)

	_, ok := life.Recall(action.ID())
	assert.False(t, ok, "values are only cached through RememberResult")
}

func TestRememberResultCachesUnderActionID(t *testing.T) {
	plan, err := NewPlanBuilder().
		WithSignature("Head", nil, "string").
		WithFunction("Head", func(context.Context, []any) (any, error) { return "head", nil }).
		WithResult("Head", RememberResult).
		WithSignature("Tail", nil, "string").
		WithFunction("Tail", func(context.Context, []any) (any, error) { return "tail", nil }).
		WithResult("Tail", RememberResult).
		Build()
	require.NoError(t, err)

	life := NewLife()
	tail := New("Tail", 0, plan)
	head := New("Head", 0, plan).WithNext(tail)
	require.NoError(t, head.Execute(context.Background(), life))

	_, ok := life.Recall(tail.ID())
	assert.False(t, ok, "follow-up results are not kept")

	v, ok := life.Take(head.ID())
	require.True(t, ok)
	assert.Equal(t, "head", v)
	_, ok = life.Recall(head.ID())
	assert.False(t, ok)
}

func TestActionOperationErrorIsExecutionError(t *testing.T) {
	opErr := errors.New("disk full")
	plan, err := NewPlanBuilder().
		WithSignature("Write", nil, "").
		WithFunction("Write", func(context.Context, []any) (any, error) { return nil, opErr }).
		Build()
	require.NoError(t, err)

	err = New("Write", 0, plan).Execute(context.Background(), NewLife())
	assert.True(t, IsExecution(err))
	assert.ErrorIs(t, err, opErr)
}

func TestActionDuplicateIsIndependent(t *testing.T) {
	action := New("Op", []string{"a"}, NewPlan())
	dup := action.Duplicate().(*Action[[]string])

	dup.Metadata().Set("attempt", 1)
	dup.Revoke()

	_, ok := action.Metadata().Get("attempt")
	assert.False(t, ok)
	assert.True(t, action.Licensed())
	assert.Equal(t, action.ID(), dup.ID())
}

type clonedPayload struct {
	items []string
}

func (c clonedPayload) Clone() clonedPayload {
	return clonedPayload{items: append([]string(nil), c.items...)}
}

func TestActionDuplicateUsesCloner(t *testing.T) {
	action := New("Op", clonedPayload{items: []string{"a"}}, NewPlan())
	dup := action.Duplicate().(*Action[clonedPayload])
	dup.Payload().items[0] = "b"

	assert.Equal(t, "a", action.Payload().items[0])
}

func TestDecodeActionRoundTrip(t *testing.T) {
	type task struct {
		Path string `json:"path"`
	}
	plan := NewPlan()
	action := New("Read", task{Path: "/tmp/x"}, plan).WithMetadata(KeyHooks, []string{"audit"})

	data, err := action.MarshalJSON()
	require.NoError(t, err)

	decoded, err := DecodeAction[task](data, plan)
	require.NoError(t, err)
	assert.Equal(t, "Read", decoded.Type())
	assert.Equal(t, action.ID(), decoded.ID())
	assert.Equal(t, "/tmp/x", decoded.Payload().Path)
	assert.True(t, decoded.Licensed())
}
