package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-sequence"
)

type memTransport struct {
	in     chan []byte
	mu     sync.Mutex
	sent   [][]byte
	closed chan struct{}
	once   sync.Once
}

func newMemTransport() *memTransport {
	return &memTransport{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (m *memTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-m.in:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-m.closed:
		return nil, io.EOF
	}
}

func (m *memTransport) Send(_ context.Context, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, frame)
	return nil
}

func (m *memTransport) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *memTransport) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func echoPlan(t *testing.T) *sequence.Plan {
	t.Helper()
	plan, err := sequence.NewPlanBuilder().
		WithSignature("Echo", []string{"string"}, "string").
		WithFunction("Echo", func(_ context.Context, args []any) (any, error) {
			return args[0], nil
		}).
		WithArguments("Echo", func(payload any, _ *sequence.Metadata) ([]any, error) {
			return []any{payload}, nil
		}).
		WithResult("Echo", sequence.RememberResult).
		Build()
	require.NoError(t, err)
	return plan
}

func quietLogger() sequence.Logger {
	return sequence.NopLogger{}
}

func TestBridgeEnqueuesInboundActions(t *testing.T) {
	plan := echoPlan(t)
	queue := sequence.NewProduction()
	b := New[string](plan, queue, WithLogger(quietLogger()))
	tr := newMemTransport()

	frame, err := json.Marshal(sequence.New("Echo", "hello", plan))
	require.NoError(t, err)
	tr.in <- frame
	tr.in <- []byte("not json")
	close(tr.in)

	require.NoError(t, b.Serve(context.Background(), tr))

	assert.Equal(t, 1, queue.Len())
	action, ok := queue.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "Echo", action.Type())
	typed, ok := action.(*sequence.Action[string])
	require.True(t, ok)
	assert.Equal(t, "hello", typed.Payload())
}

func TestBridgeSendsReportedResults(t *testing.T) {
	plan := echoPlan(t)
	life := sequence.NewLife()
	b := New[string](plan, sequence.NewProduction(), WithLife(life), WithLogger(quietLogger()))
	tr := newMemTransport()

	ok := sequence.New("Echo", "hi", plan)
	require.NoError(t, ok.Execute(context.Background(), life))
	failed := sequence.New("Echo", "x", plan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, tr) }()

	b.Report(ctx, ok, nil)
	b.Report(ctx, failed, errors.New("boom"))

	require.Eventually(t, func() bool { return len(tr.frames()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	var first, second Result
	frames := tr.frames()
	require.NoError(t, json.Unmarshal(frames[0], &first))
	require.NoError(t, json.Unmarshal(frames[1], &second))

	require.NotNil(t, first.Result.Ok)
	assert.Equal(t, "hi", *first.Result.Ok)
	assert.Nil(t, first.Result.Err)
	_, cached := life.Recall(ok.ID())
	assert.False(t, cached, "reported results leave the cache")
	assert.Contains(t, string(first.Action), `"content":"hi"`)

	require.NotNil(t, second.Result.Err)
	assert.Equal(t, "boom", *second.Result.Err)
	assert.True(t, second.Result.Failed())
}

func TestBridgeDropsWhenBufferFull(t *testing.T) {
	plan := echoPlan(t)
	b := New[string](plan, sequence.NewProduction(), WithResultBuffer(1), WithLogger(quietLogger()))
	action := sequence.New("Echo", "a", plan)

	b.Report(context.Background(), action, nil)
	b.Report(context.Background(), action, nil)

	assert.Len(t, b.results, 1)
}

func TestNewResultRendersValues(t *testing.T) {
	plan := echoPlan(t)
	action := sequence.New("Echo", "a", plan)

	res, err := NewResult(action, map[string]int{"n": 2}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Result.Ok)
	assert.JSONEq(t, `{"n":2}`, *res.Result.Ok)

	res, err = NewResult(action, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, "7", *res.Result.Ok)
}

func TestWebsocketRoundTrip(t *testing.T) {
	plan := echoPlan(t)
	life := sequence.NewLife()
	queue := sequence.NewProduction()
	b := New[string](plan, queue, WithLife(life), WithLogger(quietLogger()))

	srv := httptest.NewServer(Handler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, err := Dial(ctx, url, srv.URL)
	require.NoError(t, err)
	defer client.Close()

	frame, err := json.Marshal(sequence.New("Echo", "over the wire", plan))
	require.NoError(t, err)
	require.NoError(t, client.Send(ctx, frame))

	require.Eventually(t, func() bool { return queue.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	action, ok := queue.Dequeue()
	require.True(t, ok)
	require.NoError(t, action.Execute(ctx, life))
	b.Report(ctx, action, nil)

	reply, err := client.Receive(ctx)
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal(reply, &res))
	require.NotNil(t, res.Result.Ok)
	assert.Equal(t, "over the wire", *res.Result.Ok)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "://nope", "http://localhost/")
	require.Error(t, err)
	assert.True(t, sequence.IsRouting(err))
}
