package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-sequence"
)

func TestMakeMatcher(t *testing.T) {
	match := MakeMatcher()
	cases := []struct {
		pattern string
		typ     string
		want    bool
	}{
		{"File.Read", "File.Read", true},
		{"File.*", "File.Read", true},
		{"File.*", "File.Read.Chunk", false},
		{"File.#", "File.Read.Chunk", true},
		{"File.#", "File", true},
		{"#.Read", "File.Read", true},
		{"#", "anything.at.all", true},
		{"+.Write", "File.Write", true},
		{"File.Read", "File.Write", false},
		{"Net.*", "File.Read", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, match(tc.pattern, tc.typ), "%s ~ %s", tc.pattern, tc.typ)
	}
}

func TestMakeMatcherOnlyFinalSegment(t *testing.T) {
	match := MakeMatcher(MatcherOptions{Separator: "/", OnlyFinalSegment: true})
	assert.True(t, match("a/b/#", "a/b"))
	assert.True(t, match("a/+/c", "a/x/c"))
	assert.False(t, match("a/#/c", "a/b/c"))
}

type tagWorker struct {
	tag  string
	seen *[]string
}

func (w tagWorker) Receive(_ context.Context, action sequence.Executable, _ *sequence.Life) error {
	*w.seen = append(*w.seen, w.tag+":"+action.Type())
	return nil
}

func TestSwitchRoutes(t *testing.T) {
	var seen []string
	plan := sequence.NewPlan()
	sw := NewSwitch(WithFallback(tagWorker{tag: "default", seen: &seen}))
	sw.Handle("File.*", tagWorker{tag: "files", seen: &seen})
	route := sw.Handle("File.Read", tagWorker{tag: "reads", seen: &seen})

	ctx := context.Background()
	require.NoError(t, sw.Receive(ctx, sequence.New("File.Read", 0, plan), nil))
	require.NoError(t, sw.Receive(ctx, sequence.New("File.Write", 0, plan), nil))
	require.NoError(t, sw.Receive(ctx, sequence.New("DrainQueue", 0, plan), nil))

	route.Remove()
	require.NoError(t, sw.Receive(ctx, sequence.New("File.Read", 0, plan), nil))

	assert.Equal(t, []string{
		"reads:File.Read",
		"files:File.Write",
		"default:DrainQueue",
		"files:File.Read",
	}, seen)
}

func TestSwitchNoRoute(t *testing.T) {
	sw := NewSwitch()
	err := sw.Receive(context.Background(), sequence.New("Unknown", 0, sequence.NewPlan()), nil)
	require.Error(t, err)
	assert.True(t, sequence.IsRouting(err))
}
