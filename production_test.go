package sequence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionFIFO(t *testing.T) {
	plan := NewPlan()
	q := NewProduction()
	a, b, c := New("A", 0, plan), New("B", 0, plan), New("C", 0, plan)

	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)
	assert.Equal(t, 3, q.Len())

	for _, want := range []Executable{a, b, c} {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Same(t, want, got)
	}

	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestProductionConcurrentProducersDequeueOnce(t *testing.T) {
	plan := NewPlan()
	q := NewProduction()

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(New(fmt.Sprintf("p%d-%d", p, i), 0, plan))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]int)
	lastIndex := make(map[int]int)
	for {
		action, ok := q.Dequeue()
		if !ok {
			break
		}
		seen[action.Type()]++

		var p, i int
		_, err := fmt.Sscanf(action.Type(), "p%d-%d", &p, &i)
		require.NoError(t, err)
		if last, ok := lastIndex[p]; ok {
			assert.Greater(t, i, last, "producer %d out of order", p)
		}
		lastIndex[p] = i
	}

	assert.Len(t, seen, producers*perProducer)
	for name, count := range seen {
		assert.Equal(t, 1, count, name)
	}
}
