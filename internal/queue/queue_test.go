package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("MinHeap", func(t *testing.T) {
		pq := NewMin(8)
		for _, d := range []float32{5, 1, 3, 2, 4} {
			pq.Push(Item{Node: uint32(d), Distance: d})
		}

		var got []float32
		for pq.Len() > 0 {
			item, ok := pq.Pop()
			require.True(t, ok)
			got = append(got, item.Distance)
		}
		assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)
	})

	t.Run("MaxHeap", func(t *testing.T) {
		pq := NewMax(8)
		for _, d := range []float32{5, 1, 3, 2, 4} {
			pq.Push(Item{Node: uint32(d), Distance: d})
		}

		top, ok := pq.Top()
		require.True(t, ok)
		assert.Equal(t, float32(5), top.Distance)

		var got []float32
		for pq.Len() > 0 {
			item, _ := pq.Pop()
			got = append(got, item.Distance)
		}
		assert.Equal(t, []float32{5, 4, 3, 2, 1}, got)
	})

	t.Run("Empty", func(t *testing.T) {
		pq := NewMin(0)
		_, ok := pq.Pop()
		assert.False(t, ok)
		_, ok = pq.Top()
		assert.False(t, ok)
	})

	t.Run("Reset", func(t *testing.T) {
		pq := NewMin(4)
		pq.Push(Item{Node: 1, Distance: 1})
		pq.Reset()
		assert.Zero(t, pq.Len())
	})

	t.Run("RandomOrdering", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		pq := NewMin(128)
		for i := 0; i < 1000; i++ {
			pq.Push(Item{Node: uint32(i), Distance: rng.Float32()})
		}

		prev := float32(-1)
		for pq.Len() > 0 {
			item, _ := pq.Pop()
			require.GreaterOrEqual(t, item.Distance, prev)
			prev = item.Distance
		}
	})
}
