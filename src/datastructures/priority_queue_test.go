package datastructures_test

import (
	"dpcqueue/src/datastructures"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue_EnqueueAndDequeue(t *testing.T) {
	q := datastructures.NewPriorityQueue[float32, int](3)

	assert.True(t, q.Enqueue(1, 20.0))
	assert.True(t, q.Enqueue(2, 10.0))
	assert.True(t, q.Enqueue(3, 100.0))
	assert.False(t, q.Enqueue(4, 200.0))

	// { 100.0: 3, 20.0: 1, 10.0: 2 }
	val, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 3, val)

	// { 20.0: 1, 10.0: 2 }
	val, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, val)

	// { 10.0: 2 }
	assert.True(t, q.Enqueue(5, 100.0))

	// { 500.0: 5, 10.0: 2 }
	val, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 5, val)

	// { 10.0: 2 }
	val, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 2, val)

	// { }
	_, ok = q.Dequeue()
	assert.False(t, ok)

	// { }
	assert.True(t, q.Enqueue(6, 100.0))

	// { 10.0: 6 }
	val, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 6, val)
}

// Test if Peek returns the head without removing it.
func TestPriorityQueue_Peek(t *testing.T) {
	q := datastructures.NewPriorityQueue[int64, string](2)

	_, _, ok := q.Peek()
	assert.False(t, ok)

	assert.True(t, q.Enqueue("late", -20))
	assert.True(t, q.Enqueue("early", -10))

	val, priority, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "early", val)
	assert.Equal(t, int64(-10), priority)
	assert.Equal(t, 2, q.Len())
}

// Test if equal priorities dequeue in insertion order.
func TestPriorityQueue_StableTies(t *testing.T) {
	q := datastructures.NewPriorityQueue[int, string](4)

	assert.True(t, q.Enqueue("a", 1))
	assert.True(t, q.Enqueue("b", 1))
	assert.True(t, q.Enqueue("c", 2))
	assert.True(t, q.Enqueue("d", 1))

	var order []string
	for q.Len() > 0 {
		val, _ := q.Dequeue()
		order = append(order, val)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, order)
}
