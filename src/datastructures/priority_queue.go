package datastructures

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type heapImpl[K constraints.Ordered, T any] []heapItem[K, T]

type heapItem[K constraints.Ordered, T any] struct {
	value    T
	priority K
	seq      uint64
}

func (q heapImpl[K, T]) Len() int { return len(q) }

// Larger priority first, insertion order among equal priorities.
func (q heapImpl[K, T]) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q heapImpl[K, T]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *heapImpl[K, T]) Push(x any) {
	item := x.(heapItem[K, T])
	*q = append(*q, item)
}

func (q *heapImpl[K, T]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = heapItem[K, T]{} // avoid memory leak
	*q = old[0 : n-1]
	return item
}

// A bounded max-heap. Dequeue yields the value with the largest priority;
// values of equal priority come out in the order they were enqueued.
type PriorityQueue[K constraints.Ordered, T any] struct {
	heap     heapImpl[K, T]
	capacity int
	seq      uint64
}

func NewPriorityQueue[K constraints.Ordered, T any](
	capacity int,
) PriorityQueue[K, T] {
	return PriorityQueue[K, T]{
		heap:     make(heapImpl[K, T], 0, capacity),
		capacity: capacity,
	}
}

// Returns false if the queue is full.
func (q *PriorityQueue[K, T]) Enqueue(value T, priority K) bool {
	if len(q.heap) == q.capacity {
		return false
	}

	q.seq++
	heap.Push(&q.heap, heapItem[K, T]{
		value:    value,
		priority: priority,
		seq:      q.seq,
	})
	return true
}

func (q *PriorityQueue[K, T]) Dequeue() (val T, ok bool) {
	if len(q.heap) == 0 {
		ok = false
		return
	}

	item := heap.Pop(&q.heap).(heapItem[K, T])
	val = item.value
	ok = true
	return
}

// Returns the value Dequeue would yield without removing it.
func (q *PriorityQueue[K, T]) Peek() (val T, priority K, ok bool) {
	if len(q.heap) == 0 {
		return
	}

	item := q.heap[0]
	return item.value, item.priority, true
}

func (q *PriorityQueue[K, T]) Len() int {
	return len(q.heap)
}
