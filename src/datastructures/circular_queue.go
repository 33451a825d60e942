package datastructures

// A circular queue that doubles its buffer when full.
type CircularQueue[T any] struct {
	buffer []T
	head   int
	len    int
}

// Create a new circular queue with an initial capacity.
func NewCircularQueue[T any](capacity int) CircularQueue[T] {
	return CircularQueue[T]{
		buffer: make([]T, capacity),
	}
}

func (q *CircularQueue[T]) Enqueue(item T) {
	if q.len == len(q.buffer) {
		q.grow()
	}

	tail := (q.head + q.len) % len(q.buffer)
	q.buffer[tail] = item

	q.len++
}

func (q *CircularQueue[T]) Dequeue() (val T, ok bool) {
	if q.len == 0 {
		ok = false
		return
	}

	var zero T
	val = q.buffer[q.head]
	q.buffer[q.head] = zero
	ok = true

	q.head = (q.head + 1) % len(q.buffer)
	q.len--

	return
}

func (q *CircularQueue[T]) IsEmpty() bool {
	return q.len == 0
}

func (q *CircularQueue[T]) Len() int {
	return q.len
}

func (q *CircularQueue[T]) Cap() int {
	return len(q.buffer)
}

// Calls fn for every item from head to tail.
func (q *CircularQueue[T]) Each(fn func(T)) {
	for i := 0; i < q.len; i++ {
		fn(q.buffer[(q.head+i)%len(q.buffer)])
	}
}

func (q *CircularQueue[T]) grow() {
	capacity := 2 * len(q.buffer)
	if capacity == 0 {
		capacity = 1
	}

	buffer := make([]T, capacity)
	for i := 0; i < q.len; i++ {
		buffer[i] = q.buffer[(q.head+i)%len(q.buffer)]
	}
	q.buffer = buffer
	q.head = 0
}
