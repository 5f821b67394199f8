package common

// CircularQueue is a FIFO ring buffer that doubles its capacity when it gets full
type CircularQueue[T any] struct {
	items []T
	count int
	pos   int
}

func NewCircularQueue[T any](capacity int) CircularQueue[T] {
	return CircularQueue[T]{
		items: make([]T, max(capacity, 1)),
	}
}

func (cq *CircularQueue[T]) Push(item T) {
	if cq.count == len(cq.items) {
		cq.grow()
	}

	cq.items[(cq.pos+cq.count)%len(cq.items)] = item
	cq.count++
}

func (cq *CircularQueue[T]) Pop() (result T, ok bool) {
	if cq.count == 0 {
		return result, false
	}

	var def T

	result = cq.items[cq.pos]
	cq.items[cq.pos] = def
	cq.pos = (cq.pos + 1) % len(cq.items)
	cq.count--

	return result, true
}

func (cq *CircularQueue[T]) Peek() (result T, ok bool) {
	if cq.count == 0 {
		return result, false
	}

	return cq.items[cq.pos], true
}

func (cq CircularQueue[T]) Len() int {
	return cq.count
}

func (cq CircularQueue[T]) Cap() int {
	return len(cq.items)
}

func (cq *CircularQueue[T]) Clear() {
	var def T

	for i := range cq.items {
		cq.items[i] = def
	}

	cq.count, cq.pos = 0, 0
}

func (cq *CircularQueue[T]) ToList() []T {
	lst := make([]T, cq.count)

	for i := 0; i < cq.count; i++ {
		lst[i] = cq.items[(cq.pos+i)%len(cq.items)]
	}

	return lst
}

func (cq *CircularQueue[T]) grow() {
	items := make([]T, len(cq.items)*2)
	copy(items, cq.ToList())

	cq.items = items
	cq.pos = 0
}
