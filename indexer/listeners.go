package indexer

import "sync"

type listeners[T any] struct {
	lock     sync.Mutex
	nextID   uint64
	handlers map[uint64]func(T)
}

func (l *listeners[T]) add(handler func(T)) func() {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.handlers == nil {
		l.handlers = map[uint64]func(T){}
	}

	id := l.nextID
	l.nextID++
	l.handlers[id] = handler

	return func() {
		l.lock.Lock()
		defer l.lock.Unlock()

		delete(l.handlers, id)
	}
}

// publish calls handlers in registration order
func (l *listeners[T]) publish(value T) {
	l.lock.Lock()

	handlers := make([]func(T), 0, len(l.handlers))

	for id := uint64(0); id < l.nextID; id++ {
		if handler, exists := l.handlers[id]; exists {
			handlers = append(handlers, handler)
		}
	}

	l.lock.Unlock()

	for _, handler := range handlers {
		handler(value)
	}
}
