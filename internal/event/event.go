// Package event provides a typed observer list with explicit unsubscribe.
package event

import "sync"

// Subscription allows removing a registered handler.
type Subscription struct {
	remove func()
	once   *sync.Once
}

// Unsubscribe removes the handler so it no longer fires. Safe to call more
// than once and on the zero value.
func (s Subscription) Unsubscribe() {
	if s.remove == nil {
		return
	}
	s.once.Do(s.remove)
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

// Feed fans a value out to every subscriber in registration order.
type Feed[T any] struct {
	mu       sync.RWMutex
	handlers []handler[T]
	nextID   uint64
}

// Subscribe registers fn and returns a handle to remove it.
func (f *Feed[T]) Subscribe(fn func(T)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.handlers = append(f.handlers, handler[T]{id: id, fn: fn})
	return Subscription{remove: func() { f.remove(id) }, once: &sync.Once{}}
}

func (f *Feed[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.handlers {
		if f.handlers[i].id == id {
			f.handlers = append(f.handlers[:i:i], f.handlers[i+1:]...)
			return
		}
	}
}

// Send delivers v to all current subscribers. Handlers run synchronously on
// the caller's goroutine, outside the feed's lock, so a handler may
// unsubscribe itself.
func (f *Feed[T]) Send(v T) {
	f.mu.RLock()
	handlers := make([]handler[T], len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}
