// Package event provides a small synchronous publish/subscribe primitive used by the pipeline
// components to report progress. Handlers run on the dispatching goroutine in subscription order.
package event

import "sync"

// Handler receives an event payload.
type Handler[T any] func(T)

type subscription[T any] struct {
	id uint64
	fn Handler[T]
}

// dispatcher is the implementation of the Dispatcher interface.
type dispatcher[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

// Dispatcher fans a typed event out to subscribed handlers.
type Dispatcher[T any] interface {
	// Subscribe registers a handler.
	//
	// Parameters:
	//   - fn: the handler to call for every dispatched event
	//
	// Returns:
	//   - func(): an unsubscribe handle, safe to call more than once
	Subscribe(fn Handler[T]) func()

	// Dispatch calls every subscribed handler with ev.
	//
	// Parameters:
	//   - ev: the event payload
	Dispatch(ev T)

	// Len returns the number of active subscriptions.
	//
	// Returns:
	//   - int: the subscription count
	Len() int

	// Clear removes every subscription.
	Clear()
}

var _ Dispatcher[int] = &dispatcher[int]{}

// NewDispatcher creates an empty Dispatcher.
//
// Returns:
//   - Dispatcher[T]: the new dispatcher
func NewDispatcher[T any]() Dispatcher[T] {
	return &dispatcher[T]{}
}

func (d *dispatcher[T]) Subscribe(fn Handler[T]) func() {
	if fn == nil {
		return func() {}
	}
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription[T]{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(id) })
	}
}

func (d *dispatcher[T]) unsubscribe(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return
		}
	}
}

func (d *dispatcher[T]) Dispatch(ev T) {
	d.mu.RLock()
	subs := make([]subscription[T], len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (d *dispatcher[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

func (d *dispatcher[T]) Clear() {
	d.mu.Lock()
	d.subs = nil
	d.mu.Unlock()
}
