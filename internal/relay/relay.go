// Package relay moves events produced by background goroutines to a consumer goroutine.
package relay

import (
	"sync"
)

// Relay is a FIFO of events delivered to a handler on the goroutine that calls Drain.
// The queue and the handler are protected by the same mutex, which is never held
// while the handler runs.
type Relay[E any] struct {
	// called when an event is pushed into an empty queue.
	OnWake func()

	mutex   sync.Mutex
	handler func(E)
	queue   []E
}

// SetHandler sets the handler.
func (r *Relay[E]) SetHandler(h func(E)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handler = h
}

// Push appends an event. It returns false when the relay has no handler,
// in which case the event is discarded.
func (r *Relay[E]) Push(e E) bool {
	r.mutex.Lock()

	if r.handler == nil {
		r.mutex.Unlock()
		return false
	}

	wake := len(r.queue) == 0
	r.queue = append(r.queue, e)
	r.mutex.Unlock()

	if wake && r.OnWake != nil {
		r.OnWake()
	}

	return true
}

// Drain delivers queued events in order and returns how many were delivered.
// Events pushed during the drain are delivered too.
func (r *Relay[E]) Drain() int {
	n := 0

	for {
		r.mutex.Lock()

		if r.handler == nil || len(r.queue) == 0 {
			r.mutex.Unlock()
			return n
		}

		e := r.queue[0]
		var zero E
		r.queue[0] = zero
		r.queue = r.queue[1:]
		h := r.handler

		r.mutex.Unlock()

		h(e)
		n++
	}
}

// Reset removes the handler and discards queued events.
func (r *Relay[E]) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.handler = nil
	r.queue = nil
}

// Len returns the number of queued events.
func (r *Relay[E]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.queue)
}
