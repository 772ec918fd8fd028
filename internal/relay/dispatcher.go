package relay

import (
	"sync"
)

// Drainer is implemented by Relay.
type Drainer interface {
	Drain() int
}

// Dispatcher collects relays that have pending events and drains them
// on the goroutine that reads C and calls Dispatch.
// Notifications are coalesced: many Notify calls may result in a single wake.
type Dispatcher struct {
	mutex   sync.Mutex
	pending []Drainer
	isSet   map[Drainer]struct{}

	ch chan struct{}
}

// Initialize initializes Dispatcher.
func (d *Dispatcher) Initialize() {
	d.isSet = make(map[Drainer]struct{})
	d.ch = make(chan struct{}, 1)
}

// Notify marks a drainer as pending and wakes the consumer. It never blocks.
func (d *Dispatcher) Notify(dr Drainer) {
	d.mutex.Lock()
	if _, ok := d.isSet[dr]; !ok {
		d.isSet[dr] = struct{}{}
		d.pending = append(d.pending, dr)
	}
	d.mutex.Unlock()

	select {
	case d.ch <- struct{}{}:
	default:
	}
}

// Forget removes a drainer from the pending ones.
func (d *Dispatcher) Forget(dr Drainer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, ok := d.isSet[dr]; !ok {
		return
	}

	delete(d.isSet, dr)

	for i, v := range d.pending {
		if v == dr {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
}

// C returns a channel that is written when at least one drainer is pending.
func (d *Dispatcher) C() <-chan struct{} {
	return d.ch
}

// Dispatch drains every pending drainer.
func (d *Dispatcher) Dispatch() int {
	d.mutex.Lock()
	pending := d.pending
	d.pending = nil
	clear(d.isSet)
	d.mutex.Unlock()

	n := 0
	for _, dr := range pending {
		n += dr.Drain()
	}
	return n
}
