// Package mediatimer contains a multiplexed timer service.
//
// Every handle is fired from a single goroutine owned by the service.
// Callbacks must return quickly since they delay every other handle.
package mediatimer

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/mtxplayer/internal/logger"
)

const (
	defaultMaxHandles = 4096
)

// ErrTooManyHandles is returned by Register when the handle limit is reached.
var ErrTooManyHandles = errors.New("too many timer handles")

// ErrTerminated is returned by Register after Close.
var ErrTerminated = errors.New("terminated")

// Callback is the interface implemented by timer users.
type Callback interface {
	OnTimer(id uint64)
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(id uint64)

// OnTimer implements Callback.
func (f CallbackFunc) OnTimer(id uint64) {
	f(id)
}

type handle struct {
	id         uint64
	cb         Callback
	timeout    time.Duration
	singleShot bool
	started    bool
	deadline   time.Time
	firedPass  uint64
	index      int // position in the heap, -1 when not armed
}

// Service is a timer service.
type Service struct {
	MaxHandles int
	Parent     logger.Writer

	timeNow   func() time.Time
	ctx       context.Context
	ctxCancel func()
	mutex     sync.Mutex
	handles   map[uint64]*handle
	armed     handleHeap
	nextID    uint64
	closed    bool
	pass      uint64

	// in
	chWake chan struct{}

	// out
	done chan struct{}
}

// Initialize initializes Service.
func (s *Service) Initialize() error {
	if s.MaxHandles == 0 {
		s.MaxHandles = defaultMaxHandles
	}
	if s.MaxHandles < 0 {
		return errors.New("invalid handle limit")
	}
	if s.timeNow == nil {
		s.timeNow = time.Now
	}

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.handles = make(map[uint64]*handle)
	s.chWake = make(chan struct{}, 1)
	s.done = make(chan struct{})

	go s.run()

	return nil
}

// Close closes the service. Handles are discarded without firing.
func (s *Service) Close() {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()

	s.ctxCancel()
	<-s.done
}

// Log implements logger.Writer.
func (s *Service) Log(level logger.Level, format string, args ...any) {
	if s.Parent != nil {
		s.Parent.Log(level, "[timer] "+format, args...)
	}
}

// Register registers a callback and returns the handle id.
// The handle is created stopped, with a zero timeout.
func (s *Service) Register(cb Callback) (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return 0, ErrTerminated
	}

	if len(s.handles) >= s.MaxHandles {
		return 0, ErrTooManyHandles
	}

	s.nextID++
	h := &handle{
		id:    s.nextID,
		cb:    cb,
		index: -1,
	}
	s.handles[h.id] = h

	return h.id, nil
}

// Unregister removes a handle.
// After it returns, the handle is never fired again.
// A firing that already started on the service goroutine may still be running.
func (s *Service) Unregister(id uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return
	}

	s.disarm(h)
	delete(s.handles, id)
}

// SetTimeout sets the timeout of a handle.
// If the handle is started, the countdown restarts from now.
func (s *Service) SetTimeout(id uint64, timeout time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return
	}

	if timeout < 0 {
		timeout = 0
	}
	h.timeout = timeout

	if h.started {
		s.arm(h, s.timeNow().Add(timeout))
	}
}

// Start starts a handle. A started handle is restarted.
func (s *Service) Start(id uint64, singleShot bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return
	}

	h.singleShot = singleShot
	h.started = true
	s.arm(h, s.timeNow().Add(h.timeout))
}

// Stop stops a handle without removing it.
func (s *Service) Stop(id uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return
	}

	h.started = false
	s.disarm(h)
}

// IsStarted returns whether a handle is started.
func (s *Service) IsStarted(id uint64) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h, ok := s.handles[id]
	return ok && h.started
}

// Timeout returns the timeout of a handle.
func (s *Service) Timeout(id uint64) time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return 0
	}
	return h.timeout
}

// HandlesCount returns the number of registered handles.
func (s *Service) HandlesCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.handles)
}

func (s *Service) arm(h *handle, deadline time.Time) {
	h.deadline = deadline

	if h.index >= 0 {
		heap.Fix(&s.armed, h.index)
	} else {
		heap.Push(&s.armed, h)
	}

	s.wake()
}

func (s *Service) disarm(h *handle) {
	if h.index >= 0 {
		heap.Remove(&s.armed, h.index)
	}
}

func (s *Service) wake() {
	select {
	case s.chWake <- struct{}{}:
	default:
	}
}

func (s *Service) nextDeadline() (time.Time, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.armed) == 0 {
		return time.Time{}, false
	}
	return s.armed[0].deadline, true
}

func (s *Service) run() {
	defer close(s.done)

	t := time.NewTimer(0)
	<-t.C
	defer t.Stop()

	for {
		if deadline, ok := s.nextDeadline(); ok {
			t.Reset(deadline.Sub(s.timeNow()))
		}

		select {
		case <-t.C:
			s.fireExpired()

		case <-s.chWake:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			s.fireExpired()

		case <-s.ctx.Done():
			return
		}
	}
}

// fireExpired fires every handle whose deadline expired before the call.
// A handle is fired at most once per pass.
func (s *Service) fireExpired() {
	now := s.timeNow()

	s.mutex.Lock()
	s.pass++
	pass := s.pass
	pending := len(s.armed)
	s.mutex.Unlock()

	for range pending {
		s.mutex.Lock()

		if len(s.armed) == 0 || s.armed[0].deadline.After(now) || s.armed[0].firedPass == pass {
			s.mutex.Unlock()
			return
		}

		h := heap.Pop(&s.armed).(*handle)
		h.firedPass = pass

		if h.singleShot {
			h.started = false
		} else {
			next := h.deadline.Add(h.timeout)
			if next.Before(now) {
				next = now
			}
			h.deadline = next
			heap.Push(&s.armed, h)
		}

		id := h.id
		cb := h.cb

		s.mutex.Unlock()

		cb.OnTimer(id)
	}
}
