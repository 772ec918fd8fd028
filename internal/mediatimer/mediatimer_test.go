package mediatimer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, maxHandles int) *Service {
	s := &Service{MaxHandles: maxHandles}
	err := s.Initialize()
	require.NoError(t, err)
	return s
}

func TestSingleShot(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	fired := make(chan uint64, 10)

	id, err := s.Register(CallbackFunc(func(id uint64) {
		fired <- id
	}))
	require.NoError(t, err)

	s.SetTimeout(id, 10*time.Millisecond)
	s.Start(id, true)
	require.True(t, s.IsStarted(id))

	select {
	case v := <-fired:
		require.Equal(t, id, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	select {
	case <-fired:
		t.Fatal("fired twice")
	case <-time.After(100 * time.Millisecond):
	}

	require.False(t, s.IsStarted(id))
}

func TestPeriodic(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	var count atomic.Int64
	done := make(chan struct{})

	var id uint64
	id, err := s.Register(CallbackFunc(func(uint64) {
		if count.Add(1) == 5 {
			s.Stop(id)
			close(done)
		}
	}))
	require.NoError(t, err)

	s.SetTimeout(id, 5*time.Millisecond)
	s.Start(id, false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(5), count.Load())
}

func TestStop(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	var count atomic.Int64

	id, err := s.Register(CallbackFunc(func(uint64) {
		count.Add(1)
	}))
	require.NoError(t, err)

	s.SetTimeout(id, 50*time.Millisecond)
	s.Start(id, false)
	s.Stop(id)

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int64(0), count.Load())
	require.Equal(t, 50*time.Millisecond, s.Timeout(id))
}

func TestUnregister(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	var count atomic.Int64

	id, err := s.Register(CallbackFunc(func(uint64) {
		count.Add(1)
	}))
	require.NoError(t, err)

	s.SetTimeout(id, 20*time.Millisecond)
	s.Start(id, false)
	s.Unregister(id)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(0), count.Load())
	require.Equal(t, 0, s.HandlesCount())
	require.False(t, s.IsStarted(id))
}

func TestSetTimeoutRestartsCountdown(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	fired := make(chan time.Time, 1)

	id, err := s.Register(CallbackFunc(func(uint64) {
		fired <- time.Now()
	}))
	require.NoError(t, err)

	s.SetTimeout(id, 40*time.Millisecond)
	s.Start(id, true)

	time.Sleep(20 * time.Millisecond)
	restarted := time.Now()
	s.SetTimeout(id, 60*time.Millisecond)

	select {
	case v := <-fired:
		require.GreaterOrEqual(t, v.Sub(restarted), 55*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestOrdering(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	order := make(chan int, 3)

	for i, d := range []time.Duration{
		60 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	} {
		id, err := s.Register(CallbackFunc(func(uint64) {
			order <- i
		}))
		require.NoError(t, err)
		s.SetTimeout(id, d)
		s.Start(id, true)
	}

	var got []int
	for range 3 {
		select {
		case v := <-order:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}

	require.Equal(t, []int{1, 2, 0}, got)
}

func TestTooManyHandles(t *testing.T) {
	s := newService(t, 2)
	defer s.Close()

	cb := CallbackFunc(func(uint64) {})

	_, err := s.Register(cb)
	require.NoError(t, err)

	id, err := s.Register(cb)
	require.NoError(t, err)

	_, err = s.Register(cb)
	require.ErrorIs(t, err, ErrTooManyHandles)

	s.Unregister(id)

	_, err = s.Register(cb)
	require.NoError(t, err)
}

func TestUnknownID(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	s.SetTimeout(1234, time.Millisecond)
	s.Start(1234, true)
	s.Stop(1234)
	s.Unregister(1234)

	require.False(t, s.IsStarted(1234))
	require.Equal(t, time.Duration(0), s.Timeout(1234))
}

func TestRegisterAfterClose(t *testing.T) {
	s := newService(t, 0)
	s.Close()

	_, err := s.Register(CallbackFunc(func(uint64) {}))
	require.ErrorIs(t, err, ErrTerminated)
}

func TestZeroTimeoutDoesNotStarve(t *testing.T) {
	s := newService(t, 0)
	defer s.Close()

	var busy uint64
	busy, err := s.Register(CallbackFunc(func(uint64) {}))
	require.NoError(t, err)
	s.Start(busy, false)
	defer s.Unregister(busy)

	fired := make(chan struct{})

	id, err := s.Register(CallbackFunc(func(uint64) {
		close(fired)
	}))
	require.NoError(t, err)
	s.SetTimeout(id, 10*time.Millisecond)
	s.Start(id, true)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestFireExpiredOncePerPass(t *testing.T) {
	now := time.Date(2003, 11, 4, 23, 15, 8, 0, time.UTC)

	s := &Service{
		MaxHandles: 10,
		timeNow:    func() time.Time { return now },
		handles:    make(map[uint64]*handle),
		chWake:     make(chan struct{}, 1),
	}

	var busyCount atomic.Int32
	busy, err := s.Register(CallbackFunc(func(uint64) {
		busyCount.Add(1)
	}))
	require.NoError(t, err)
	s.Start(busy, false)

	var otherCount atomic.Int32
	other, err := s.Register(CallbackFunc(func(uint64) {
		otherCount.Add(1)
	}))
	require.NoError(t, err)
	s.Start(other, false)

	s.fireExpired()
	require.Equal(t, int32(1), busyCount.Load())
	require.Equal(t, int32(1), otherCount.Load())

	s.fireExpired()
	require.Equal(t, int32(2), busyCount.Load())
	require.Equal(t, int32(2), otherCount.Load())

	s.Stop(other)
	s.fireExpired()
	require.Equal(t, int32(3), busyCount.Load())
	require.Equal(t, int32(2), otherCount.Load())
}
