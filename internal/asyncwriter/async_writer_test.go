package asyncwriter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mtxplayer/internal/test"
)

func TestWriterError(t *testing.T) {
	w := &Writer{QueueSize: 512, Parent: test.NilLogger}
	err := w.Initialize()
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	w.Push(func() error {
		return fmt.Errorf("testerror")
	})

	select {
	case err = <-w.Error():
		require.EqualError(t, err, "testerror")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestWriterOrder(t *testing.T) {
	w := &Writer{QueueSize: 64, Parent: test.NilLogger}
	err := w.Initialize()
	require.NoError(t, err)

	w.Start()

	var got []int
	done := make(chan struct{})

	for i := range 10 {
		require.True(t, w.Push(func() error {
			got = append(got, i)
			if i == 9 {
				close(done)
			}
			return nil
		}))
	}

	<-done
	w.Stop()

	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestWriterFull(t *testing.T) {
	w := &Writer{QueueSize: 4, Parent: test.NilLogger}
	err := w.Initialize()
	require.NoError(t, err)

	// routine is not started, so the queue is never emptied
	for range 4 {
		w.Push(func() error { return nil })
	}

	require.False(t, w.Push(func() error { return nil }))
	require.Equal(t, uint64(1), w.Dropped())

	w.Start()
	w.Stop()
}

func TestWriterInvalidSize(t *testing.T) {
	w := &Writer{QueueSize: 100, Parent: test.NilLogger}
	err := w.Initialize()
	require.Error(t, err)
}
