// Package asyncwriter contains an asynchronous writer.
package asyncwriter

import (
	"errors"
	"sync/atomic"

	"github.com/bluenviron/gortsplib/v4/pkg/ringbuffer"

	"github.com/bluenviron/mtxplayer/internal/logger"
)

// ErrTerminated is returned by Error after Stop.
var ErrTerminated = errors.New("terminated")

// Writer runs write callbacks in order, in a dedicated goroutine,
// in order to decouple producers from slow sockets.
type Writer struct {
	QueueSize int
	Parent    logger.Writer

	writeErrLogger logger.Writer
	buffer         *ringbuffer.RingBuffer
	dropped        atomic.Uint64

	// out
	err chan error
}

// Initialize initializes Writer.
func (w *Writer) Initialize() error {
	var err error
	w.buffer, err = ringbuffer.New(uint64(w.QueueSize))
	if err != nil {
		return err
	}

	w.writeErrLogger = logger.NewLimitedLogger(w.Parent)
	w.err = make(chan error, 1)

	return nil
}

// Start starts the writer routine.
func (w *Writer) Start() {
	go w.run()
}

// Stop stops the writer routine.
func (w *Writer) Stop() {
	w.buffer.Close()
	<-w.err
}

// Error returns a channel that is written when the routine exits because of an error.
func (w *Writer) Error() <-chan error {
	return w.err
}

// Dropped returns the number of callbacks that were discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Writer) run() {
	w.err <- w.runInner()
	close(w.err)
}

func (w *Writer) runInner() error {
	for {
		cb, ok := w.buffer.Pull()
		if !ok {
			return ErrTerminated
		}

		err := cb.(func() error)()
		if err != nil {
			return err
		}
	}
}

// Push appends a callback to the queue.
// It returns false when the queue is full.
func (w *Writer) Push(cb func() error) bool {
	ok := w.buffer.Push(cb)
	if !ok {
		w.dropped.Add(1)
		w.writeErrLogger.Log(logger.Warn, "write queue is full")
	}
	return ok
}
