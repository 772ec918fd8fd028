// Package counterdumper contains a counter that reports its increments periodically.
package counterdumper

import (
	"sync/atomic"
	"time"
)

const (
	defaultPeriod = 1 * time.Second
)

// CounterDumper accumulates a counter and periodically reports
// the amount added since the previous report.
// Nothing is reported when nothing was added.
type CounterDumper struct {
	Period   time.Duration
	OnReport func(delta uint64, total uint64)

	pending atomic.Uint64
	total   atomic.Uint64

	terminate chan struct{}
	done      chan struct{}
}

// Start starts the counter.
func (c *CounterDumper) Start() {
	if c.Period == 0 {
		c.Period = defaultPeriod
	}

	c.terminate = make(chan struct{})
	c.done = make(chan struct{})

	go c.run()
}

// Stop stops the counter. The pending amount, if any, is reported before returning.
func (c *CounterDumper) Stop() {
	close(c.terminate)
	<-c.done
}

// Increase increases the counter value by 1.
func (c *CounterDumper) Increase() {
	c.Add(1)
}

// Add adds value to the counter.
func (c *CounterDumper) Add(v uint64) {
	c.pending.Add(v)
	c.total.Add(v)
}

// Total returns the sum of every value added so far.
func (c *CounterDumper) Total() uint64 {
	return c.total.Load()
}

func (c *CounterDumper) report() {
	v := c.pending.Swap(0)
	if v != 0 {
		c.OnReport(v, c.total.Load())
	}
}

func (c *CounterDumper) run() {
	defer close(c.done)

	t := time.NewTicker(c.Period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.report()

		case <-c.terminate:
			c.report()
			return
		}
	}
}
