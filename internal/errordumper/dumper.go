// Package errordumper contains an error aggregator that reports periodically.
package errordumper

import (
	"sync"
	"time"
)

const (
	defaultPeriod = 1 * time.Second
)

// Dumper collects errors and periodically reports how many
// were added since the previous report, together with the last one.
type Dumper struct {
	Period   time.Duration
	OnReport func(count uint64, last error)

	mutex sync.Mutex
	count uint64
	last  error

	terminate chan struct{}
	done      chan struct{}
}

// Start starts the dumper.
func (d *Dumper) Start() {
	if d.Period == 0 {
		d.Period = defaultPeriod
	}

	d.terminate = make(chan struct{})
	d.done = make(chan struct{})

	go d.run()
}

// Stop stops the dumper. Pending errors, if any, are reported before returning.
func (d *Dumper) Stop() {
	close(d.terminate)
	<-d.done
}

// Add adds an error.
func (d *Dumper) Add(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.count++
	d.last = err
}

func (d *Dumper) report() {
	d.mutex.Lock()
	count, last := d.count, d.last
	d.count = 0
	d.last = nil
	d.mutex.Unlock()

	if count != 0 {
		d.OnReport(count, last)
	}
}

func (d *Dumper) run() {
	defer close(d.done)

	t := time.NewTicker(d.Period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			d.report()

		case <-d.terminate:
			d.report()
			return
		}
	}
}
