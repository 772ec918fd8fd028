package externalcmd

import (
	"sync"
)

// Pool is a pool of external commands.
type Pool struct {
	mutex   sync.Mutex
	wg      sync.WaitGroup
	cmds    map[*Cmd]struct{}
	closing bool
}

// Initialize initializes Pool.
func (p *Pool) Initialize() {
	p.cmds = make(map[*Cmd]struct{})
}

// Close terminates running commands and waits for them to exit.
func (p *Pool) Close() {
	p.mutex.Lock()
	p.closing = true
	for c := range p.cmds {
		p.terminateLocked(c)
	}
	p.mutex.Unlock()

	p.wg.Wait()
}

// Running returns the number of running commands.
func (p *Pool) Running() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.cmds)
}

func (p *Pool) add(c *Cmd) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.wg.Add(1)
	p.cmds[c] = struct{}{}

	if p.closing {
		p.terminateLocked(c)
	}
}

func (p *Pool) remove(c *Cmd) {
	p.mutex.Lock()
	delete(p.cmds, c)
	p.mutex.Unlock()

	p.wg.Done()
}

func (p *Pool) terminate(c *Cmd) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.terminateLocked(c)
}

func (p *Pool) terminateLocked(c *Cmd) {
	select {
	case <-c.terminate:
	default:
		close(c.terminate)
	}
}
