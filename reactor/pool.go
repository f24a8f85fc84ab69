//go:build linux
// +build linux

package reactor

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// Pool rotates connections round-robin across N independent reactors, so a
// multi-core host can run more than one reactor thread concurrently while
// each individual reactor remains strictly single-threaded internally.
type Pool struct {
	reactors []*Reactor
	next     atomic.Uint64
}

// NewPool creates n reactors, each with the given poll timeout. Each
// reactor's OS thread is pinned to logical CPU i (mod runtime.NumCPU),
// best-effort: a platform or permission failure to pin is logged by the
// reactor itself and does not prevent the reactor from running unpinned.
func NewPool(n int, pollTimeout time.Duration) (*Pool, error) {
	if n <= 0 {
		n = 1
	}
	ncpu := runtime.NumCPU()
	p := &Pool{reactors: make([]*Reactor, 0, n)}
	for i := 0; i < n; i++ {
		cpu := -1
		if ncpu > 0 {
			cpu = i % ncpu
		}
		r, err := newPinned(pollTimeout, cpu)
		if err != nil {
			p.Stop()
			return nil, fmt.Errorf("reactor: pool member %d: %w", i, err)
		}
		p.reactors = append(p.reactors, r)
	}
	return p, nil
}

// Next returns the next reactor in round-robin order, to which a newly
// accepted connection should be assigned.
func (p *Pool) Next() *Reactor {
	idx := p.next.Add(1) - 1
	return p.reactors[int(idx)%len(p.reactors)]
}

// Stop stops every reactor in the pool.
func (p *Pool) Stop() {
	for _, r := range p.reactors {
		r.Stop()
	}
}
