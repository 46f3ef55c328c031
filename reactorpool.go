package reactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// reactorPool is a fixed, ordered set of reactorThreads, dispatched to in
// strict round-robin with no health or load feedback (spec.md §4.6).
type reactorPool struct {
	reactors []*reactorThread
	next     atomic.Uint32
}

func newReactorPool(n int, queue *taskQueue, stats *serverStats) (*reactorPool, error) {
	p := &reactorPool{reactors: make([]*reactorThread, 0, n)}
	for i := 0; i < n; i++ {
		r, err := newReactorThread(i, queue, stats)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("reactor pool: %w", err)
		}
		p.reactors = append(p.reactors, r)
	}
	return p, nil
}

func (p *reactorPool) closeAll() {
	for _, r := range p.reactors {
		r.closeResources()
	}
}

// pick returns the next reactor in round-robin order.
func (p *reactorPool) pick() *reactorThread {
	n := uint32(len(p.reactors))
	idx := p.next.Add(1) - 1
	return p.reactors[idx%n]
}

// run launches every reactor's loop under g.
func (p *reactorPool) run(ctx context.Context, g *errgroup.Group) {
	for _, r := range p.reactors {
		g.Go(r.run)
	}
}

// shutdown requests every reactor to stop and waits for all of them,
// concurrently (each Shutdown call itself blocks on its own reactor).
func (p *reactorPool) shutdown() {
	var wg sync.WaitGroup
	wg.Add(len(p.reactors))
	for _, r := range p.reactors {
		r := r
		go func() {
			defer wg.Done()
			r.Shutdown()
		}()
	}
	wg.Wait()
}
