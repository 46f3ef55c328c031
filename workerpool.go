package reactor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// workerPool runs N goroutines, each repeatedly popping a task from a
// shared taskQueue, dispatching it to the application Handler, and posting
// the result back to the task's owning reactor — spec.md §4.4's
// pop/dispatch/release loop.
type workerPool struct {
	queue   *taskQueue
	handler Handler
	stats   *serverStats
	n       int
}

func newWorkerPool(n int, queue *taskQueue, handler Handler, stats *serverStats) *workerPool {
	return &workerPool{queue: queue, handler: handler, stats: stats, n: n}
}

// run launches the pool's goroutines under g and returns without waiting
// for them. Workers never observe ctx directly — they block on queue.pop
// and exit once the queue has been shut down and emptied by
// taskQueue.Shutdown (called from Server.Shutdown).
func (p *workerPool) run(ctx context.Context, g *errgroup.Group) {
	for i := 0; i < p.n; i++ {
		id := i
		g.Go(func() error {
			return p.loop(id)
		})
	}
}

func (p *workerPool) loop(id int) error {
	for {
		t, err := p.queue.pop()
		if err != nil {
			return fmt.Errorf("worker %d: %w", id, err)
		}
		if t == nil {
			// queue shut down and drained.
			return nil
		}
		p.dispatch(t)
	}
}

func (p *workerPool) dispatch(t *task) {
	defer t.release()

	if !t.conn.isValid() {
		return
	}

	switch t.kind {
	case taskClose:
		reactor := t.conn.owningReactor
		if reactor != nil {
			reactor.sendClose(t.conn)
		}
	case taskProcess:
		conn := &Conn{c: t.conn}
		out, err := p.handler.Handle(conn, t.payload)
		if err != nil {
			logErr("worker", err, "handler error, closing connection")
			reactor := t.conn.owningReactor
			if reactor != nil {
				reactor.sendClose(t.conn)
			}
			return
		}
		if len(out) == 0 {
			return
		}
		reactor := t.conn.owningReactor
		if reactor == nil {
			return
		}
		if err := reactor.stageResponse(t.conn, out); err != nil {
			logErr("worker", err, "failed to stage response")
			reactor.sendClose(t.conn)
			return
		}
		p.stats.tasksProcessed.Add(1)
	}
}
