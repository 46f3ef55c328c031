package reactor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Server wires the acceptor, reactor pool, and worker pool into one
// runnable unit (spec.md §4.9, ambient per SPEC_FULL.md §4.9). Grounded on
// eventloop.Loop's Run(ctx)/Shutdown(ctx) two-method lifecycle split,
// generalized from one loop to a pool of reactors plus a worker pool.
type Server struct {
	opts  *serverOptions
	stats *serverStats
	queue *taskQueue

	pool     *reactorPool
	workers  *workerPool
	acceptor *acceptor
}

// NewServer builds a Server from the given options without binding any
// socket or starting any goroutine; call Run to start it.
func NewServer(opts ...ServerOption) (*Server, error) {
	cfg, err := resolveServerOptions(opts)
	if err != nil {
		return nil, err
	}
	SetLogger(cfg.logger)

	stats := &serverStats{}
	queue := newTaskQueue(cfg.queueSize, func() { stats.queueFullStalls.Add(1) })

	pool, err := newReactorPool(cfg.ioThreads, queue, stats)
	if err != nil {
		return nil, &StartupError{Stage: "reactor pool", Cause: err}
	}

	acc, err := newAcceptor(cfg.port, pool, stats, cfg.readBufSize, cfg.writeBufSize)
	if err != nil {
		pool.closeAll()
		return nil, err
	}

	workers := newWorkerPool(cfg.workerThreads, queue, cfg.handler, stats)

	return &Server{
		opts:     cfg,
		stats:    stats,
		queue:    queue,
		pool:     pool,
		workers:  workers,
		acceptor: acc,
	}, nil
}

// Run starts the acceptor, every reactor, and every worker, and blocks
// until ctx is canceled or one of them returns an unexpected error. On
// return every goroutine launched by Run has exited.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.pool.run(gctx, g)
	s.workers.run(gctx, g)
	g.Go(func() error {
		return s.acceptor.run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})

	logf(LevelInfo, "server", "listening on port %d (io_threads=%d, worker_threads=%d)",
		s.opts.port, s.opts.ioThreads, s.opts.workerThreads)

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections, drains and shuts down the task
// queue, and stops every reactor. It is safe to call multiple times.
func (s *Server) Shutdown(ctx context.Context) error {
	_ = s.acceptor.Shutdown()
	s.queue.Shutdown()
	s.pool.shutdown()
	s.queue.drain()
	logf(LevelInfo, "server", "shutdown complete")
	return nil
}

// Stats returns a snapshot of the server's live counters.
func (s *Server) Stats() ServerStats {
	return s.stats.snapshot()
}
