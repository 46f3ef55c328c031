package reactor

import "sync/atomic"

// ServerStats aggregates the counters spec.md §3/§4.5 names as
// observability-only bookkeeping ("update stats" in the read/write loops).
// Per spec.md §2, statistics accounting is an external collaborator with a
// documented interface, not a feature to build a telemetry pipeline
// around — so this is a thin, copyable snapshot, grounded on the
// corpus's "struct of atomics, returned as a copy" shape rather than its
// latency-percentile machinery.
type ServerStats struct {
	ConnectionsAccepted int64
	ConnectionsClosed   int64
	BytesRead           int64
	BytesWritten        int64
	TasksProcessed      int64

	// QueueFullStalls counts every time a reactor's push onto the task
	// queue found it full and had to block (spec.md §5's documented
	// backpressure: "reactors stall on push when the work queue is
	// full"). It is incremented from inside the blocking wait itself, not
	// on any error return — push only ever errors once the queue has
	// been shut down.
	QueueFullStalls int64
}

// serverStats is the live, atomic-counter-backed version ServerStats
// snapshots from.
type serverStats struct {
	connectionsAccepted atomic.Int64
	connectionsClosed   atomic.Int64
	bytesRead           atomic.Int64
	bytesWritten        atomic.Int64
	tasksProcessed      atomic.Int64
	queueFullStalls     atomic.Int64
}

func (s *serverStats) snapshot() ServerStats {
	return ServerStats{
		ConnectionsAccepted: s.connectionsAccepted.Load(),
		ConnectionsClosed:   s.connectionsClosed.Load(),
		BytesRead:           s.bytesRead.Load(),
		BytesWritten:        s.bytesWritten.Load(),
		TasksProcessed:      s.tasksProcessed.Load(),
		QueueFullStalls:     s.queueFullStalls.Load(),
	}
}
