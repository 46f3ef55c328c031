package reactor

import "sync"

// taskKind distinguishes the two task shapes a reactor ever enqueues.
type taskKind int

const (
	taskProcess taskKind = iota
	taskClose
)

// task is (kind, connection, payload) per spec.md §3. Creating a task
// acquires the connection; releasing it releases — so an enqueued task
// pins the connection's lifetime for exactly its queue residency (I1).
type task struct {
	kind    taskKind
	conn    *connection
	payload []byte
}

// newTask acquires conn and returns a task wrapping it, or an error if the
// connection has already been released to zero.
func newTask(kind taskKind, conn *connection, payload []byte) (*task, error) {
	if err := conn.acquire(); err != nil {
		return nil, err
	}
	return &task{kind: kind, conn: conn, payload: payload}, nil
}

// release drops the task's reference on its connection. Call it exactly
// once per task: the consumer releases a popped task (workerPool.dispatch),
// taskQueue.drain releases tasks still queued at shutdown, and a producer
// whose push failed releases its own task.
func (t *task) release() {
	t.conn.release()
}

// taskQueue is the bounded FIFO of spec.md §4.3: blocking push (producer)
// and blocking pop (consumer), with a shutdown signal that drains waiters.
// Grounded on the mutex+condvar pattern the corpus uses for synchronized
// structures, generalized to the blocking producer/consumer semantics this
// spec requires (plain channels cannot express "block while full" without
// an additional semaphore, and cannot be drained-with-disposal on shutdown
// the way push/pop's contract requires).
type taskQueue struct {
	mu       sync.Mutex
	notFull  sync.Cond
	notEmpty sync.Cond
	items    []*task
	maxSize  int
	shutdown bool

	// onStall, if non-nil, is invoked every time a push finds the queue
	// full and is about to block on notFull (so a push that wakes and finds
	// the queue still full counts again) — the genuine
	// backpressure observation point (spec.md §4.3/§5: "reactors stall on
	// push when the work queue is full"). push's blocking contract is
	// unchanged; this is a side-channel counter, not a different return
	// path.
	onStall func()
}

// newTaskQueue creates a bounded FIFO with the given capacity. onStall may
// be nil.
func newTaskQueue(maxSize int, onStall func()) *taskQueue {
	q := &taskQueue{maxSize: maxSize, onStall: onStall}
	q.notFull.L = &q.mu
	q.notEmpty.L = &q.mu
	return q
}

// push blocks while the queue is full and not shut down. On shutdown it
// returns ErrQueueShutdown and the caller owns disposal of t (spec.md
// §4.3: "caller owns task disposal"). On success it enqueues at the tail
// and wakes one waiting consumer.
func (q *taskQueue) push(t *task) error {
	q.mu.Lock()
	for len(q.items) >= q.maxSize && !q.shutdown {
		if q.onStall != nil {
			q.onStall()
		}
		q.notFull.Wait()
	}
	if q.shutdown {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.notEmpty.Signal()
	return nil
}

// pop blocks while the queue is empty and not shut down. It returns
// (nil, nil) iff shutdown was requested and the queue has fully drained —
// the spec's "null" sentinel for a shut-down-and-empty queue.
func (q *taskQueue) pop() (*task, error) {
	q.mu.Lock()
	for len(q.items) == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	q.notFull.Signal()
	return t, nil
}

// Shutdown sets the shutdown flag and broadcasts both condition variables
// so every blocked push/pop observes it. Subsequent pushes fail; pops
// continue returning queued items until empty, then return (nil, nil).
func (q *taskQueue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// drain frees any residual tasks after shutdown, releasing each one's
// connection reference (I1 upheld even for tasks that never ran).
func (q *taskQueue) drain() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	for _, t := range items {
		t.release()
	}
}

// Len reports the current queue depth, for stats/metrics only.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
