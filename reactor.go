package reactor

import (
	"fmt"
	"sync"
)

const (
	// waitTimeoutMs is the reactor's backend.wait bound, per spec.md §4.5:
	// short enough that a shutdown request or a newly-handed-off connection
	// is noticed promptly even if the wakeup write itself is ever missed.
	waitTimeoutMs = 1

	// userDataConnWake/userDataMsgWake are reserved userData sentinels for
	// the reactor's own wakeup-channel registrations. Real connections are
	// tagged with uintptr(fd), so these sentinels are picked far outside
	// any valid fd range rather than colliding with small integers.
	userDataConnWake uintptr = ^uintptr(0)
	userDataMsgWake  uintptr = ^uintptr(0) - 1
)

// reactorThread is one "loop per thread" reactor: it owns a backend
// (epoll/kqueue), drives edge-triggered readiness notification for every
// connection handed to it, and serializes all mutation of that backend and
// of every connection it owns onto a single goroutine (spec.md §4.1, §4.5).
type reactorThread struct {
	id int
	be backend

	connWakeRead, connWakeWrite int
	msgWakeRead, msgWakeWrite   int

	pendingMu   sync.Mutex
	pendingConn []*connection

	msgMu   sync.Mutex
	msgHead *reactorMessage

	// connsMu/connsByFD is the fd→*connection table the reactor consults
	// on every readiness event (spec.md §4.1's "side map from fd to
	// *connection owned by the reactor thread"). It is the only thing
	// keeping a registered connection reachable to the Go garbage
	// collector between registration and its next readiness event: the
	// kernel poller's userData is a bare uintptr, which the GC does not
	// scan or follow, so a *connection referenced only by a cast-back
	// uintptr could be collected out from under a live registration.
	// Mutated only from this reactor's own goroutine (acceptPending,
	// closeConn, teardown), so the mutex here guards against concurrent
	// reads from tests/metrics, not against another writer.
	connsMu   sync.Mutex
	connsByFD map[int32]*connection

	queue *taskQueue
	stats *serverStats

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	doneCh       chan struct{}
}

func newReactorThread(id int, queue *taskQueue, stats *serverStats) (*reactorThread, error) {
	be, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("reactor %d: create backend: %w", id, err)
	}

	connR, connW, err := createWakeChannel()
	if err != nil {
		be.close()
		return nil, fmt.Errorf("reactor %d: create conn wake channel: %w", id, err)
	}
	msgR, msgW, err := createWakeChannel()
	if err != nil {
		closeWakeChannel(connR, connW)
		be.close()
		return nil, fmt.Errorf("reactor %d: create msg wake channel: %w", id, err)
	}

	r := &reactorThread{
		id:            id,
		be:            be,
		connWakeRead:  connR,
		connWakeWrite: connW,
		msgWakeRead:   msgR,
		msgWakeWrite:  msgW,
		connsByFD:     make(map[int32]*connection),
		queue:         queue,
		stats:         stats,
		shutdownCh:    make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	if err := be.add(connR, EventRead, userDataConnWake); err != nil {
		r.closeResources()
		return nil, fmt.Errorf("reactor %d: register conn wake fd: %w", id, err)
	}
	if err := be.add(msgR, EventRead, userDataMsgWake); err != nil {
		r.closeResources()
		return nil, fmt.Errorf("reactor %d: register msg wake fd: %w", id, err)
	}

	return r, nil
}

func (r *reactorThread) closeResources() {
	closeWakeChannel(r.connWakeRead, r.connWakeWrite)
	closeWakeChannel(r.msgWakeRead, r.msgWakeWrite)
	_ = r.be.close()
}

// handoff gives conn to this reactor. Called from the acceptor goroutine
// (or any non-reactor goroutine); conn must already carry the caller's
// reference, which handoff assumes ownership of on success (spec.md §4.7).
func (r *reactorThread) handoff(conn *connection) {
	conn.owningReactor = r
	r.pendingMu.Lock()
	r.pendingConn = append(r.pendingConn, conn)
	r.pendingMu.Unlock()
	_ = signalWakeChannel(r.connWakeWrite)
}

// sendClose posts a CLOSE_CONN message to this reactor. Safe from any
// goroutine (spec.md §4.5's worker→reactor handoff).
func (r *reactorThread) sendClose(conn *connection) {
	r.sendMessage(msgClose, conn)
}

// stageResponse copies resp into conn's write buffer and posts a
// RESPONSE_READY message so the reactor arms the connection for writing.
func (r *reactorThread) stageResponse(conn *connection, resp []byte) error {
	conn.mu.Lock()
	if len(resp) > cap(conn.writeBuf) {
		conn.mu.Unlock()
		return ErrBufferFull
	}
	n := copy(conn.writeBuf[:cap(conn.writeBuf)], resp)
	conn.writePos = 0
	conn.writeSize = n
	conn.mu.Unlock()

	r.sendMessage(msgResponseReady, conn)
	return nil
}

func (r *reactorThread) sendMessage(kind msgKind, conn *connection) {
	msg, err := newReactorMessage(kind, conn)
	if err != nil {
		// Connection already fully released; nothing to deliver.
		return
	}
	r.msgMu.Lock()
	msg.next = r.msgHead
	r.msgHead = msg
	r.msgMu.Unlock()
	_ = signalWakeChannel(r.msgWakeWrite)
}

// run is the reactor's single-goroutine loop: wait, drain wakeups, dispatch
// readiness, repeat, until shutdown is requested (spec.md §4.5).
func (r *reactorThread) run() error {
	defer close(r.doneCh)
	events := make([]event, maxBackendEvents)

	for {
		select {
		case <-r.shutdownCh:
			return r.teardown()
		default:
		}

		n, err := r.be.wait(events, waitTimeoutMs)
		if err != nil {
			logErr("reactor", err, "backend wait failed, reactor %d exiting", r.id)
			return err
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			switch ev.userData {
			case userDataConnWake:
				drainWakeChannel(r.connWakeRead)
				r.acceptPending()
			case userDataMsgWake:
				drainWakeChannel(r.msgWakeRead)
				r.processMessages()
			default:
				// userData is a registered connection's fd (spec.md's
				// opaque owner-supplied tag); look it up in connsByFD
				// rather than reconstructing a *connection from the
				// bare integer, which the GC cannot follow.
				conn := r.lookupConn(int32(ev.userData))
				if conn == nil {
					// Already deregistered (closeConn raced this event);
					// nothing to dispatch.
					continue
				}
				r.handleReadiness(conn, ev.events)
			}
		}
	}
}

// Shutdown requests the reactor's loop to exit after its current wait
// cycle and blocks until it does. Repeated calls are safe.
func (r *reactorThread) Shutdown() {
	r.shutdownOnce.Do(func() { close(r.shutdownCh) })
	<-r.doneCh
}

func (r *reactorThread) teardown() error {
	r.pendingMu.Lock()
	pending := r.pendingConn
	r.pendingConn = nil
	r.pendingMu.Unlock()
	for _, conn := range pending {
		conn.markClosing()
		conn.release()
	}

	r.msgMu.Lock()
	msg := r.msgHead
	r.msgHead = nil
	r.msgMu.Unlock()
	for msg != nil {
		next := msg.next
		msg.release()
		msg = next
	}

	r.connsMu.Lock()
	registered := r.connsByFD
	r.connsByFD = nil
	r.connsMu.Unlock()
	for fd, conn := range registered {
		_ = r.be.del(int(fd))
		if conn.markClosing() {
			conn.release()
		}
	}

	r.closeResources()
	return nil
}

// acceptPending registers every connection the acceptor has handed off
// since the last drain, edge-triggered for READ (spec.md §4.5).
func (r *reactorThread) acceptPending() {
	r.pendingMu.Lock()
	pending := r.pendingConn
	r.pendingConn = nil
	r.pendingMu.Unlock()

	for _, conn := range pending {
		fd := conn.fdSnapshot()
		if fd < 0 {
			conn.release()
			continue
		}
		if err := r.be.add(int(fd), EventRead|EventEdgeTriggered, uintptr(fd)); err != nil {
			logErr("reactor", err, "failed to register fd %d", fd)
			conn.markClosing()
			conn.release()
			continue
		}
		r.registerConn(fd, conn)
		r.stats.connectionsAccepted.Add(1)
		// The registration itself now holds the reference, tracked
		// through connsByFD; it is released and untracked in closeConn
		// when the fd is deregistered.
	}
}

// registerConn records conn under its current fd in connsByFD, keeping it
// reachable to the garbage collector for as long as it is registered with
// the backend (spec.md §4.1's fd→*connection side map).
func (r *reactorThread) registerConn(fd int32, conn *connection) {
	r.connsMu.Lock()
	r.connsByFD[fd] = conn
	r.connsMu.Unlock()
}

// unregisterConn removes fd from connsByFD, if present.
func (r *reactorThread) unregisterConn(fd int32) {
	r.connsMu.Lock()
	delete(r.connsByFD, fd)
	r.connsMu.Unlock()
}

// lookupConn resolves a readiness event's fd-as-userData tag back to its
// *connection, or nil if it is no longer registered.
func (r *reactorThread) lookupConn(fd int32) *connection {
	r.connsMu.Lock()
	conn := r.connsByFD[fd]
	r.connsMu.Unlock()
	return conn
}

// processMessages detaches the message list under msgMu and processes it
// outside the lock (spec.md §4.5/§5 — a plain channel cannot be detached
// wholesale this way).
func (r *reactorThread) processMessages() {
	r.msgMu.Lock()
	msg := r.msgHead
	r.msgHead = nil
	r.msgMu.Unlock()

	for msg != nil {
		next := msg.next
		switch msg.kind {
		case msgResponseReady:
			r.armWrite(msg.conn)
		case msgClose:
			r.closeConn(msg.conn)
		}
		msg.release()
		msg = next
	}
}

// armWrite switches a connection's readiness registration to WRITE once a
// response has been staged, per spec.md's "Write loop" / state machine.
func (r *reactorThread) armWrite(conn *connection) {
	if !conn.isValid() {
		return
	}
	fd := conn.fdSnapshot()
	if fd < 0 {
		return
	}
	conn.setState(stateWriting)
	if err := r.be.mod(int(fd), EventWrite|EventEdgeTriggered, uintptr(fd)); err != nil {
		logErr("reactor", err, "failed to arm write on fd %d", fd)
		r.closeConn(conn)
	}
}

// closeConn deregisters conn's fd, marks it closing, and drops the
// registration's reference exactly once (L1 idempotency guards a double
// call from both a CLOSE_CONN message and a HUP/ERROR event racing in).
// Untracking connsByFD before release matters: once release drops the
// last reference the connection may be collected, and no event loop
// iteration must be able to resolve that now-stale fd back to it.
func (r *reactorThread) closeConn(conn *connection) {
	fd := conn.fdSnapshot()
	if fd >= 0 {
		_ = r.be.del(int(fd))
		r.unregisterConn(fd)
	}
	if conn.markClosing() {
		r.stats.connectionsClosed.Add(1)
		conn.release()
	}
}

// handleReadiness dispatches one backend readiness event for conn (spec.md
// §4.5's read loop / write loop).
func (r *reactorThread) handleReadiness(conn *connection, events IOEvents) {
	if !conn.isValid() {
		return
	}

	if events&(EventError|EventHangup|EventRDHup) != 0 && events&EventRead == 0 {
		// RDHUP/HUP without pending readable data: peer closed, nothing
		// left to drain.
		r.closeConn(conn)
		return
	}

	if events&EventRead != 0 {
		r.readLoop(conn)
	}
	if events&EventWrite != 0 {
		r.writeLoop(conn)
	}
}

// readLoop drains an edge-triggered readable fd to EAGAIN (spec.md §4.5,
// S5), enqueuing a PROCESS task once a full read cycle completes.
func (r *reactorThread) readLoop(conn *connection) {
	conn.setState(stateReading)

	conn.mu.Lock()
	fd := conn.fd
	buf := conn.readBuf
	conn.mu.Unlock()
	if fd < 0 {
		return
	}

	var collected []byte
	for {
		n, err := readFD(int(fd), buf)
		if n > 0 {
			collected = append(collected, buf[:n]...)
			r.stats.bytesRead.Add(int64(n))
			conn.touch()
		}
		if err != nil {
			if isWouldBlock(err) {
				break
			}
			if isInterrupted(err) {
				continue
			}
			r.closeConn(conn)
			return
		}
		if n == 0 {
			// Peer performed an orderly shutdown.
			r.closeConn(conn)
			return
		}
	}

	if len(collected) == 0 {
		return
	}

	t, err := newTask(taskProcess, conn, collected)
	if err != nil {
		return
	}
	if err := r.queue.push(t); err != nil {
		// push only fails once the queue has been shut down (it blocks,
		// rather than erroring, while merely full); this is the shutdown
		// race, not a capacity problem.
		t.release()
		r.closeConn(conn)
	}
}

// writeLoop drains conn's staged write buffer to the peer, re-arming READ
// once fully flushed (spec.md §4.5).
func (r *reactorThread) writeLoop(conn *connection) {
	conn.mu.Lock()
	fd := conn.fd
	remaining := conn.writeSize - conn.writePos
	conn.mu.Unlock()
	if fd < 0 {
		return
	}
	if remaining <= 0 {
		r.finishWrite(conn)
		return
	}

	for remaining > 0 {
		conn.mu.Lock()
		chunk := conn.writeBuf[conn.writePos:conn.writeSize]
		conn.mu.Unlock()

		n, err := writeFD(int(fd), chunk)
		if n > 0 {
			conn.mu.Lock()
			conn.writePos += n
			remaining = conn.writeSize - conn.writePos
			conn.mu.Unlock()
			r.stats.bytesWritten.Add(int64(n))
			conn.touch()
		}
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if isInterrupted(err) {
				continue
			}
			r.closeConn(conn)
			return
		}
	}

	r.finishWrite(conn)
}

func (r *reactorThread) finishWrite(conn *connection) {
	conn.mu.Lock()
	conn.writePos = 0
	conn.writeSize = 0
	fd := conn.fd
	conn.mu.Unlock()
	if fd < 0 {
		return
	}
	conn.setState(stateReading)
	if err := r.be.mod(int(fd), EventRead|EventEdgeTriggered, uintptr(fd)); err != nil {
		logErr("reactor", err, "failed to re-arm read on fd %d", fd)
		r.closeConn(conn)
	}
}
