package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connection is the per-connection state spec.md §3 describes. fd,
// closing, state, and refCount are all guarded by mu and must only change
// together under it (I2: "destruction is observable... both conditions
// tested under the mutex"). owningReactor is a non-owning back-reference
// set once at handoff time (spec.md §9: the reactor must outlive all
// connections it still holds).
//
// A counted handle with an interior mutex on the lifecycle fields is the
// idiomatic shape for this in Go: refCount is not a lock-free atomic
// because it must move in lockstep with closing, state, and fd, not
// independently of them.
type connection struct {
	mu sync.Mutex

	fd       int32 // -1 after close, set exactly once under mu
	state    connState
	closing  bool
	refCount int32

	readBuf   []byte
	writeBuf  []byte
	readPos   int
	writePos  int
	writeSize int

	peerAddr net.Addr

	// lastActive is observability-only (spec.md §3); it is updated
	// outside mu on the reactor goroutine after successful I/O, so it is
	// its own atomic rather than sharing the lifecycle mutex.
	lastActive atomic.Int64

	// owningReactor is set once, before the connection is registered with
	// any backend, and never changes afterward (I4: registered in at most
	// one reactor for its whole lifetime).
	owningReactor *reactorThread
}

// newConnection allocates a connection with refCount=1, representing the
// reference the acceptor holds on its caller's behalf until the reactor
// pipe handoff succeeds.
func newConnection(fd int, peerAddr net.Addr, readBufSize, writeBufSize int) *connection {
	c := &connection{
		fd:       int32(fd),
		state:    stateConnected,
		refCount: 1,
		readBuf:  make([]byte, readBufSize),
		writeBuf: make([]byte, writeBufSize),
		peerAddr: peerAddr,
	}
	c.touch()
	return c
}

func (c *connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// acquire increments refCount. It requires refCount >= 1 on entry — a
// connection that has already dropped to zero must never be resurrected.
// Callers that hold a connection via a task, an in-flight worker→reactor
// message, or a reactor registration must each have acquired exactly once
// for that reference (I1).
func (c *connection) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refCount < 1 {
		return ErrAcquireAfterRelease
	}
	c.refCount++
	return nil
}

// release decrements refCount; when it reaches zero the connection is torn
// down: fd is closed if still open, state advances to CLOSED, and the
// caller's reference is the last word on this object — no other goroutine
// may hold one after a release observes refCount==0, so no further
// synchronization is needed past this point (I1/I2).
func (c *connection) release() {
	c.mu.Lock()
	c.refCount--
	n := c.refCount
	var fd int32 = -1
	if n == 0 {
		fd = c.fd
		c.fd = -1
		c.state = stateClosed
	}
	c.mu.Unlock()

	if n == 0 && fd >= 0 {
		_ = closeFD(int(fd))
	}
}

// markClosing is idempotent (L1). On the first call it sets closing,
// advances state to CLOSING, and immediately closes fd to fence off
// further kernel-reported readiness (I3); it does not release any
// reference — the reactor's close protocol does that separately (§4.2).
// Returns true iff this call performed the transition (the caller is the
// one responsible for reactor.del and the subsequent release).
func (c *connection) markClosing() bool {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return false
	}
	c.closing = true
	if c.state.canAdvanceTo(stateClosing) {
		c.state = stateClosing
	}
	fd := c.fd
	c.fd = -1
	c.mu.Unlock()

	if fd >= 0 {
		_ = closeFD(int(fd))
	}
	return true
}

// isValid reports !closing && state != CLOSED, both read under mu. Callers
// that read isValid and then act are racing unless the action itself is
// taken on the single goroutine serializing all mutation for this
// connection (the owning reactor) — see spec.md §5's close-race argument.
func (c *connection) isValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closing && c.state != stateClosed
}

// fdSnapshot returns the current fd under the mutex. -1 once closed.
func (c *connection) fdSnapshot() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

// setState advances the state machine under mu, honoring monotonicity
// (P3). Called only from the owning reactor goroutine.
func (c *connection) setState(next connState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	if c.state.canAdvanceTo(next) {
		c.state = next
	}
}

func (c *connection) getState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) refCountSnapshot() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refCount
}
