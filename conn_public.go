package reactor

import (
	"net"
	"time"
)

// Conn is the public, restricted view of a connection handed to a Handler.
// It deliberately exposes none of the lifecycle machinery (acquire,
// release, markClosing, fd) — a Handler runs on a worker goroutine and
// must never touch the poller or the refcount directly (I5); all it may
// do is read metadata (RemoteAddr, LastActive). The response is staged by
// returning it from Handle.
type Conn struct {
	c *connection
}

// RemoteAddr returns the peer address captured at accept time.
func (conn *Conn) RemoteAddr() net.Addr {
	return conn.c.peerAddr
}

// LastActive returns the last time this connection completed I/O.
func (conn *Conn) LastActive() time.Time {
	return time.Unix(0, conn.c.lastActive.Load())
}

// writeBufCap reports the capacity of the connection's write buffer, the
// upper bound on a single Handler response (spec.md §4.8).
func (conn *Conn) writeBufCap() int {
	return cap(conn.c.writeBuf)
}
