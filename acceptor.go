package reactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// acceptor owns the listening socket and hands each accepted connection to
// the next reactor in round-robin order (spec.md §4.7). It does not run
// its own epoll/kqueue registration: net.Listener.Accept already blocks
// efficiently in the Go runtime's own network poller, so a dedicated
// backend instance here would duplicate machinery for no benefit — the
// "implementation choice" spec.md §4.7 leaves open.
type acceptor struct {
	ln      net.Listener
	pool    *reactorPool
	stats   *serverStats
	readBuf int
	writBuf int
}

func newAcceptor(port int, pool *reactorPool, stats *serverStats, readBufSize, writeBufSize int) (*acceptor, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
				// SO_REUSEPORT is a best-effort enhancement (older kernels
				// lack it); its absence must not fail startup.
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, &StartupError{Stage: "listen", Cause: err}
	}

	return &acceptor{ln: ln, pool: pool, stats: stats, readBuf: readBufSize, writBuf: writeBufSize}, nil
}

// run accepts connections until the listener is closed by Shutdown, or ctx
// is canceled (which triggers the close from a separate goroutine to
// unblock the in-flight Accept call).
func (a *acceptor) run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = a.ln.Close()
		case <-done:
		}
	}()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logErr("acceptor", err, "accept failed")
			continue
		}
		a.handle(conn)
	}
}

func (a *acceptor) handle(nc net.Conn) {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		_ = nc.Close()
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		_ = tc.Close()
		return
	}

	var fd int
	var sockErr error
	err = raw.Control(func(rawFD uintptr) {
		fd = int(rawFD)
	})
	if err != nil {
		_ = tc.Close()
		return
	}
	// Duplicate the fd: *net.TCPConn's finalizer closes the original when
	// the Go value is garbage collected, but this reactor now owns the fd
	// directly through the connection struct, bypassing the net package.
	dupFD, err := unix.Dup(fd)
	_ = tc.Close()
	if err != nil {
		logErr("acceptor", err, "failed to dup accepted fd")
		return
	}

	if sockErr = setNonblockingAndNoDelay(dupFD); sockErr != nil {
		logErr("acceptor", sockErr, "failed to configure accepted fd")
		_ = closeFD(dupFD)
		return
	}

	conn := newConnection(dupFD, nc.RemoteAddr(), a.readBuf, a.writBuf)
	a.pool.pick().handoff(conn)
}

// Shutdown closes the listening socket, unblocking any in-flight Accept.
func (a *acceptor) Shutdown() error {
	return a.ln.Close()
}
