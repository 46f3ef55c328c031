//go:build linux || darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor. For a connection's fd the call sites
// are connection.markClosing and connection.release's fallback for a
// connection that never reached markClosing (spec.md I3/§4.2); the
// acceptor also calls it on an accepted fd it fails to configure, before
// any connection exists for it.
func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// readFD reads from a non-blocking file descriptor.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a non-blocking file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// isWouldBlock reports whether err is EAGAIN/EWOULDBLOCK.
func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// isInterrupted reports whether err is EINTR.
func isInterrupted(err error) bool {
	return err == unix.EINTR
}

// setNonblockingAndNoDelay configures an accepted peer socket per
// spec.md §4.7: non-blocking I/O and TCP_NODELAY.
func setNonblockingAndNoDelay(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}
