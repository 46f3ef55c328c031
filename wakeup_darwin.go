//go:build darwin

package reactor

import (
	"syscall"
)

// createWakeChannel creates a self-pipe for wake-up notifications on
// Darwin, where no eventfd equivalent exists. Returns the read end and the
// write end.
func createWakeChannel() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}

	cleanup := func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return -1, -1, err
	}

	return fds[0], fds[1], nil
}

// signalWakeChannel writes a single byte to the pipe's write end. The
// value is irrelevant; drainWakeChannel discards it.
func signalWakeChannel(writeFD int) error {
	_, err := syscall.Write(writeFD, []byte{1})
	return err
}

// drainWakeChannel reads and discards every pending wakeup byte.
func drainWakeChannel(readFD int) {
	var buf [64]byte
	for {
		_, err := syscall.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

// closeWakeChannel closes both pipe ends.
func closeWakeChannel(readFD, writeFD int) {
	if readFD >= 0 {
		_ = syscall.Close(readFD)
	}
	if writeFD >= 0 && writeFD != readFD {
		_ = syscall.Close(writeFD)
	}
}
