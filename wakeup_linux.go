//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// createWakeChannel creates an eventfd for wake-up notifications on Linux.
// The single fd serves as both read and write end.
func createWakeChannel() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

// signalWakeChannel nudges the reader side of the wake channel. The value
// written is irrelevant; drainWakeChannel discards it.
func signalWakeChannel(writeFD int) error {
	var one uint64 = 1
	buf := [8]byte{}
	putUint64LE(buf[:], one)
	_, err := unix.Write(writeFD, buf[:])
	return err
}

// drainWakeChannel reads and discards every pending wakeup on the eventfd.
func drainWakeChannel(readFD int) {
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

// closeWakeChannel closes the eventfd.
func closeWakeChannel(readFD, writeFD int) {
	if readFD >= 0 {
		_ = unix.Close(readFD)
	}
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
