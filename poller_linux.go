//go:build linux

package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// epollBackend implements backend using epoll. Per spec.md §4.1, translation
// is: READ→EPOLLIN, WRITE→EPOLLOUT, ET→EPOLLET, HUP→EPOLLHUP,
// RDHUP→EPOLLRDHUP, ERROR→EPOLLERR, symmetrically in both directions.
type epollBackend struct {
	epfd     int
	closed   atomic.Bool
	eventBuf [maxBackendEvents]unix.EpollEvent
}

func newBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: epfd}, nil
}

func (p *epollBackend) add(fd int, mask IOEvents, userData uintptr) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(mask)}
	packUserData(&ev, userData)
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err == unix.EEXIST {
		// Already registered: replace the existing mask and tag.
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	return err
}

func (p *epollBackend) mod(fd int, mask IOEvents, userData uintptr) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(mask)}
	packUserData(&ev, userData)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollBackend) del(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	// EPOLL_CTL_DEL ignores the event argument; Linux requires a non-nil
	// pointer on kernels older than 2.6.9 only, but we pass one anyway for
	// defensive portability.
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (p *epollBackend) wait(out []event, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	max := len(out)
	if max > len(p.eventBuf) {
		max = len(p.eventBuf)
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:max], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		out[i] = event{
			userData: unpackUserData(&p.eventBuf[i]),
			events:   epollToEvents(p.eventBuf[i].Events),
			// fd is best-effort on epoll: not populated unless the
			// caller packed it into userData itself (spec.md §3).
			fd: 0,
		}
	}
	return n, nil
}

func (p *epollBackend) close() error {
	p.closed.Store(true)
	return unix.Close(p.epfd)
}

// packUserData/unpackUserData store a full uintptr tag in epoll_event's
// 8-byte data union (exposed by golang.org/x/sys/unix as the Fd/Pad int32
// pair), so the tag handed to add/mod comes back unchanged from wait.
func packUserData(ev *unix.EpollEvent, userData uintptr) {
	ev.Fd = int32(uint32(userData))
	ev.Pad = int32(uint32(uint64(userData) >> 32))
}

func unpackUserData(ev *unix.EpollEvent) uintptr {
	return uintptr(uint32(ev.Fd)) | uintptr(uint32(ev.Pad))<<32
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	if events&EventEdgeTriggered != 0 {
		e |= unix.EPOLLET
	}
	// HUP/RDHUP/ERROR are delivery-only: the kernel reports them
	// regardless of whether they're requested, so no bits are set for
	// them here (spec.md §4.1).
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	if e&unix.EPOLLRDHUP != 0 {
		events |= EventRDHup
	}
	return events
}
