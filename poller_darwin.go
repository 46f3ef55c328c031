//go:build darwin

package reactor

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// kqueueBackend implements backend using kqueue. Per spec.md §4.1:
// READ→EVFILT_READ, WRITE→EVFILT_WRITE, both honoring ET via EV_CLEAR;
// EV_EOF surfaces as Hangup, EV_ERROR surfaces as Error. del removes both
// filters; absent filters are benign. mod behaves as add on the
// underlying filter set, since kqueue adds per-filter rather than per-fd.
type kqueueBackend struct {
	kq       int
	closed   atomic.Bool
	eventBuf [maxBackendEvents]unix.Kevent_t
}

func newBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{kq: kq}, nil
}

// add replaces any prior registration for fd, exactly as mod does.
func (p *kqueueBackend) add(fd int, mask IOEvents, userData uintptr) error {
	return p.mod(fd, mask, userData)
}

// mod re-registers the full mask with EV_ADD; kqueue has no notion of
// "replace the mask for fd" the way epoll does, so spec.md §4.1 requires
// mod to behave as add per filter. We first delete both filters
// unconditionally (benign if absent) then add the requested ones, so a
// mod that drops a previously-armed filter (e.g. WRITE→READ) actually
// stops delivering the dropped one.
func (p *kqueueBackend) mod(fd int, mask IOEvents, userData uintptr) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	_ = p.rawApply(fd, EventRead|EventWrite, 0, unix.EV_DELETE)
	return p.apply(fd, mask, userData, unix.EV_ADD|unix.EV_ENABLE)
}

func (p *kqueueBackend) del(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return p.rawApply(fd, EventRead|EventWrite, 0, unix.EV_DELETE)
}

func (p *kqueueBackend) apply(fd int, mask IOEvents, userData uintptr, flags uint16) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return p.rawApply(fd, mask, userData, flags)
}

func (p *kqueueBackend) rawApply(fd int, mask IOEvents, userData uintptr, flags uint16) error {
	kevents := eventsToKevents(fd, mask, flags, userData)
	if len(kevents) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, kevents, nil, nil)
	if err != nil && flags == unix.EV_DELETE {
		// Deleting an absent filter is benign (spec.md §4.1).
		return nil
	}
	return err
}

func (p *kqueueBackend) wait(out []event, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	max := len(out)
	if max > len(p.eventBuf) {
		max = len(p.eventBuf)
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:max], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		kev := &p.eventBuf[i]
		out[i] = event{
			userData: uintptr(unsafe.Pointer(kev.Udata)),
			events:   keventToEvents(kev),
			fd:       int(kev.Ident),
		}
	}
	return n, nil
}

func (p *kqueueBackend) close() error {
	p.closed.Store(true)
	return unix.Close(p.kq)
}

func eventsToKevents(fd int, mask IOEvents, flags uint16, userData uintptr) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	clear := uint16(0)
	if mask&EventEdgeTriggered != 0 && flags != unix.EV_DELETE {
		clear = unix.EV_CLEAR
	}
	udata := (*byte)(unsafe.Pointer(userData))

	if mask&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags | clear,
			Udata:  udata,
		})
	}
	if mask&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags | clear,
			Udata:  udata,
		})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
