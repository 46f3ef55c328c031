package reactor

// backend is the portable readiness API over epoll (Linux) / kqueue
// (Darwin) that spec.md §4.1 specifies. A backend is not thread-safe for
// mutating operations (Add/Mod/Del) relative to Wait: the reactor that owns
// a backend serializes its own mutations by construction — it is the only
// goroutine that ever calls into this backend (see reactor.go).
type backend interface {
	// add registers fd for the given mask, tagging events for it with
	// userData. add overwrites any prior registration for fd.
	add(fd int, mask IOEvents, userData uintptr) error

	// mod updates the mask registered for fd. On kqueue this is
	// implemented as add on the underlying filter set, since kqueue adds
	// per-filter rather than per-fd (spec.md §4.1).
	mod(fd int, mask IOEvents, userData uintptr) error

	// del deregisters fd. On kqueue this removes both the READ and WRITE
	// filters; absent filters are benign.
	del(fd int) error

	// wait fills out with up to len(out) ready events, blocking up to
	// timeoutMs (negative meaning block indefinitely). It returns the
	// number of events filled. A return of 0 with a nil error is a
	// permitted spurious wakeup.
	wait(out []event, timeoutMs int) (int, error)

	// close releases the backend's kernel resources. Safe to call once;
	// further operations return ErrPollerClosed.
	close() error
}

// maxBackendEvents bounds the size of the scratch array passed to wait in
// one syscall. A reactor drains readiness in a loop, so this only bounds
// per-wait-call batch size, not total throughput.
const maxBackendEvents = 256
