package reactor

// IOEvents is a bit-set over the readiness vocabulary shared by both
// backends: {READ, WRITE, ERROR, HUP, RDHUP, ET}. ET requests
// edge-triggered delivery; ERROR/HUP/RDHUP are delivery-only — requesting
// them in a Add/Mod mask is a no-op (see eventsToEpoll/eventsToKevents).
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	// Delivery-only: requesting it has no effect on registration.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	// Delivery-only.
	EventHangup
	// EventRDHup indicates the peer closed its write half (half-close).
	// Delivery-only; epoll-native, emulated as Hangup on kqueue.
	EventRDHup
	// EventEdgeTriggered requests edge-triggered delivery where the
	// backend supports it natively (both epoll and kqueue here do).
	EventEdgeTriggered
)

// String renders a human-readable form for logging, e.g. "READ|ET".
func (e IOEvents) String() string {
	if e == 0 {
		return "NONE"
	}
	var s string
	add := func(bit IOEvents, name string) {
		if e&bit != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(EventRead, "READ")
	add(EventWrite, "WRITE")
	add(EventError, "ERROR")
	add(EventHangup, "HUP")
	add(EventRDHup, "RDHUP")
	add(EventEdgeTriggered, "ET")
	return s
}

// event is the portable readiness record spec.md §3 describes:
// (user_data, event_mask, fd). userData is an opaque owner-supplied tag —
// in this implementation, a connection's fd as uintptr (resolved through
// reactorThread.connsByFD), or one of the two wakeup-channel sentinels a
// reactorThread registers for itself. fd is
// best-effort: the epoll backend does not populate it on every event
// (callers key off userData instead).
type event struct {
	userData uintptr
	events   IOEvents
	fd       int
}
