package reactor

import (
	"fmt"
)

// Handler is the application hook (C8). It is invoked by a worker with a
// connection and the bytes most recently read from it, and returns the
// bytes to write back. Handle must not touch the connection's kernel
// readiness registration directly (I5) — the caller (workerPool) takes
// care of arming the connection for writing via the owning reactor's
// message channel.
//
// Handle is responsible for serializing at most one outstanding response
// per connection (spec.md §5). The reactor enqueues a PROCESS task for
// every drained read cycle without checking whether a response is still
// pending for that connection, and with more than one worker two tasks for
// the same connection may be handled concurrently; a newly staged response
// overwrites the connection's write buffer.
type Handler interface {
	Handle(conn *Conn, input []byte) (output []byte, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn *Conn, input []byte) ([]byte, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(conn *Conn, input []byte) ([]byte, error) {
	return f(conn, input)
}

// EchoHandler is the reference application hook from spec.md §6: it
// responds to any byte sequence X with a fixed HTTP/1.1 response whose
// body is "Echo: X". If the formatted response would exceed the
// connection's write buffer capacity, it truncates the body — a
// production application layer would replace this with a chunked writer
// (spec.md §4.8).
type EchoHandler struct{}

// Handle implements Handler.
func (EchoHandler) Handle(conn *Conn, input []byte) ([]byte, error) {
	body := fmt.Sprintf("Echo: %s", input)
	resp := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s",
		len(body), body,
	)

	limit := conn.writeBufCap()
	if len(resp) > limit {
		// Truncate the body, preserving the header's declared
		// Content-Length against the truncated total is impossible
		// without reformatting; per spec.md §4.8 this is an
		// implementation choice, and the reference implementation
		// simply truncates the serialized response.
		resp = resp[:limit]
	}
	return []byte(resp), nil
}
