package reactor

// msgKind distinguishes the two worker→reactor message shapes (spec.md
// §3).
type msgKind int

const (
	msgResponseReady msgKind = iota
	msgClose
)

// reactorMessage is a worker-to-reactor instruction: (kind, connection).
// Creating one acquires the connection; consuming one releases it. It is
// an intrusive linked-list node rather than a channel payload because the
// reactor's message list must be detachable as a whole and processed
// outside its own mutex (spec.md §4.5) — a property a plain channel does
// not offer.
type reactorMessage struct {
	kind msgKind
	conn *connection
	next *reactorMessage
}

// newReactorMessage acquires conn and returns a message wrapping it.
func newReactorMessage(kind msgKind, conn *connection) (*reactorMessage, error) {
	if err := conn.acquire(); err != nil {
		return nil, err
	}
	return &reactorMessage{kind: kind, conn: conn}, nil
}

// release drops the message's reference on its connection.
func (m *reactorMessage) release() {
	m.conn.release()
}
