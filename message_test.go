package reactor

import (
	"net"
	"testing"
)

func TestReactorMessageAcquiresAndReleases(t *testing.T) {
	c := newConnection(-1, &net.TCPAddr{}, 16, 16)

	msg, err := newReactorMessage(msgResponseReady, c)
	if err != nil {
		t.Fatalf("newReactorMessage: %v", err)
	}
	if got := c.refCountSnapshot(); got != 2 {
		t.Fatalf("refCount after message creation = %d, want 2", got)
	}

	msg.release()
	if got := c.refCountSnapshot(); got != 1 {
		t.Fatalf("refCount after message release = %d, want 1", got)
	}
}

func TestReactorMessageFailsOnReleasedConnection(t *testing.T) {
	c := newConnection(-1, &net.TCPAddr{}, 16, 16)
	c.release()

	if _, err := newReactorMessage(msgClose, c); err != ErrAcquireAfterRelease {
		t.Fatalf("newReactorMessage on released connection = %v, want ErrAcquireAfterRelease", err)
	}
}
