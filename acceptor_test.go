package reactor

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestAcceptorHandsOffDistinctFDsToDistinctReactors(t *testing.T) {
	stats := &serverStats{}
	queue := newTaskQueue(32, nil)
	pool, err := newReactorPool(2, queue, stats)
	if err != nil {
		t.Fatalf("newReactorPool: %v", err)
	}
	for _, r := range pool.reactors {
		go r.run()
	}
	defer pool.shutdown()

	acc, err := newAcceptor(0, pool, stats, 4096, 4096)
	if err != nil {
		t.Fatalf("newAcceptor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- acc.run(ctx) }()

	addr := acc.ln.Addr().String()
	const conns = 6
	var clients []net.Conn
	for i := 0; i < conns; i++ {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		clients = append(clients, c)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stats.connectionsAccepted.Load() >= conns {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := stats.connectionsAccepted.Load(); got < conns {
		t.Fatalf("connectionsAccepted = %d, want >= %d", got, conns)
	}

	seenFD := map[int32]bool{}
	for i, r := range pool.reactors {
		r.connsMu.Lock()
		for fd := range r.connsByFD {
			if seenFD[fd] {
				t.Errorf("fd %d registered with more than one reactor", fd)
			}
			seenFD[fd] = true
		}
		registered := len(r.connsByFD)
		r.connsMu.Unlock()
		if registered != conns/len(pool.reactors) {
			t.Errorf("reactor %d has %d connections, want %d", i, registered, conns/len(pool.reactors))
		}
	}

	for _, c := range clients {
		_ = c.Close()
	}
	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("acceptor.run did not return after ctx cancellation")
	}
}

func TestAcceptorShutdownUnblocksRun(t *testing.T) {
	stats := &serverStats{}
	queue := newTaskQueue(8, nil)
	pool, err := newReactorPool(1, queue, stats)
	if err != nil {
		t.Fatalf("newReactorPool: %v", err)
	}
	go pool.reactors[0].run()
	defer pool.shutdown()

	acc, err := newAcceptor(0, pool, stats, 4096, 4096)
	if err != nil {
		t.Fatalf("newAcceptor: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- acc.run(context.Background()) }()

	if err := acc.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("acceptor.run did not return after Shutdown")
	}
}
