package reactor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func startTestServer(t *testing.T, opts ...ServerOption) (*Server, string, func()) {
	t.Helper()
	base := []ServerOption{
		WithPort(0),
		WithIOThreads(2),
		WithWorkerThreads(4),
		WithLogger(NoOpLogger{}),
	}
	srv, err := NewServer(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	// The listener is bound synchronously inside NewServer/newAcceptor, so
	// srv.acceptor.ln.Addr() is already valid once NewServer returns.
	addr := srv.acceptor.ln.Addr().String()

	cleanup := func() {
		cancel()
		select {
		case <-runDone:
		case <-time.After(3 * time.Second):
			t.Fatalf("server did not shut down in time")
		}
	}
	return srv, addr, cleanup
}

// TestEndToEndEcho is S1: a single client round-trips a request and
// receives the literal echo wire format.
func TestEndToEndEcho(t *testing.T) {
	_, addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200 OK") {
		t.Fatalf("status line = %q", status)
	}

	var body strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if line == "\r\n" {
			break
		}
	}
	buf := make([]byte, 64)
	n, _ := reader.Read(buf)
	body.Write(buf[:n])
	if !strings.Contains(body.String(), "Echo: ping") {
		t.Fatalf("body = %q, want to contain %q", body.String(), "Echo: ping")
	}
}

// TestConcurrentClientsLoad is a smaller-constant variant of S3: many
// clients each send many requests concurrently and all must see a
// well-formed response.
func TestConcurrentClientsLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency load test in -short mode")
	}

	_, addr, cleanup := startTestServer(t)
	defer cleanup()

	const clients = 10
	const requestsPerClient = 20

	var wg sync.WaitGroup
	errCh := make(chan error, clients)
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errCh <- fmt.Errorf("client %d dial: %w", id, err)
				return
			}
			defer conn.Close()
			reader := bufio.NewReader(conn)

			for i := 0; i < requestsPerClient; i++ {
				msg := fmt.Sprintf("c%d-r%d", id, i)
				if _, err := conn.Write([]byte(msg)); err != nil {
					errCh <- fmt.Errorf("client %d write %d: %w", id, i, err)
					return
				}
				conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				status, err := reader.ReadString('\n')
				if err != nil {
					errCh <- fmt.Errorf("client %d read %d: %w", id, i, err)
					return
				}
				if !strings.HasPrefix(status, "HTTP/1.1 200 OK") {
					errCh <- fmt.Errorf("client %d response %d malformed: %q", id, i, status)
					return
				}
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						errCh <- fmt.Errorf("client %d header read %d: %w", id, i, err)
						return
					}
					if line == "\r\n" {
						break
					}
				}
				buf := make([]byte, 64)
				if _, err := reader.Read(buf); err != nil {
					errCh <- fmt.Errorf("client %d body read %d: %w", id, i, err)
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

// TestShutdownUnderLoad is a smaller-constant variant of S4: Shutdown is
// requested while requests are in flight and the server must still return
// cleanly from Run.
func TestShutdownUnderLoad(t *testing.T) {
	srv, err := NewServer(
		WithPort(0),
		WithIOThreads(2),
		WithWorkerThreads(4),
		WithLogger(NoOpLogger{}),
	)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	addr := srv.acceptor.ln.Addr().String()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return
			}
			defer conn.Close()
			_, _ = conn.Write([]byte(fmt.Sprintf("load-%d", id)))
			buf := make([]byte, 256)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _ = conn.Read(buf)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after shutdown under load")
	}
	wg.Wait()
}

func TestTaskQueueBackpressureObservedByServer(t *testing.T) {
	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once

	handler := HandlerFunc(func(conn *Conn, input []byte) ([]byte, error) {
		once.Do(started.Done)
		<-block
		return []byte("ok"), nil
	})

	srv, err := NewServer(
		WithPort(0),
		WithIOThreads(1),
		WithWorkerThreads(1),
		WithQueueSize(1),
		WithHandler(handler),
		WithLogger(NoOpLogger{}),
	)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()
	defer func() {
		close(block)
		cancel()
		<-runDone
	}()

	addr := srv.acceptor.ln.Addr().String()

	var conns []net.Conn
	for i := 0; i < 4; i++ {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		defer c.Close()
		conns = append(conns, c)
		if _, err := c.Write([]byte("x")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	started.Wait()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if got := srv.Stats().QueueFullStalls; got > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("QueueFullStalls never incremented despite a single blocked worker and a size-1 queue under 4 concurrent writers")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
