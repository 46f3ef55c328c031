package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolDispatchesProcessTasks(t *testing.T) {
	queue := newTaskQueue(8, nil)
	stats := &serverStats{}

	var calls atomic.Int32
	handler := HandlerFunc(func(conn *Conn, input []byte) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})

	pool := newWorkerPool(2, queue, handler, stats)
	stopCh := make(chan struct{})
	var closeOnce sync.Once
	for i := 0; i < 2; i++ {
		go func(id int) {
			pool.loop(id)
			closeOnce.Do(func() { close(stopCh) })
		}(i)
	}

	c := newConnection(-1, &net.TCPAddr{}, 16, 16)
	tk, err := newTask(taskProcess, c, []byte("payload"))
	if err != nil {
		t.Fatalf("newTask: %v", err)
	}
	if err := queue.push(tk); err != nil {
		t.Fatalf("push: %v", err)
	}

	deadline := time.After(time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("handler never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	queue.Shutdown()
}

func TestWorkerPoolSkipsInvalidConnection(t *testing.T) {
	queue := newTaskQueue(8, nil)
	stats := &serverStats{}

	var calls atomic.Int32
	handler := HandlerFunc(func(conn *Conn, input []byte) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})
	pool := newWorkerPool(1, queue, handler, stats)

	c := newConnection(-1, &net.TCPAddr{}, 16, 16)
	tk, err := newTask(taskProcess, c, []byte("payload"))
	if err != nil {
		t.Fatalf("newTask: %v", err)
	}
	c.markClosing() // invalidate before the worker dequeues it

	pool.dispatch(tk)

	if calls.Load() != 0 {
		t.Fatalf("handler invoked for an already-closing connection")
	}
}

func TestWorkerPoolHandlerErrorClosesConnection(t *testing.T) {
	queue := newTaskQueue(8, nil)
	stats := &serverStats{}
	handler := HandlerFunc(func(conn *Conn, input []byte) ([]byte, error) {
		return nil, ErrBufferFull
	})
	pool := newWorkerPool(1, queue, handler, stats)

	c := newConnection(-1, &net.TCPAddr{}, 16, 16)
	r, q, _ := newTestReactorForWorker(t)
	_ = q
	c.owningReactor = r

	tk, err := newTask(taskProcess, c, []byte("payload"))
	if err != nil {
		t.Fatalf("newTask: %v", err)
	}
	pool.dispatch(tk)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !c.isValid() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection still valid after handler returned an error")
}

func newTestReactorForWorker(t *testing.T) (*reactorThread, *taskQueue, *serverStats) {
	t.Helper()
	stats := &serverStats{}
	queue := newTaskQueue(16, nil)
	r, err := newReactorThread(99, queue, stats)
	if err != nil {
		t.Fatalf("newReactorThread: %v", err)
	}
	go r.run()
	t.Cleanup(r.Shutdown)
	return r, queue, stats
}
