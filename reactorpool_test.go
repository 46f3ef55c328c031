package reactor

import "testing"

func TestReactorPoolRoundRobin(t *testing.T) {
	stats := &serverStats{}
	queue := newTaskQueue(8, nil)
	pool, err := newReactorPool(3, queue, stats)
	if err != nil {
		t.Fatalf("newReactorPool: %v", err)
	}
	defer pool.closeAll()

	var picks []*reactorThread
	for i := 0; i < 6; i++ {
		picks = append(picks, pool.pick())
	}

	for i := 0; i < 6; i++ {
		want := pool.reactors[i%3]
		if picks[i] != want {
			t.Fatalf("pick %d = reactor %p, want %p (round-robin broken)", i, picks[i], want)
		}
	}
}

func TestReactorPoolEachReactorRegisteredOnce(t *testing.T) {
	seen := map[*reactorThread]bool{}
	stats := &serverStats{}
	queue := newTaskQueue(8, nil)
	pool, err := newReactorPool(4, queue, stats)
	if err != nil {
		t.Fatalf("newReactorPool: %v", err)
	}
	defer pool.closeAll()

	for _, r := range pool.reactors {
		if seen[r] {
			t.Fatalf("reactor %p appears more than once in the pool", r)
		}
		seen[r] = true
	}
	if len(seen) != 4 {
		t.Fatalf("pool has %d distinct reactors, want 4", len(seen))
	}
}
