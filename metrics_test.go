package reactor

import "testing"

func TestServerStatsSnapshotIsCopy(t *testing.T) {
	var s serverStats
	s.connectionsAccepted.Add(5)
	s.bytesRead.Add(100)

	snap := s.snapshot()
	if snap.ConnectionsAccepted != 5 {
		t.Fatalf("ConnectionsAccepted = %d, want 5", snap.ConnectionsAccepted)
	}
	if snap.BytesRead != 100 {
		t.Fatalf("BytesRead = %d, want 100", snap.BytesRead)
	}

	s.connectionsAccepted.Add(1)
	if snap.ConnectionsAccepted != 5 {
		t.Fatalf("snapshot mutated after subsequent counter update: got %d, want 5", snap.ConnectionsAccepted)
	}
}
