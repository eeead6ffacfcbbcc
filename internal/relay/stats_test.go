package relay

import "testing"

func TestStats_SnapshotReflectsCounters(t *testing.T) {
	var s stats
	s.activeTunnels.Add(2)
	s.forwardedRequests.Add(3)
	s.forwardTimeouts.Add(1)
	s.localRequests.Add(5)
	s.localTimeouts.Add(4)

	got := s.snapshot()
	want := map[string]int64{
		"active_tunnels":     2,
		"forwarded_requests": 3,
		"forward_timeouts":   1,
		"local_requests":     5,
		"local_timeouts":     4,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("snapshot()[%q] = %d, want %d", k, got[k], v)
		}
	}
}
