package relay

import "sync/atomic"

// stats holds plain counters for in-process observability. No metrics
// endpoint is exposed (SPEC_FULL §12: Non-goal territory, no external
// metrics library is wired for this domain) — these back tests and
// internal diagnostics only.
type stats struct {
	activeTunnels      atomic.Int64
	forwardedRequests  atomic.Int64
	forwardTimeouts    atomic.Int64
	localRequests      atomic.Int64
	localTimeouts      atomic.Int64
}

func (s *stats) snapshot() map[string]int64 {
	return map[string]int64{
		"active_tunnels":     s.activeTunnels.Load(),
		"forwarded_requests": s.forwardedRequests.Load(),
		"forward_timeouts":   s.forwardTimeouts.Load(),
		"local_requests":     s.localRequests.Load(),
		"local_timeouts":     s.localTimeouts.Load(),
	}
}
