package registry

import (
	"errors"
	"sync"
	"time"
)

// Result is what a pending entry eventually resolves to: either a payload
// (an httpResponse's HTTPResponseData, a HealthStatusReport, or a pong's
// localServiceStatus string) or an error
// (a timeout, most commonly).
type Result struct {
	Payload any
	Err     error
}

var ErrTimeout = errors.New("pending request timed out")
var ErrDuplicateJobID = errors.New("duplicate pending job id")

type forwardedEntry struct {
	ch    chan Result
	timer *time.Timer
	once  sync.Once
}

// PendingForwarded is the Pending-Forwarded Registry (C3): an in-process
// map from jobId to a resolver awaiting a response from a peer instance,
// used both for HTTP forwarding and forwarded health checks. A jobId
// resolves exactly once, by the timer or by Resolve/Reject, whichever
// fires first.
type PendingForwarded struct {
	mu      sync.Mutex
	entries map[string]*forwardedEntry
}

func NewPendingForwarded() *PendingForwarded {
	return &PendingForwarded{entries: make(map[string]*forwardedEntry)}
}

// Add registers jobID with a bound, returning a channel that receives
// exactly one Result. timeout starts counting immediately; on fire the
// entry is rejected with ErrTimeout and removed.
func (p *PendingForwarded) Add(jobID string, timeout time.Duration) (<-chan Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[jobID]; exists {
		return nil, ErrDuplicateJobID
	}

	e := &forwardedEntry{ch: make(chan Result, 1)}
	e.timer = time.AfterFunc(timeout, func() {
		p.settle(jobID, e, Result{Err: ErrTimeout})
	})
	p.entries[jobID] = e
	return e.ch, nil
}

// Resolve delivers payload to jobID's waiter. Returns false if jobID is
// unknown or was already resolved/rejected/timed out.
func (p *PendingForwarded) Resolve(jobID string, payload any) bool {
	return p.finish(jobID, Result{Payload: payload})
}

// Reject delivers err to jobID's waiter. Returns false if jobID is unknown
// or was already resolved/rejected/timed out.
func (p *PendingForwarded) Reject(jobID string, err error) bool {
	return p.finish(jobID, Result{Err: err})
}

func (p *PendingForwarded) finish(jobID string, res Result) bool {
	p.mu.Lock()
	e, ok := p.entries[jobID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return p.settle(jobID, e, res)
}

func (p *PendingForwarded) settle(jobID string, e *forwardedEntry, res Result) bool {
	settled := false
	e.once.Do(func() {
		settled = true
		e.timer.Stop()
		e.ch <- res
		p.mu.Lock()
		delete(p.entries, jobID)
		p.mu.Unlock()
	})
	return settled
}

// Len reports the number of in-flight entries, used by stats.
func (p *PendingForwarded) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
