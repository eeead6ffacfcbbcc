package registry

import (
	"sync"
	"time"
)

// ForwardedResolver is notified when a forwarded PendingAgent entry
// resolves or is rejected/times out. The relay package implements it once
// per registry: for HTTP by publishing an httpResponse broadcast back to
// originInstanceID, for health checks by publishing a
// forwardHealthCheckResponse broadcast.
type ForwardedResolver interface {
	ResolveForwarded(originJobID, originInstanceID string, meta any, res Result)
}

type agentEntry struct {
	forwarded bool

	// local variant
	ch chan Result

	// forwarded variant
	originJobID      string
	originInstanceID string
	meta             any

	timer *time.Timer
	once  sync.Once
}

// PendingAgent is the Pending-Agent Registry (C5): an in-process map from
// agentReqId to a resolver awaiting an httpResponse from the local agent.
// A "local" entry is awaited directly by this instance's HTTP handler; a
// "forwarded" entry was created to service a peer instance's request and
// resolves by notifying resolver instead.
type PendingAgent struct {
	resolver ForwardedResolver

	mu      sync.Mutex
	entries map[string]*agentEntry
}

func NewPendingAgent(resolver ForwardedResolver) *PendingAgent {
	return &PendingAgent{resolver: resolver, entries: make(map[string]*agentEntry)}
}

// AddLocal registers agentReqID for a response awaited directly by this
// instance, returning a channel that receives exactly one Result.
func (p *PendingAgent) AddLocal(agentReqID string, timeout time.Duration) (<-chan Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[agentReqID]; exists {
		return nil, ErrDuplicateJobID
	}
	e := &agentEntry{ch: make(chan Result, 1)}
	e.timer = time.AfterFunc(timeout, func() {
		p.settle(agentReqID, e, Result{Err: ErrTimeout})
	})
	p.entries[agentReqID] = e
	return e.ch, nil
}

// AddForwarded registers agentReqID for a response that, once it arrives,
// must be relayed back to originInstanceID tagged with originJobID. meta is
// opaque to PendingAgent and is handed back to the ForwardedResolver
// unchanged — it lets a caller (e.g. the health-probe endpoint) carry
// context a bare Result can't, such as the tunnelID being pinged.
func (p *PendingAgent) AddForwarded(agentReqID, originJobID, originInstanceID string, timeout time.Duration, meta any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[agentReqID]; exists {
		return ErrDuplicateJobID
	}
	e := &agentEntry{
		forwarded:        true,
		originJobID:      originJobID,
		originInstanceID: originInstanceID,
		meta:             meta,
	}
	e.timer = time.AfterFunc(timeout, func() {
		p.settle(agentReqID, e, Result{Err: ErrTimeout})
	})
	p.entries[agentReqID] = e
	return nil
}

// Resolve dispatches an httpResponse received from the local agent for
// agentReqID: for a local entry it delivers payload to the waiting
// channel; for a forwarded entry it notifies the ForwardedResolver. Returns
// false if agentReqID is unknown or already settled — an entry resolves
// at most once.
func (p *PendingAgent) Resolve(agentReqID string, payload any) bool {
	return p.finish(agentReqID, Result{Payload: payload})
}

func (p *PendingAgent) Reject(agentReqID string, err error) bool {
	return p.finish(agentReqID, Result{Err: err})
}

func (p *PendingAgent) finish(agentReqID string, res Result) bool {
	p.mu.Lock()
	e, ok := p.entries[agentReqID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return p.settle(agentReqID, e, res)
}

func (p *PendingAgent) settle(agentReqID string, e *agentEntry, res Result) bool {
	settled := false
	e.once.Do(func() {
		settled = true
		e.timer.Stop()
		p.mu.Lock()
		delete(p.entries, agentReqID)
		p.mu.Unlock()

		if e.forwarded {
			if p.resolver != nil {
				p.resolver.ResolveForwarded(e.originJobID, e.originInstanceID, e.meta, res)
			}
			return
		}
		e.ch <- res
	})
	return settled
}

// Len reports the number of in-flight entries, used by stats.
func (p *PendingAgent) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
