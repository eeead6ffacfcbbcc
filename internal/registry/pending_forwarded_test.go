package registry_test

import (
	"testing"
	"time"

	"github.com/tunnelmesh/relay/internal/registry"
)

func TestPendingForwarded_ResolveDeliversPayload(t *testing.T) {
	p := registry.NewPendingForwarded()

	ch, err := p.Add("job-1", time.Second)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !p.Resolve("job-1", "ok") {
		t.Fatalf("expected Resolve to succeed")
	}

	res := <-ch
	if res.Err != nil || res.Payload != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if p.Len() != 0 {
		t.Fatalf("expected entry removed after settlement, Len=%d", p.Len())
	}
}

func TestPendingForwarded_DuplicateJobIDRejected(t *testing.T) {
	p := registry.NewPendingForwarded()

	if _, err := p.Add("job-1", time.Second); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := p.Add("job-1", time.Second); err != registry.ErrDuplicateJobID {
		t.Fatalf("expected ErrDuplicateJobID, got %v", err)
	}
}

func TestPendingForwarded_TimeoutFires(t *testing.T) {
	p := registry.NewPendingForwarded()

	ch, err := p.Add("job-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	res := <-ch
	if res.Err != registry.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", res.Err)
	}
}

func TestPendingForwarded_AtMostOnceResolution(t *testing.T) {
	p := registry.NewPendingForwarded()

	if _, err := p.Add("job-1", time.Second); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !p.Resolve("job-1", "first") {
		t.Fatalf("expected first Resolve to succeed")
	}
	if p.Resolve("job-1", "second") {
		t.Fatalf("expected second Resolve to fail (already settled)")
	}
	if p.Reject("job-1", registry.ErrTimeout) {
		t.Fatalf("expected Reject on settled entry to fail")
	}
}

func TestPendingForwarded_ResolveUnknownJobID(t *testing.T) {
	p := registry.NewPendingForwarded()
	if p.Resolve("nope", "x") {
		t.Fatalf("expected Resolve on unknown jobID to report false")
	}
}
