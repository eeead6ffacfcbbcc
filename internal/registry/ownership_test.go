package registry_test

import (
	"testing"

	"github.com/tunnelmesh/relay/internal/registry"
)

func TestOwnership_SetAndGet(t *testing.T) {
	o := registry.NewOwnership()
	if _, ok := o.Get("t1"); ok {
		t.Fatalf("expected no owner before Set")
	}

	o.Set("t1", "instance-a")
	got, ok := o.Get("t1")
	if !ok || got != "instance-a" {
		t.Fatalf("expected instance-a, got %q (ok=%v)", got, ok)
	}

	o.Set("t1", "instance-b")
	got, ok = o.Get("t1")
	if !ok || got != "instance-b" {
		t.Fatalf("expected overwrite to instance-b, got %q (ok=%v)", got, ok)
	}
}

func TestOwnership_RemoveStaleDisconnectGuard(t *testing.T) {
	o := registry.NewOwnership()
	o.Set("t1", "instance-a")

	// Agent reconnected to instance-b before instance-a's disconnect event
	// arrives.
	o.Set("t1", "instance-b")

	// A late disconnect from instance-a must not clobber instance-b's claim.
	o.Remove("t1", "instance-a")

	got, ok := o.Get("t1")
	if !ok || got != "instance-b" {
		t.Fatalf("stale disconnect erased current owner: got %q (ok=%v)", got, ok)
	}

	o.Remove("t1", "instance-b")
	if _, ok := o.Get("t1"); ok {
		t.Fatalf("expected entry removed once reportedBy matches current owner")
	}
}
