package bus_test

import (
	"context"
	"testing"

	"github.com/tunnelmesh/relay/internal/bus"
)

func TestMemoryBus_PublishAndSubscribeAreNoOps(t *testing.T) {
	b := bus.NewMemory()
	ctx := context.Background()

	called := false
	unsub, err := b.Subscribe(ctx, bus.ChannelActivity, func(bus.Envelope) { called = true })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(ctx, bus.NewActivityEnvelope("instance-a", "t1", bus.ActivityConnected)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if called {
		t.Fatalf("single-instance bus must not deliver to local subscribers")
	}

	unsub()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTargetsInstance(t *testing.T) {
	broadcast := bus.NewActivityEnvelope("instance-a", "t1", bus.ActivityConnected)
	if !bus.TargetsInstance(broadcast, "instance-b") {
		t.Fatalf("expected untargeted envelope to target every instance")
	}

	targeted := bus.NewHTTPRequestEnvelope("instance-a", "instance-b", "t1", "job-1", bus.HTTPRequestData{})
	if !bus.TargetsInstance(targeted, "instance-b") {
		t.Fatalf("expected matching instance to be targeted")
	}
	if bus.TargetsInstance(targeted, "instance-c") {
		t.Fatalf("expected non-matching instance to not be targeted")
	}
}
