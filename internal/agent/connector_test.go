package agent

import (
	"testing"
	"time"
)

func TestReconnectBackoff_CapsAt30Seconds(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		d := reconnectBackoff(attempt)
		if d < 0 {
			t.Fatalf("attempt %d: negative backoff %v", attempt, d)
		}
		// 30s base + up to 20% jitter.
		if d > 36*time.Second {
			t.Fatalf("attempt %d: backoff %v exceeds capped bound", attempt, d)
		}
	}
}

func TestReconnectBackoff_GrowsWithAttempt(t *testing.T) {
	// Jitter makes individual draws noisy, so compare against the
	// un-jittered floor: attempt 4 (min(30,16)) must be able to exceed
	// attempt 1 (min(30,2))'s jittered ceiling.
	small := reconnectBackoff(1)
	if small > 3*time.Second {
		t.Fatalf("attempt 1 backoff too large: %v", small)
	}
	large := reconnectBackoff(4)
	if large <= small {
		t.Fatalf("attempt 4 backoff %v not larger than attempt 1 backoff %v", large, small)
	}
}

func TestConnector_BuildURL(t *testing.T) {
	c := NewConnector(Options{RelayURL: "ws://relay.example.com", APIKey: "secret"})

	url, err := c.buildURL("")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if url != "ws://relay.example.com/tunnel/connect?apiKey=secret" {
		t.Fatalf("unexpected register URL: %q", url)
	}

	url, err = c.buildURL("tunnel-1")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if url != "ws://relay.example.com/tunnel/connect/tunnel-1?apiKey=secret" {
		t.Fatalf("unexpected reconnect URL: %q", url)
	}
}

func TestConnector_StateTransitions(t *testing.T) {
	c := NewConnector(Options{RelayURL: "ws://relay.example.com", APIKey: "secret"})
	if c.State() != StateIdle {
		t.Fatalf("expected initial state idle, got %v", c.State())
	}

	c.setState(StateOpen)
	if c.State() != StateOpen {
		t.Fatalf("expected state open, got %v", c.State())
	}
}
