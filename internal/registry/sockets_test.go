package registry_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/tunnelmesh/relay/internal/registry"
)

type fakeSocket struct {
	open atomic.Bool
	sent [][]byte
}

func newFakeSocket() *fakeSocket {
	s := &fakeSocket{}
	s.open.Store(true)
	return s
}

func (s *fakeSocket) IsOpen() bool { return s.open.Load() }

func (s *fakeSocket) Send(frame []byte) error {
	if !s.IsOpen() {
		return errors.New("closed")
	}
	s.sent = append(s.sent, frame)
	return nil
}

func TestSockets_InsertGetRemove(t *testing.T) {
	sockets := registry.NewSockets()

	if _, ok := sockets.Get("t1"); ok {
		t.Fatalf("expected no socket before Insert")
	}

	sock := newFakeSocket()
	sockets.Insert("t1", sock)
	got, ok := sockets.Get("t1")
	if !ok || got != registry.Socket(sock) {
		t.Fatalf("expected inserted socket back")
	}
	if sockets.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", sockets.Len())
	}

	sockets.Remove("t1", sock)
	if _, ok := sockets.Get("t1"); ok {
		t.Fatalf("expected socket removed")
	}
	if sockets.Len() != 0 {
		t.Fatalf("expected Len 0, got %d", sockets.Len())
	}
}

func TestSockets_RemoveIgnoresStaleSocket(t *testing.T) {
	sockets := registry.NewSockets()

	first := newFakeSocket()
	sockets.Insert("t1", first)

	second := newFakeSocket()
	sockets.Insert("t1", second)

	// A late close of the stale first connection must not clobber the
	// newer one that reconnected to this same instance.
	sockets.Remove("t1", first)

	got, ok := sockets.Get("t1")
	if !ok || got != registry.Socket(second) {
		t.Fatalf("expected second socket to remain, got ok=%v", ok)
	}
}

func TestSockets_GetIgnoresClosedSocket(t *testing.T) {
	sockets := registry.NewSockets()

	sock := newFakeSocket()
	sockets.Insert("t1", sock)
	sock.open.Store(false)

	if _, ok := sockets.Get("t1"); ok {
		t.Fatalf("expected Get to treat a closed transport as absent")
	}
}
