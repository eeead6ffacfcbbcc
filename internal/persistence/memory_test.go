package persistence_test

import (
	"context"
	"testing"

	"github.com/tunnelmesh/relay/internal/persistence"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := persistence.NewMemory()
	ctx := context.Background()

	reg := persistence.TunnelRegistration{
		TunnelID: "t1",
		APIKey:   "key-1",
		AgentID:  "key-1",
		Status:   persistence.StatusConnected,
	}
	if err := store.SaveTunnel(ctx, reg); err != nil {
		t.Fatalf("SaveTunnel: %v", err)
	}

	got, err := store.GetTunnel(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTunnel: %v", err)
	}
	if got.APIKey != "key-1" || got.Status != persistence.StatusConnected {
		t.Fatalf("unexpected registration: %+v", got)
	}
}

func TestMemoryStore_GetMissingReturnsErrNotFound(t *testing.T) {
	store := persistence.NewMemory()
	if _, err := store.GetTunnel(context.Background(), "missing"); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateTunnelStatus(t *testing.T) {
	store := persistence.NewMemory()
	ctx := context.Background()

	reg := persistence.TunnelRegistration{TunnelID: "t1", Status: persistence.StatusConnected}
	if err := store.SaveTunnel(ctx, reg); err != nil {
		t.Fatalf("SaveTunnel: %v", err)
	}

	if err := store.UpdateTunnelStatus(ctx, "t1", persistence.StatusDisconnected); err != nil {
		t.Fatalf("UpdateTunnelStatus: %v", err)
	}

	got, err := store.GetTunnel(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTunnel: %v", err)
	}
	if got.Status != persistence.StatusDisconnected {
		t.Fatalf("expected status updated, got %q", got.Status)
	}
}

func TestMemoryStore_UpdateStatusMissingReturnsErrNotFound(t *testing.T) {
	store := persistence.NewMemory()
	if err := store.UpdateTunnelStatus(context.Background(), "missing", persistence.StatusConnected); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteTunnel(t *testing.T) {
	store := persistence.NewMemory()
	ctx := context.Background()

	reg := persistence.TunnelRegistration{TunnelID: "t1"}
	if err := store.SaveTunnel(ctx, reg); err != nil {
		t.Fatalf("SaveTunnel: %v", err)
	}
	if err := store.DeleteTunnel(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTunnel: %v", err)
	}
	if _, err := store.GetTunnel(ctx, "t1"); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteTunnel(ctx, "t1"); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound deleting already-deleted tunnel, got %v", err)
	}
}
