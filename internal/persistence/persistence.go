// Package persistence implements the Persistence Adapter (C11): CRUD for
// TunnelRegistration records keyed by tunnelId, plus the apiKey/agentId
// secondary indices that must stay coherent with the primary record.
package persistence

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("tunnel registration not found")

// Status values of a TunnelRegistration.
const (
	StatusPending      = "pending"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// ServiceRecord mirrors one entry of a register frame's services, persisted
// alongside the registration so a reconnecting agent's advertised services
// are recoverable without re-registering.
type ServiceRecord struct {
	Type            string `json:"type"`
	LocalPort       int    `json:"localPort"`
	SubdomainOrPath string `json:"subdomainOrPath"`
}

// TunnelRegistration is a tunnel's persisted registration. AgentID equals
// APIKey in the current design.
type TunnelRegistration struct {
	TunnelID  string          `json:"tunnelId"`
	APIKey    string          `json:"apiKey"`
	AgentID   string          `json:"agentId"`
	Services  []ServiceRecord `json:"services"`
	CreatedAt time.Time       `json:"createdAt"`
	Status    string          `json:"status"`
}

// Store is the Persistence Adapter's operation surface.
type Store interface {
	// SaveTunnel writes reg and its apiKey/agentId secondary indices
	// atomically.
	SaveTunnel(ctx context.Context, reg TunnelRegistration) error

	// GetTunnel returns ErrNotFound if tunnelID has no registration.
	GetTunnel(ctx context.Context, tunnelID string) (TunnelRegistration, error)

	// UpdateTunnelStatus returns ErrNotFound if tunnelID has no registration.
	UpdateTunnelStatus(ctx context.Context, tunnelID, status string) error

	// DeleteTunnel removes a registration and its secondary indices. The
	// core control/forwarding paths never call this themselves — a
	// registration is only ever removed by explicit administrative
	// cleanup.
	DeleteTunnel(ctx context.Context, tunnelID string) error
}
