// Package relay implements the relay-side components of the tunnel fleet:
// the control-channel endpoint (C6), the public forwarding endpoint (C7),
// the health-probe endpoint (C8), and the glue between them and the
// in-process registries (C2-C5) and the broadcast bus (C1). See DESIGN.md
// for how this package's split maps back to its grounding sources.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tunnelmesh/relay/internal/bus"
	"github.com/tunnelmesh/relay/internal/logging"
	"github.com/tunnelmesh/relay/internal/persistence"
	"github.com/tunnelmesh/relay/internal/registry"
)

const (
	localHTTPTimeout     = 30 * time.Second
	forwardHTTPTimeout   = 30 * time.Second
	localPingTimeout     = 10 * time.Second
	forwardHealthTimeout = 15 * time.Second
	heartbeatInterval    = 25 * time.Second
	idleReadDeadline     = 60 * time.Second
)

// Options configure a Server.
type Options struct {
	InstanceID    string
	PublicBaseURL string
	Bus           bus.Bus
	Store         persistence.Store
	Logger        logging.Logger
}

// Server owns everything one relay process needs to run C1-C8, C11, C12.
type Server struct {
	instanceID    string
	publicBaseURL string

	bus    bus.Bus
	store  persistence.Store
	logger logging.Logger

	sockets          *registry.Sockets
	ownership        *registry.Ownership
	pendingForwarded *registry.PendingForwarded
	pendingAgentHTTP *registry.PendingAgent
	pendingHealth    *registry.PendingAgent

	stats stats

	unsubscribers []bus.Unsubscribe
}

// NewServer wires C1-C8 together. Call Subscribe before serving traffic.
func NewServer(opts Options) *Server {
	if opts.InstanceID == "" {
		opts.InstanceID = NewInstanceID()
	}
	if opts.Logger == nil {
		opts.Logger, _ = logging.NewLogger(logging.Options{})
	}

	s := &Server{
		instanceID:       opts.InstanceID,
		publicBaseURL:    opts.PublicBaseURL,
		bus:              opts.Bus,
		store:            opts.Store,
		logger:           opts.Logger,
		sockets:          registry.NewSockets(),
		ownership:        registry.NewOwnership(),
		pendingForwarded: registry.NewPendingForwarded(),
	}
	s.pendingAgentHTTP = registry.NewPendingAgent(httpForwardedResolver{s})
	s.pendingHealth = registry.NewPendingAgent(healthForwardedResolver{s})
	return s
}

// Subscribe attaches this instance to the broadcast bus's five channels.
// Must be called once before the HTTP handlers start seeing traffic.
func (s *Server) Subscribe(ctx context.Context) error {
	subs := []struct {
		channel string
		handler func(bus.Envelope)
	}{
		{bus.ChannelActivity, s.onActivity},
		{bus.ChannelRequest, s.onBusHTTPRequest},
		{bus.ChannelResponse, s.onBusHTTPResponse},
		{bus.ChannelHealthReq, s.onBusForwardHealthCheck},
		{bus.ChannelHealthResp, s.onBusForwardHealthCheckResponse},
	}
	for _, sub := range subs {
		unsub, err := s.bus.Subscribe(ctx, sub.channel, sub.handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.channel, err)
		}
		s.unsubscribers = append(s.unsubscribers, unsub)
	}
	return nil
}

// Shutdown releases bus subscriptions. Timers of entries still pending in
// the registries are not stopped; each fires and settles its entry as usual.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, unsub := range s.unsubscribers {
		unsub()
	}
	s.unsubscribers = nil
	return nil
}

// Mux builds the relay's public HTTP surface: the control-channel upgrade
// endpoint and the public forwarding/health-probe endpoints.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/tunnel/connect/", s.handleControlChannel)
	mux.HandleFunc("/tunnel/connect", s.handleControlChannel)
	mux.HandleFunc("/", s.handlePublic)
	return mux
}

func newID() string { return uuid.NewString() }

// onActivity implements the Ownership Registry's event-driven update: set
// unconditionally on connected, remove subject to the stale-disconnect
// guard on disconnected. Self-originated events are applied too — every
// instance, including the origin, must converge on the same ownership
// view.
func (s *Server) onActivity(env bus.Envelope) {
	switch env.Activity {
	case bus.ActivityConnected:
		s.ownership.Set(env.TunnelID, env.OriginalInstanceID)
		s.stats.activeTunnels.Add(1)
	case bus.ActivityDisconnected:
		s.ownership.Remove(env.TunnelID, env.OriginalInstanceID)
		s.stats.activeTunnels.Add(-1)
	}
}

func (s *Server) publishActivity(tunnelID, activity string) {
	env := bus.NewActivityEnvelope(s.instanceID, tunnelID, activity)
	if err := s.bus.Publish(context.Background(), env); err != nil {
		s.logger.Warn("publish activity failed", "tunnel_id", tunnelID, "activity", activity, "err", err.Error())
	}
}
