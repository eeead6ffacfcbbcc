package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/tunnelmesh/relay/internal/bus"
	"github.com/tunnelmesh/relay/internal/persistence"
	"github.com/tunnelmesh/relay/internal/protocol"
)

// handleControlChannel implements C6: accepts an agent's websocket upgrade,
// authenticates it, and runs its read loop for the connection's lifetime:
// Accept, then a blocking conn.Read loop dispatched by frame type, with
// cleanup run once the loop exits.
func (s *Server) handleControlChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	apiKey := r.URL.Query().Get("apiKey")
	if strings.TrimSpace(apiKey) == "" {
		httpError(w, ErrAuthRejected)
		return
	}

	// Path discriminator: "register" means new tunnel; anything else names
	// an existing tunnelId for reconnect.
	pathTail := strings.TrimPrefix(r.URL.Path, "/tunnel/connect")
	pathTail = strings.Trim(pathTail, "/")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sock := newControlSocket(conn)
	sock.apiKey = apiKey

	var tunnelID string
	if pathTail == "" || pathTail == "register" {
		tunnelID, err = s.handleRegisterHandshake(ctx, sock)
	} else {
		tunnelID, err = s.handleReconnectHandshake(ctx, sock, pathTail)
	}
	if err != nil {
		s.logger.Warn("control channel handshake failed", "err", err.Error())
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}
	sock.tunnelID = tunnelID

	s.runControlLoop(ctx, conn, sock, tunnelID)

	sock.markClosed()
	s.sockets.Remove(tunnelID, sock)
	if err := s.store.UpdateTunnelStatus(context.Background(), tunnelID, persistence.StatusDisconnected); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		s.logger.Warn("mark disconnected failed", "tunnel_id", tunnelID, "err", err.Error())
	}
	s.publishActivity(tunnelID, bus.ActivityDisconnected)
}

// handleRegisterHandshake reads the first frame, requires it to be a
// register, validates services, mints a tunnelId, persists, publishes
// connected, and replies registered.
func (s *Server) handleRegisterHandshake(ctx context.Context, sock *controlSocket) (string, error) {
	f, err := readFrame(ctx, sock.conn)
	if err != nil {
		return "", err
	}
	if f.Type != protocol.TypeRegister {
		sendErrorFrame(sock, "", "expected register frame")
		return "", errors.New("expected register frame, got " + f.Type)
	}

	var data protocol.RegisterData
	if err := f.DecodeData(&data); err != nil {
		sendErrorFrame(sock, "", "malformed register payload")
		return "", err
	}

	services := make([]persistence.ServiceRecord, 0, len(data.Services))
	for _, svc := range data.Services {
		if err := validateServiceSpec(svc); err != nil {
			sendErrorFrame(sock, "", err.Error())
			return "", err
		}
		services = append(services, persistence.ServiceRecord{
			Type:            svc.Type,
			LocalPort:       svc.LocalPort,
			SubdomainOrPath: svc.SubdomainOrPath,
		})
	}

	tunnelID := newID()
	reg := persistence.TunnelRegistration{
		TunnelID:  tunnelID,
		APIKey:    sock.apiKey,
		AgentID:   sock.apiKey,
		Services:  services,
		CreatedAt: time.Now(),
		Status:    persistence.StatusConnected,
	}
	if err := s.store.SaveTunnel(ctx, reg); err != nil {
		sendErrorFrame(sock, "", "Failed to register tunnel: persistence error")
		return "", err
	}

	s.sockets.Insert(tunnelID, sock)
	s.publishActivity(tunnelID, bus.ActivityConnected)

	if err := sock.sendFrame(protocol.NewRegisteredFrame(tunnelID, s.publicBaseURL)); err != nil {
		return "", err
	}
	return tunnelID, nil
}

// handleReconnectHandshake re-establishes an existing tunnelId's socket
// after the agent's connection dropped and reconnected.
func (s *Server) handleReconnectHandshake(ctx context.Context, sock *controlSocket, tunnelID string) (string, error) {
	reg, err := s.store.GetTunnel(ctx, tunnelID)
	if err != nil {
		sendErrorFrame(sock, "", "unknown tunnel")
		return "", err
	}
	if reg.APIKey != sock.apiKey {
		sendErrorFrame(sock, "", "apiKey mismatch")
		return "", errors.New("apiKey mismatch for tunnel " + tunnelID)
	}

	s.sockets.Insert(tunnelID, sock)
	if err := s.store.UpdateTunnelStatus(ctx, tunnelID, persistence.StatusConnected); err != nil {
		s.logger.Warn("reconnect: status update failed", "tunnel_id", tunnelID, "err", err.Error())
	}
	s.publishActivity(tunnelID, bus.ActivityConnected)

	if err := sock.sendFrame(protocol.NewReconnectedFrame(tunnelID, "reconnected")); err != nil {
		return "", err
	}
	return tunnelID, nil
}

// runControlLoop dispatches every subsequent frame on an established
// connection until the transport closes. Read deadlines are refreshed on
// every frame; the deadline is wider than the agent's heartbeat interval
// so a single missed heartbeat doesn't drop the connection.
func (s *Server) runControlLoop(ctx context.Context, conn *websocket.Conn, sock *controlSocket, tunnelID string) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, idleReadDeadline)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			s.logger.Warn("malformed frame", "tunnel_id", tunnelID, "err", err.Error())
			sendErrorFrame(sock, "", "malformed frame")
			continue
		}

		switch f.Type {
		case protocol.TypeHeartbeat:
			_ = sock.sendFrame(protocol.NewHeartbeatAckFrame())
		case protocol.TypeHTTPResponse:
			s.onAgentHTTPResponse(*f)
		case protocol.TypePong:
			s.onAgentPong(*f)
		default:
			s.logger.Warn("unexpected frame from agent", "tunnel_id", tunnelID, "type", f.Type)
		}
	}
}

// onAgentHTTPResponse resolves whichever C5 entry (local or forwarded)
// agentReqId names.
func (s *Server) onAgentHTTPResponse(f protocol.Frame) {
	var data protocol.HTTPResponseData
	if err := f.DecodeData(&data); err != nil {
		s.logger.Warn("malformed httpResponse frame", "request_id", f.RequestID, "err", err.Error())
		return
	}
	s.pendingAgentHTTP.Resolve(f.RequestID, data)
}

// onAgentPong resolves whichever C5-health entry healthCheckJobId names.
func (s *Server) onAgentPong(f protocol.Frame) {
	s.pendingHealth.Resolve(f.HealthCheckJobID, f.LocalServiceStatus)
}

func readFrame(ctx context.Context, conn *websocket.Conn) (*protocol.Frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeFrame(data)
}

func sendErrorFrame(sock *controlSocket, requestID, message string) {
	_ = sock.sendFrame(protocol.NewErrorFrame(requestID, message))
}

func validateServiceSpec(svc protocol.ServiceSpec) error {
	if svc.LocalPort <= 0 {
		return errors.New("service local_port must be positive")
	}
	if strings.TrimSpace(svc.SubdomainOrPath) == "" {
		return errors.New("service subdomain_or_path is required")
	}
	if strings.ContainsAny(svc.SubdomainOrPath, "/ \t\n") {
		return errors.New("service subdomain_or_path must not contain '/' or whitespace")
	}
	if svc.Type != protocol.ServiceHTTP && svc.Type != protocol.ServiceTCP {
		return errors.New("service type must be http or tcp")
	}
	return nil
}
