package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tunnelmesh/relay/internal/bus"
	"github.com/tunnelmesh/relay/internal/persistence"
	"github.com/tunnelmesh/relay/internal/protocol"
	"github.com/tunnelmesh/relay/internal/registry"
)

// HealthStatusReport is the result of probing one tunnel's local service.
type HealthStatusReport struct {
	TunnelID            string
	TunnelStatus        string
	LocalServiceStatus  string
	CheckedByInstanceID string
	Timestamp           time.Time
}

func (r HealthStatusReport) toData() bus.HealthStatusReportData {
	return bus.HealthStatusReportData{
		TunnelID:            r.TunnelID,
		TunnelStatus:        r.TunnelStatus,
		LocalServiceStatus:  r.LocalServiceStatus,
		CheckedByInstanceID: r.CheckedByInstanceID,
		Timestamp:           r.Timestamp.Format(time.RFC3339),
	}
}

// handleStatus implements C8: GET /<tunnelId>/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, tunnelID string) {
	ctx := r.Context()

	if _, err := s.store.GetTunnel(ctx, tunnelID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			httpError(w, ErrTunnelNotFound)
			return
		}
		s.logger.Warn("status: load registration failed", "tunnel_id", tunnelID, "err", err.Error())
		httpError(w, ErrPersistence)
		return
	}

	if _, ok := s.sockets.Get(tunnelID); ok {
		report := s.pingLocal(ctx, tunnelID)
		writeJSON(w, http.StatusOK, report)
		return
	}

	owner, ok := s.ownership.Get(tunnelID)
	if ok && owner != s.instanceID {
		report, err := s.pingForward(ctx, tunnelID, owner)
		if err != nil {
			httpError(w, ErrForwardTimeout)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	writeJSON(w, http.StatusOK, HealthStatusReport{
		TunnelID:            tunnelID,
		TunnelStatus:        protocol.TunnelStatusDisconnected,
		LocalServiceStatus:  protocol.StatusUnknown,
		CheckedByInstanceID: s.instanceID,
		Timestamp:           time.Now(),
	})
}

// pingLocal issues ping to the agent connected on this instance and waits
// up to localPingTimeout for the pong.
func (s *Server) pingLocal(ctx context.Context, tunnelID string) HealthStatusReport {
	sock, ok := s.sockets.Get(tunnelID)
	if !ok {
		return HealthStatusReport{
			TunnelID:            tunnelID,
			TunnelStatus:        protocol.TunnelStatusDisconnected,
			LocalServiceStatus:  protocol.StatusUnknown,
			CheckedByInstanceID: s.instanceID,
			Timestamp:           time.Now(),
		}
	}

	jobID := newID()
	ch, err := s.pendingHealth.AddLocal(jobID, localPingTimeout)
	if err != nil {
		return HealthStatusReport{
			TunnelID:            tunnelID,
			TunnelStatus:        protocol.TunnelStatusConnected,
			LocalServiceStatus:  protocol.StatusAgentUnresponsive,
			CheckedByInstanceID: s.instanceID,
			Timestamp:           time.Now(),
		}
	}

	if err := sendFrame(sock, protocol.NewPingFrame(jobID)); err != nil {
		s.pendingHealth.Reject(jobID, err)
	}

	res := <-ch
	localStatus := protocol.StatusAgentUnresponsive
	if res.Err == nil {
		if st, ok := res.Payload.(string); ok {
			localStatus = st
		}
	}
	return HealthStatusReport{
		TunnelID:            tunnelID,
		TunnelStatus:        protocol.TunnelStatusConnected,
		LocalServiceStatus:  localStatus,
		CheckedByInstanceID: s.instanceID,
		Timestamp:           time.Now(),
	}
}

var errForwardTimeout = errors.New("forwarded health check timed out")

// pingForward asks the owning peer instance to probe its local agent on our
// behalf.
func (s *Server) pingForward(ctx context.Context, tunnelID, owner string) (HealthStatusReport, error) {
	jobID := newID()
	ch, err := s.pendingForwarded.Add(jobID, forwardHealthTimeout)
	if err != nil {
		return HealthStatusReport{}, err
	}

	env := bus.NewForwardHealthCheckEnvelope(s.instanceID, owner, tunnelID, jobID)
	if err := s.bus.Publish(ctx, env); err != nil {
		s.pendingForwarded.Reject(jobID, err)
	}

	res := <-ch
	if res.Err != nil {
		s.stats.forwardTimeouts.Add(1)
		return HealthStatusReport{}, errForwardTimeout
	}
	report, ok := res.Payload.(HealthStatusReport)
	if !ok {
		return HealthStatusReport{}, errForwardTimeout
	}
	return report, nil
}

// onBusForwardHealthCheck handles an hc-req broadcast: a peer is asking us
// to probe our own locally-connected agent and report the result back.
// The ping is dispatched asynchronously — the bus
// dispatch goroutine must not block on an agent's reply — and resolution
// is handed off to healthForwardedResolver once the matching pong (or
// timeout) arrives via the normal pendingHealth machinery, keyed by
// reusing the bus job id as the agentReqId.
func (s *Server) onBusForwardHealthCheck(env bus.Envelope) {
	if !bus.TargetsInstance(env, s.instanceID) {
		return
	}

	sock, ok := s.sockets.Get(env.TunnelID)
	if !ok {
		report := HealthStatusReport{
			TunnelID:            env.TunnelID,
			TunnelStatus:        protocol.TunnelStatusDisconnected,
			LocalServiceStatus:  protocol.StatusUnknown,
			CheckedByInstanceID: s.instanceID,
			Timestamp:           time.Now(),
		}
		respEnv := bus.NewForwardHealthCheckResponseEnvelope(s.instanceID, env.OriginalInstanceID, env.TunnelID, env.HealthCheckJobID, report.toData())
		if err := s.bus.Publish(context.Background(), respEnv); err != nil {
			s.logger.Warn("publish forwardHealthCheckResponse failed", "tunnel_id", env.TunnelID, "err", err.Error())
		}
		return
	}

	agentReqID := env.HealthCheckJobID
	if err := s.pendingHealth.AddForwarded(agentReqID, env.HealthCheckJobID, env.OriginalInstanceID, localPingTimeout, env.TunnelID); err != nil {
		s.logger.Warn("forwarded health check already pending", "job_id", agentReqID, "err", err.Error())
		return
	}
	if err := sendFrame(sock, protocol.NewPingFrame(agentReqID)); err != nil {
		s.pendingHealth.Reject(agentReqID, err)
	}
}

// onBusForwardHealthCheckResponse resolves the PendingForwarded entry
// created by pingForward once the owning peer reports back.
func (s *Server) onBusForwardHealthCheckResponse(env bus.Envelope) {
	if !bus.TargetsInstance(env, s.instanceID) {
		return
	}
	var data bus.HealthStatusReportData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		s.logger.Warn("malformed forwardHealthCheckResponse", "job_id", env.HealthCheckJobID, "err", err.Error())
		return
	}
	ts, _ := time.Parse(time.RFC3339, data.Timestamp)
	s.pendingForwarded.Resolve(env.HealthCheckJobID, HealthStatusReport{
		TunnelID:            data.TunnelID,
		TunnelStatus:        data.TunnelStatus,
		LocalServiceStatus:  data.LocalServiceStatus,
		CheckedByInstanceID: data.CheckedByInstanceID,
		Timestamp:           ts,
	})
}

func sendFrame(sock registry.Socket, f protocol.Frame) error {
	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}
	return sock.Send(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
