package relay

import (
	"context"
	"time"

	"github.com/tunnelmesh/relay/internal/bus"
	"github.com/tunnelmesh/relay/internal/protocol"
	"github.com/tunnelmesh/relay/internal/registry"
)

// httpForwardedResolver publishes an httpResponse broadcast back to the
// instance that forwarded an httpRequest to us, once our local agent
// answers (or the local-agent wait times out), carrying originJobId and
// the response payload back to originInstanceId.
type httpForwardedResolver struct{ s *Server }

func (r httpForwardedResolver) ResolveForwarded(originJobID, originInstanceID string, meta any, res registry.Result) {
	var data bus.HTTPResponseData
	if res.Err != nil {
		data = bus.HTTPResponseData{Status: 502, Body: strPtr("agent request failed: " + res.Err.Error())}
	} else if payload, ok := res.Payload.(protocol.HTTPResponseData); ok {
		data = bus.HTTPResponseData{Status: payload.Status, Headers: payload.Headers, Body: payload.Body}
	} else {
		data = bus.HTTPResponseData{Status: 502, Body: strPtr("internal error: unexpected payload type")}
	}

	env := bus.NewHTTPResponseEnvelope(r.s.instanceID, originInstanceID, "", originJobID, data)
	if err := r.s.bus.Publish(context.Background(), env); err != nil {
		r.s.logger.Warn("publish forwarded httpResponse failed", "job_id", originJobID, "err", err.Error())
	}
}

// healthForwardedResolver publishes a forwardHealthCheckResponse broadcast
// back to the instance that asked us to ping our local agent on its
// behalf. The pending ping's meta carries the tunnelID
// (a bare Result has no room for it), and its Payload — once the local
// agent's pong arrives — is the agent-reported localServiceStatus string.
type healthForwardedResolver struct{ s *Server }

func (r healthForwardedResolver) ResolveForwarded(originJobID, originInstanceID string, meta any, res registry.Result) {
	tunnelID, _ := meta.(string)

	localStatus := protocol.StatusAgentUnresponsive
	if res.Err == nil {
		if s, ok := res.Payload.(string); ok {
			localStatus = s
		}
	}

	report := HealthStatusReport{
		TunnelID:            tunnelID,
		TunnelStatus:        protocol.TunnelStatusConnected,
		LocalServiceStatus:  localStatus,
		CheckedByInstanceID: r.s.instanceID,
		Timestamp:           time.Now(),
	}

	env := bus.NewForwardHealthCheckResponseEnvelope(r.s.instanceID, originInstanceID, report.TunnelID, originJobID, report.toData())
	if err := r.s.bus.Publish(context.Background(), env); err != nil {
		r.s.logger.Warn("publish forwarded health check response failed", "job_id", originJobID, "err", err.Error())
	}
}

func strPtr(s string) *string { return &s }
