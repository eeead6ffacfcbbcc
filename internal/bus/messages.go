// Package bus implements the fleet-wide broadcast substrate: five named
// channels, best-effort, in-order per publisher, delivered to every
// subscriber including the publisher itself — self-origin filtering is a
// consumer concern, via TargetsInstance or idempotent handling. It
// underlies the Ownership Registry's activity feed and the cross-instance
// request/health forwarding fabric.
package bus

import "encoding/json"

// Channel names.
const (
	ChannelRequest    = "req"
	ChannelResponse   = "resp"
	ChannelActivity   = "activity"
	ChannelHealthReq  = "hc-req"
	ChannelHealthResp = "hc-resp"
)

// Message types carried on the channels above.
const (
	TypeHTTPRequest              = "httpRequest"
	TypeHTTPResponse             = "httpResponse"
	TypeTunnelActivity           = "tunnelActivity"
	TypeForwardHealthCheck       = "forwardHealthCheck"
	TypeForwardHealthCheckResult = "forwardHealthCheckResponse"
)

// Activity values carried by a tunnelActivity message.
const (
	ActivityConnected    = "connected"
	ActivityDisconnected = "disconnected"
)

// Envelope is the wire shape of every broadcast message. Every message
// carries OriginalInstanceID; messages targeting one peer also carry
// TargetInstanceID, which non-matching receivers must ignore. Channel is
// stamped by Publish/redelivered by Subscribe so a handler can reject a
// message that arrived on the wrong channel.
type Envelope struct {
	Channel            string          `json:"channel"`
	Type               string          `json:"type"`
	OriginalInstanceID string          `json:"originalInstanceId"`
	TargetInstanceID   string          `json:"targetInstanceId,omitempty"`
	TunnelID           string          `json:"tunnelId,omitempty"`
	RequestID          string          `json:"requestId,omitempty"`
	HealthCheckJobID   string          `json:"healthCheckJobId,omitempty"`
	Activity           string          `json:"activity,omitempty"`
	Data               json.RawMessage `json:"data,omitempty"`
}

// HTTPRequestData is the Data payload of a req-channel httpRequest message.
type HTTPRequestData struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// HTTPResponseData is the Data payload of a resp-channel httpResponse message.
type HTTPResponseData struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// HealthStatusReportData mirrors the relay package's HealthStatusReport,
// duplicated here (not imported) to keep the bus package free of a
// dependency on the relay package it is consumed by.
type HealthStatusReportData struct {
	TunnelID           string `json:"tunnelId"`
	TunnelStatus       string `json:"tunnelStatus"`
	LocalServiceStatus string `json:"localServiceStatus"`
	CheckedByInstanceID string `json:"checkedByInstanceId"`
	Timestamp          string `json:"timestamp"`
}

func marshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// NewHTTPRequestEnvelope builds a req-channel message forwarding a public
// HTTP request to the instance that owns the tunnel.
func NewHTTPRequestEnvelope(origin, target, tunnelID, requestID string, data HTTPRequestData) Envelope {
	return Envelope{
		Channel:            ChannelRequest,
		Type:               TypeHTTPRequest,
		OriginalInstanceID: origin,
		TargetInstanceID:   target,
		TunnelID:           tunnelID,
		RequestID:          requestID,
		Data:               marshal(data),
	}
}

// NewHTTPResponseEnvelope builds a resp-channel message carrying the
// resolved response back to the instance that requested it.
func NewHTTPResponseEnvelope(origin, target, tunnelID, requestID string, data HTTPResponseData) Envelope {
	return Envelope{
		Channel:            ChannelResponse,
		Type:               TypeHTTPResponse,
		OriginalInstanceID: origin,
		TargetInstanceID:   target,
		TunnelID:           tunnelID,
		RequestID:          requestID,
		Data:               marshal(data),
	}
}

// NewActivityEnvelope builds an activity-channel tunnelActivity message.
func NewActivityEnvelope(origin, tunnelID, activity string) Envelope {
	return Envelope{
		Channel:            ChannelActivity,
		Type:               TypeTunnelActivity,
		OriginalInstanceID: origin,
		TunnelID:           tunnelID,
		Activity:           activity,
	}
}

// NewForwardHealthCheckEnvelope builds an hc-req-channel message asking the
// owning instance to ping its local agent on behalf of the origin.
func NewForwardHealthCheckEnvelope(origin, target, tunnelID, jobID string) Envelope {
	return Envelope{
		Channel:            ChannelHealthReq,
		Type:               TypeForwardHealthCheck,
		OriginalInstanceID: origin,
		TargetInstanceID:   target,
		TunnelID:           tunnelID,
		HealthCheckJobID:   jobID,
	}
}

// NewForwardHealthCheckResponseEnvelope builds an hc-resp-channel message
// carrying the result of a forwarded health check back to its origin.
func NewForwardHealthCheckResponseEnvelope(origin, target, tunnelID, jobID string, report HealthStatusReportData) Envelope {
	return Envelope{
		Channel:            ChannelHealthResp,
		Type:               TypeForwardHealthCheckResult,
		OriginalInstanceID: origin,
		TargetInstanceID:   target,
		TunnelID:           tunnelID,
		HealthCheckJobID:   jobID,
		Data:               marshal(report),
	}
}
