package protocol

// Control-channel frame types.
const (
	// Agent -> Relay
	TypeRegister     = "register"
	TypeHeartbeat    = "heartbeat"
	TypeHTTPResponse = "httpResponse"
	TypePong         = "pong"

	// Relay -> Agent
	TypeRegistered   = "registered"
	TypeReconnected  = "reconnected"
	TypeHeartbeatAck = "heartbeat_ack"
	TypeHTTPRequest  = "httpRequest"
	TypePing         = "ping"
	TypeError        = "error"
)

// Service types an agent may advertise.
const (
	ServiceHTTP = "http"
	ServiceTCP  = "tcp"
)

// LocalServiceStatus values reported in a pong frame and in
// HealthStatusReport.
const (
	StatusOK                = "ok"
	StatusError             = "error"
	StatusTimeout           = "timeout"
	StatusAgentUnresponsive = "agent_unresponsive"
	StatusUnconfigured      = "unconfigured"
	StatusUnknown           = "unknown"

	TunnelStatusConnected    = "connected"
	TunnelStatusDisconnected = "disconnected"
	TunnelStatusPending      = "pending"
	TunnelStatusUnknown      = "unknown"
)
