package protocol

// ServiceSpec is one entry of a register frame's data.services array.
type ServiceSpec struct {
	Type            string `json:"type"`
	LocalPort       int    `json:"local_port"`
	SubdomainOrPath string `json:"subdomain_or_path"`
}

// RegisterData is the data payload of a register frame.
type RegisterData struct {
	Services []ServiceSpec `json:"services"`
}

// RegisteredData is the data payload of a registered frame.
type RegisteredData struct {
	TunnelID      string `json:"tunnelId"`
	PublicBaseURL string `json:"public_base_url"`
}

// ReconnectedData is the data payload of a reconnected frame.
type ReconnectedData struct {
	TunnelID string `json:"tunnelId"`
	Message  string `json:"message"`
}

// HTTPRequestData is the data payload of an httpRequest frame, carried both
// agent-bound over the control channel and instance-bound over the
// broadcast bus's req channel. Body is nil for bodyless requests.
type HTTPRequestData struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// HTTPResponseData is the data payload of an httpResponse frame / bus
// message. Body is nil for bodyless (204/304 or absent) responses.
type HTTPResponseData struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

func newFrame(typ string) Frame {
	return Frame{V: 1, Type: typ}
}

// NewRegisterFrame builds an agent -> relay register frame.
func NewRegisterFrame(services []ServiceSpec) Frame {
	f := newFrame(TypeRegister)
	f.Data = mustMarshal(RegisterData{Services: services})
	return f
}

// NewHeartbeatFrame builds an agent -> relay heartbeat frame.
func NewHeartbeatFrame() Frame { return newFrame(TypeHeartbeat) }

// NewHeartbeatAckFrame builds a relay -> agent heartbeat_ack frame.
func NewHeartbeatAckFrame() Frame { return newFrame(TypeHeartbeatAck) }

// NewRegisteredFrame builds a relay -> agent registered frame.
func NewRegisteredFrame(tunnelID, publicBaseURL string) Frame {
	f := newFrame(TypeRegistered)
	f.Data = mustMarshal(RegisteredData{TunnelID: tunnelID, PublicBaseURL: publicBaseURL})
	return f
}

// NewReconnectedFrame builds a relay -> agent reconnected frame.
func NewReconnectedFrame(tunnelID, message string) Frame {
	f := newFrame(TypeReconnected)
	f.Data = mustMarshal(ReconnectedData{TunnelID: tunnelID, Message: message})
	return f
}

// NewErrorFrame builds a relay -> agent error frame. requestID may be empty.
func NewErrorFrame(requestID, message string) Frame {
	f := newFrame(TypeError)
	f.RequestID = requestID
	f.Error = message
	return f
}

// NewHTTPRequestFrame builds a relay -> agent httpRequest frame.
func NewHTTPRequestFrame(requestID string, data HTTPRequestData) Frame {
	f := newFrame(TypeHTTPRequest)
	f.RequestID = requestID
	f.Data = mustMarshal(data)
	return f
}

// NewHTTPResponseFrame builds an agent -> relay httpResponse frame.
func NewHTTPResponseFrame(requestID string, data HTTPResponseData) Frame {
	f := newFrame(TypeHTTPResponse)
	f.RequestID = requestID
	f.Data = mustMarshal(data)
	return f
}

// NewPingFrame builds a relay -> agent ping frame.
func NewPingFrame(healthCheckJobID string) Frame {
	f := newFrame(TypePing)
	f.HealthCheckJobID = healthCheckJobID
	return f
}

// NewPongFrame builds an agent -> relay pong frame.
func NewPongFrame(healthCheckJobID, localServiceStatus string) Frame {
	f := newFrame(TypePong)
	f.HealthCheckJobID = healthCheckJobID
	f.LocalServiceStatus = localServiceStatus
	return f
}
