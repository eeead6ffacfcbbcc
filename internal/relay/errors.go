package relay

import (
	"errors"
	"net/http"
)

// Sentinel error kinds. Each is mapped to exactly one HTTP status by
// httpError below, rather than by string-matching at each call site.
var (
	ErrAuthRejected            = errors.New("auth rejected")
	ErrProtocol                = errors.New("protocol error")
	ErrPersistence             = errors.New("persistence error")
	ErrAgentTimeout            = errors.New("agent timeout")
	ErrForwardTimeout          = errors.New("forward timeout")
	ErrNoOwner                 = errors.New("tunnel agent not connected")
	ErrLocalServiceUnreachable = errors.New("local service unreachable")
	ErrNotImplemented          = errors.New("not implemented")
	ErrTunnelNotFound          = errors.New("tunnel not found")
	ErrTunnelNotConnected      = errors.New("tunnel not connected")
)

// httpError maps one of the sentinels above to its HTTP status and writes
// it, falling back to 500 for anything else (e.g. a wrapped persistence
// driver error that isn't one of the named kinds).
func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrAuthRejected):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrTunnelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrTunnelNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrNoOwner):
		status = http.StatusBadGateway
	case errors.Is(err, ErrAgentTimeout):
		status = http.StatusBadGateway
	case errors.Is(err, ErrForwardTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, ErrNotImplemented):
		status = http.StatusNotImplemented
	case errors.Is(err, ErrLocalServiceUnreachable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrProtocol):
		status = http.StatusBadRequest
	case errors.Is(err, ErrPersistence):
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}
