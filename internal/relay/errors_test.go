package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPError_MapsSentinelsToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrAuthRejected, http.StatusUnauthorized},
		{ErrTunnelNotFound, http.StatusNotFound},
		{ErrTunnelNotConnected, http.StatusServiceUnavailable},
		{ErrNoOwner, http.StatusBadGateway},
		{ErrAgentTimeout, http.StatusBadGateway},
		{ErrForwardTimeout, http.StatusGatewayTimeout},
		{ErrNotImplemented, http.StatusNotImplemented},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		httpError(rec, c.err)
		if rec.Code != c.status {
			t.Errorf("%v: got status %d, want %d", c.err, rec.Code, c.status)
		}
	}
}
