package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tunnelmesh/relay/internal/bus"
	"github.com/tunnelmesh/relay/internal/persistence"
	"github.com/tunnelmesh/relay/internal/protocol"
	"github.com/tunnelmesh/relay/internal/registry"
)

const maxForwardBodyBytes = 32 << 20

// handlePublic implements C7: /<tunnelId>/<subPath...>. The
// health-probe URL shape (/<tunnelId>/status, no further segments) is
// routed to C8 here rather than via a second mux pattern, since both share
// the tunnelId-prefixed path space and Go's ServeMux can't express "exactly
// one more literal segment" directly.
func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/")
	if trimmed == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.SplitN(trimmed, "/", 2)
	tunnelID := parts[0]
	subPath := "/"
	if len(parts) == 2 && parts[1] != "" {
		subPath = "/" + parts[1]
	}

	if subPath == "/status" {
		s.handleStatus(w, r, tunnelID)
		return
	}

	reg, err := s.store.GetTunnel(r.Context(), tunnelID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			httpError(w, ErrTunnelNotFound)
			return
		}
		httpError(w, ErrPersistence)
		return
	}
	if reg.Status != persistence.StatusConnected {
		httpError(w, ErrTunnelNotConnected)
		return
	}

	if isWebsocketUpgrade(r) {
		httpError(w, ErrNotImplemented)
		return
	}

	body, err := readLimitedBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	reqData := protocol.HTTPRequestData{
		Method:  r.Method,
		Path:    subPath,
		Headers: headersToMap(r.Header),
		Body:    protocol.EncodeBody(body, r.Header.Get("Content-Type")),
	}

	if sock, ok := s.sockets.Get(tunnelID); ok {
		s.forwardLocal(w, sock, tunnelID, reqData)
		return
	}

	owner, ok := s.ownership.Get(tunnelID)
	if ok && owner != s.instanceID {
		s.forwardRemote(w, r, tunnelID, owner, reqData)
		return
	}

	httpError(w, ErrNoOwner)
}

// forwardLocal sends the request to the agent connected directly to this
// instance and waits for its httpResponse frame.
func (s *Server) forwardLocal(w http.ResponseWriter, sock registry.Socket, tunnelID string, reqData protocol.HTTPRequestData) {
	agentReqID := newID()
	ch, err := s.pendingAgentHTTP.AddLocal(agentReqID, localHTTPTimeout)
	if err != nil {
		http.Error(w, "duplicate request id", http.StatusInternalServerError)
		return
	}
	s.stats.localRequests.Add(1)

	if err := sendFrame(sock, protocol.NewHTTPRequestFrame(agentReqID, reqData)); err != nil {
		s.pendingAgentHTTP.Reject(agentReqID, err)
	}

	res := <-ch
	if res.Err != nil {
		s.stats.localTimeouts.Add(1)
		httpError(w, ErrAgentTimeout)
		return
	}
	data, ok := res.Payload.(protocol.HTTPResponseData)
	if !ok {
		httpError(w, ErrProtocol)
		return
	}
	writeHTTPResponseData(w, data)
}

// forwardRemote publishes the request to the owning peer instance over the
// bus and waits for its httpResponse broadcast.
func (s *Server) forwardRemote(w http.ResponseWriter, r *http.Request, tunnelID, owner string, reqData protocol.HTTPRequestData) {
	jobID := newID()
	ch, err := s.pendingForwarded.Add(jobID, forwardHTTPTimeout)
	if err != nil {
		http.Error(w, "duplicate job id", http.StatusInternalServerError)
		return
	}
	s.stats.forwardedRequests.Add(1)

	env := bus.NewHTTPRequestEnvelope(s.instanceID, owner, tunnelID, jobID, bus.HTTPRequestData{
		Method:  reqData.Method,
		Path:    reqData.Path,
		Headers: reqData.Headers,
		Body:    reqData.Body,
	})
	if err := s.bus.Publish(r.Context(), env); err != nil {
		s.pendingForwarded.Reject(jobID, err)
	}

	res := <-ch
	if res.Err != nil {
		s.stats.forwardTimeouts.Add(1)
		httpError(w, ErrForwardTimeout)
		return
	}
	data, ok := res.Payload.(bus.HTTPResponseData)
	if !ok {
		httpError(w, ErrProtocol)
		return
	}
	writeHTTPResponseData(w, protocol.HTTPResponseData{Status: data.Status, Headers: data.Headers, Body: data.Body})
}

// onBusHTTPRequest handles an req-channel broadcast: a peer instance holds
// no local socket for tunnelId and is asking us, the owner, to execute the
// request against our locally-connected agent and publish the response
// back.
func (s *Server) onBusHTTPRequest(env bus.Envelope) {
	if !bus.TargetsInstance(env, s.instanceID) {
		return
	}
	var data bus.HTTPRequestData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		s.logger.Warn("malformed httpRequest broadcast", "job_id", env.RequestID, "err", err.Error())
		return
	}

	sock, ok := s.sockets.Get(env.TunnelID)
	if !ok {
		resp := bus.NewHTTPResponseEnvelope(s.instanceID, env.OriginalInstanceID, env.TunnelID, env.RequestID,
			bus.HTTPResponseData{Status: http.StatusBadGateway, Body: strPtr("tunnel agent not connected")})
		if err := s.bus.Publish(context.Background(), resp); err != nil {
			s.logger.Warn("publish httpResponse (no local agent) failed", "job_id", env.RequestID, "err", err.Error())
		}
		return
	}

	agentReqID := env.RequestID
	if err := s.pendingAgentHTTP.AddForwarded(agentReqID, env.RequestID, env.OriginalInstanceID, localHTTPTimeout, nil); err != nil {
		s.logger.Warn("forwarded httpRequest already pending", "job_id", agentReqID, "err", err.Error())
		return
	}
	reqData := protocol.HTTPRequestData{Method: data.Method, Path: data.Path, Headers: data.Headers, Body: data.Body}
	if err := sendFrame(sock, protocol.NewHTTPRequestFrame(agentReqID, reqData)); err != nil {
		s.pendingAgentHTTP.Reject(agentReqID, err)
	}
}

// onBusHTTPResponse resolves the PendingForwarded entry created by
// forwardRemote once the owning peer's agent answers.
func (s *Server) onBusHTTPResponse(env bus.Envelope) {
	if !bus.TargetsInstance(env, s.instanceID) {
		return
	}
	var data bus.HTTPResponseData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		s.logger.Warn("malformed httpResponse broadcast", "job_id", env.RequestID, "err", err.Error())
		return
	}
	s.pendingForwarded.Resolve(env.RequestID, data)
}

func writeHTTPResponseData(w http.ResponseWriter, data protocol.HTTPResponseData) {
	contentType := ""
	for k, v := range data.Headers {
		if strings.EqualFold(k, "content-type") {
			contentType = v
		}
		if strings.EqualFold(k, "content-length") {
			continue
		}
		w.Header().Set(k, v)
	}
	status := data.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if protocol.IsBodylessStatus(status) {
		return
	}
	if body := protocol.DecodeBody(data.Body, contentType); body != nil {
		_, _ = w.Write(body)
	}
}

func headersToMap(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k, v := range h {
		if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") {
			continue
		}
		m[k] = strings.Join(v, ", ")
	}
	return m
}

func readLimitedBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxForwardBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}
