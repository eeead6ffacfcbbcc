package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tunnelmesh/relay/internal/config"
	"github.com/tunnelmesh/relay/internal/logging"
	"github.com/tunnelmesh/relay/internal/protocol"
)

const pingTimeout = 3 * time.Second

// Executor receives httpRequest and ping frames from the Connector and
// bridges them to locally configured services (C10).
type Executor struct {
	services []config.ServiceConfig
	logger   logging.Logger

	httpClient *http.Client
	pingClient *http.Client
}

func NewExecutor(services []config.ServiceConfig, logger logging.Logger) *Executor {
	return &Executor{
		services: services,
		logger:   logger,
		httpClient: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		pingClient: &http.Client{Timeout: pingTimeout},
	}
}

// HandleHTTPRequest routes f to the matching local service and sends back
// an httpResponse frame.
func (e *Executor) HandleHTTPRequest(ctx context.Context, send func(protocol.Frame) error, f protocol.Frame) error {
	var data protocol.HTTPRequestData
	if err := f.DecodeData(&data); err != nil {
		return send(protocol.NewHTTPResponseFrame(f.RequestID, protocol.HTTPResponseData{
			Status: http.StatusBadGateway, Body: strPtr("malformed httpRequest payload"),
		}))
	}

	svc, localPath, ok := matchService(e.services, data.Path)
	if !ok {
		return send(protocol.NewHTTPResponseFrame(f.RequestID, protocol.HTTPResponseData{
			Status: http.StatusNotFound, Body: strPtr("Target service not found for the given path."),
		}))
	}

	resp := e.doLocalRequest(ctx, svc, data.Method, localPath, data.Headers, data.Body)
	return send(protocol.NewHTTPResponseFrame(f.RequestID, resp))
}

func (e *Executor) doLocalRequest(ctx context.Context, svc config.ServiceConfig, method, path string, headers map[string]string, body *string) protocol.HTTPResponseData {
	contentType := lookupHeader(headers, "Content-Type")
	bodyBytes := protocol.DecodeBody(body, contentType)

	host := svc.LocalHost
	if host == "" {
		host = "127.0.0.1"
	}
	target := fmt.Sprintf("http://%s:%d%s", host, svc.LocalPort, path)

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return protocol.HTTPResponseData{Status: http.StatusBadGateway, Body: strPtr("failed to build local request: " + err.Error())}
	}
	for k, v := range headers {
		if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return protocol.HTTPResponseData{Status: classifyDialError(err), Body: strPtr(err.Error())}
	}
	defer resp.Body.Close()

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	if protocol.IsBodylessStatus(resp.StatusCode) {
		return protocol.HTTPResponseData{Status: resp.StatusCode, Headers: respHeaders}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.HTTPResponseData{Status: http.StatusBadGateway, Body: strPtr("failed to read local response: " + err.Error())}
	}
	return protocol.HTTPResponseData{
		Status:  resp.StatusCode,
		Headers: respHeaders,
		Body:    protocol.EncodeBody(respBody, respHeaders["Content-Type"]),
	}
}

// HandlePing issues a HEAD request against the first configured HTTP
// service and always replies with pong.
func (e *Executor) HandlePing(ctx context.Context, send func(protocol.Frame) error, f protocol.Frame) {
	status := e.probeFirstHTTPService(ctx)
	_ = send(protocol.NewPongFrame(f.HealthCheckJobID, status))
}

func (e *Executor) probeFirstHTTPService(ctx context.Context) string {
	var svc *config.ServiceConfig
	for i := range e.services {
		if e.services[i].Type == protocol.ServiceHTTP {
			svc = &e.services[i]
			break
		}
	}
	if svc == nil {
		return protocol.StatusUnconfigured
	}

	host := svc.LocalHost
	if host == "" {
		host = "127.0.0.1"
	}
	target := fmt.Sprintf("http://%s:%d/", host, svc.LocalPort)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pingCtx, http.MethodHead, target, nil)
	if err != nil {
		return protocol.StatusError
	}

	resp, err := e.pingClient.Do(req)
	if err != nil {
		if pingCtx.Err() != nil {
			return protocol.StatusTimeout
		}
		return protocol.StatusError
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return protocol.StatusError
	}
	return protocol.StatusOK
}

// matchService scans services in configuration order; the first whose
// /subdomainOrPath equals the request path, or is followed in it by '/',
// wins. A prefix that ends mid-segment ("/api" against "/apix") does not
// match.
func matchService(services []config.ServiceConfig, path string) (config.ServiceConfig, string, bool) {
	for _, svc := range services {
		prefix := "/" + strings.Trim(svc.SubdomainOrPath, "/")
		if path == prefix {
			return svc, "/", true
		}
		if strings.HasPrefix(path, prefix+"/") {
			rem := strings.TrimPrefix(path, prefix)
			if rem == "" {
				rem = "/"
			}
			return svc, rem, true
		}
	}
	return config.ServiceConfig{}, "", false
}

func classifyDialError(err error) int {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if strings.Contains(opErr.Error(), "connection refused") {
			return http.StatusServiceUnavailable
		}
	}
	if strings.Contains(err.Error(), "connection refused") {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func lookupHeader(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func strPtr(s string) *string { return &s }
