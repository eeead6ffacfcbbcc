// Package agent implements the agent-side components of the tunnel fleet:
// the connector that maintains the persistent control connection (C9), and
// the request executor that bridges tunneled calls to local services
// (C10). The connect/message loop and backoff-with-jitter shape follow the
// ekaya-engine tunnel.Client, adapted to this protocol's frame shapes and
// multi-service routing.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/tunnelmesh/relay/internal/config"
	"github.com/tunnelmesh/relay/internal/logging"
	"github.com/tunnelmesh/relay/internal/protocol"
)

// State is the connector's lifecycle stage.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateRegistered State = "registered"
	StateClosed     State = "closed"
)

const heartbeatInterval = 25 * time.Second

// errTerminal marks a connectAndServe failure the connector must not retry:
// an error frame containing "Failed to register tunnel" is non-retryable.
var errTerminal = errors.New("tunnel registration rejected")

// Options configures a Connector.
type Options struct {
	RelayURL string // ws:// or wss://, e.g. wss://relay.example.com
	APIKey   string
	Services []config.ServiceConfig
	Logger   logging.Logger

	// OnReady is called once per connection after registered/reconnected is
	// received.
	OnReady func(tunnelID, publicBaseURL string)
}

// Connector drives one agent's control connection for the process lifetime,
// reconnecting with backoff across drops (C9).
type Connector struct {
	opts     Options
	executor *Executor

	mu            sync.RWMutex
	state         State
	tunnelID      string
	publicBaseURL string
}

func NewConnector(opts Options) *Connector {
	if opts.Logger == nil {
		opts.Logger, _ = logging.NewLogger(logging.Options{})
	}
	return &Connector{
		opts:     opts,
		executor: NewExecutor(opts.Services, opts.Logger),
		state:    StateIdle,
	}
}

func (c *Connector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run blocks until ctx is cancelled or a terminal failure occurs,
// reconnecting with exponential backoff (1s, 2s, 4s, ... capped at 30s,
// reset to 0 on every successful Open) between drops.
func (c *Connector) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateConnecting)
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return nil
		}
		if errors.Is(err, errTerminal) {
			c.setState(StateClosed)
			c.opts.Logger.Error("tunnel registration rejected, giving up", "err", err.Error())
			return err
		}

		if s := c.State(); s == StateOpen || s == StateRegistered {
			attempt = 0
		}
		backoff := reconnectBackoff(attempt)
		attempt++
		c.opts.Logger.Warn("control connection dropped, reconnecting", "err", errString(err), "attempt", attempt, "backoff", backoff.String())

		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return nil
		case <-time.After(backoff):
		}
	}
}

// reconnectBackoff computes delay = min(30s, 2^retry * 1s) with jitter.
func reconnectBackoff(attempt int) time.Duration {
	seconds := math.Min(30, math.Pow(2, float64(attempt)))
	jitter := seconds * 0.2 * (rand.Float64()*2 - 1) //nolint:gosec
	d := time.Duration((seconds + jitter) * float64(time.Second))
	if d < 0 {
		d = 0
	}
	return d
}

func (c *Connector) connectAndServe(ctx context.Context) error {
	c.mu.RLock()
	existingTunnelID := c.tunnelID
	c.mu.RUnlock()

	wsURL, err := c.buildURL(existingTunnelID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c.setState(StateOpen)

	var writeMu sync.Mutex
	send := func(f protocol.Frame) error {
		data, err := protocol.EncodeFrame(f)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.Write(ctx, websocket.MessageText, data)
	}

	if existingTunnelID == "" {
		services := make([]protocol.ServiceSpec, 0, len(c.opts.Services))
		for _, svc := range c.opts.Services {
			services = append(services, protocol.ServiceSpec{
				Type:            svc.Type,
				LocalPort:       svc.LocalPort,
				SubdomainOrPath: svc.SubdomainOrPath,
			})
		}
		if err := send(protocol.NewRegisterFrame(services)); err != nil {
			return fmt.Errorf("send register: %w", err)
		}
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeatLoop(hbCtx, send)

	return c.messageLoop(ctx, send, conn)
}

func (c *Connector) buildURL(tunnelID string) (string, error) {
	base := strings.TrimRight(c.opts.RelayURL, "/")
	path := "/tunnel/connect"
	if tunnelID != "" {
		path += "/" + tunnelID
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.opts.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Connector) heartbeatLoop(ctx context.Context, send func(protocol.Frame) error) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = send(protocol.NewHeartbeatFrame())
		}
	}
}

// messageLoop dispatches every frame the relay sends until the transport
// closes.
func (c *Connector) messageLoop(ctx context.Context, send func(protocol.Frame) error, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			c.opts.Logger.Warn("malformed frame from relay", "err", err.Error())
			continue
		}

		switch f.Type {
		case protocol.TypeRegistered:
			var data protocol.RegisteredData
			if err := f.DecodeData(&data); err != nil {
				c.opts.Logger.Warn("malformed registered frame", "err", err.Error())
				continue
			}
			c.mu.Lock()
			c.tunnelID = data.TunnelID
			c.publicBaseURL = data.PublicBaseURL
			c.mu.Unlock()
			c.setState(StateRegistered)
			if c.opts.OnReady != nil {
				c.opts.OnReady(data.TunnelID, data.PublicBaseURL)
			}
		case protocol.TypeReconnected:
			var data protocol.ReconnectedData
			if err := f.DecodeData(&data); err != nil {
				c.opts.Logger.Warn("malformed reconnected frame", "err", err.Error())
				continue
			}
			c.setState(StateRegistered)
			if c.opts.OnReady != nil {
				c.opts.OnReady(data.TunnelID, c.publicBaseURLLocked())
			}
		case protocol.TypeHeartbeatAck:
			// no-op
		case protocol.TypeError:
			if strings.Contains(f.Error, "Failed to register tunnel") {
				return fmt.Errorf("%w: %s", errTerminal, f.Error)
			}
			c.opts.Logger.Warn("error frame from relay", "request_id", f.RequestID, "message", f.Error)
		case protocol.TypeHTTPRequest:
			frame := *f
			go func() {
				if err := c.executor.HandleHTTPRequest(ctx, send, frame); err != nil {
					c.opts.Logger.Warn("http request handling failed", "request_id", frame.RequestID, "err", err.Error())
				}
			}()
		case protocol.TypePing:
			frame := *f
			go c.executor.HandlePing(ctx, send, frame)
		default:
			c.opts.Logger.Warn("unexpected frame from relay", "type", f.Type)
		}
	}
}

func (c *Connector) publicBaseURLLocked() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publicBaseURL
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
