package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/tunnelmesh/relay/internal/protocol"
)

var errSocketClosed = errors.New("control socket closed")

// controlSocket adapts a single agent's *websocket.Conn to the
// registry.Socket interface the Active-Socket Table needs, and owns the
// write-serialization every control connection requires: concurrent writers
// must not interleave frames on the same connection.
type controlSocket struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	open    atomic.Bool

	tunnelID string
	apiKey   string
}

func newControlSocket(conn *websocket.Conn) *controlSocket {
	s := &controlSocket{conn: conn}
	s.open.Store(true)
	return s
}

func (s *controlSocket) IsOpen() bool { return s.open.Load() }

func (s *controlSocket) markClosed() { s.open.Store(false) }

func (s *controlSocket) Send(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.IsOpen() {
		return errSocketClosed
	}
	return s.conn.Write(context.Background(), websocket.MessageText, frame)
}

func (s *controlSocket) sendFrame(f protocol.Frame) error {
	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}
	return s.Send(data)
}
