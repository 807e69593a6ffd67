package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/smarthome-gateway/internal/gateway"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/config"
)

// closeGracePeriod bounds the close frame written when a session ends.
const closeGracePeriod = time.Second

// wsConn adapts a gorilla connection to gateway.Conn.
//
// The gateway serialises Send calls per session and runs Receive on one
// goroutine, which matches gorilla's one-writer/one-reader rule. Close may
// be called from any goroutine.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, cfg config.WebSocketConfig) *wsConn {
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	// The HTTP server's read timeout must not apply to a long-lived session.
	_ = conn.SetReadDeadline(time.Time{}) //nolint:errcheck // zero deadline cannot fail meaningfully
	return &wsConn{
		conn:         conn,
		writeTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
}

// Send writes one text frame.
func (c *wsConn) Send(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("setting write deadline: %w", err)
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return mapCloseError(err)
	}
	return nil
}

// Receive returns the next text or binary frame. A close handshake from the
// peer, or a local Close, is reported as gateway.ErrConnectionClosed.
func (c *wsConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, mapCloseError(err)
	}
	return data, nil
}

// Close sends a best-effort close frame and closes the socket. Idempotent.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		//nolint:errcheck // peer may already be gone
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// mapCloseError turns the ways a session normally ends into
// gateway.ErrConnectionClosed.
func mapCloseError(err error) error {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		return fmt.Errorf("%w: %w", gateway.ErrConnectionClosed, err)
	case errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrCloseSent):
		return fmt.Errorf("%w: %w", gateway.ErrConnectionClosed, err)
	default:
		return err
	}
}

// checkWebSocketOrigin accepts requests without an Origin header (field
// devices) and browser requests from an allowed CORS origin.
func (s *Server) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.isAllowedOrigin(origin)
}

// handleDeviceWebSocket upgrades a field device connection and runs the
// device session until it ends.
func (s *Server) handleDeviceWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("device websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	err = s.gateway.ServeDevice(r.Context(), newWSConn(conn, s.wsCfg))
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrInvalidHandshake):
		s.logger.Warn("device rejected", "error", err, "remote", r.RemoteAddr)
	default:
		s.logger.Warn("device session ended with error", "error", err, "remote", r.RemoteAddr)
	}
}

// handleClientWebSocket upgrades a dashboard connection and runs the client
// session until it ends.
func (s *Server) handleClientWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("client websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	if err := s.gateway.ServeClient(r.Context(), newWSConn(conn, s.wsCfg)); err != nil {
		s.logger.Debug("client session ended with error", "error", err, "remote", r.RemoteAddr)
	}
}
