package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is one side of a persistent, message-framed, bidirectional connection.
//
// Implementations must allow Close to be called concurrently with Send and
// Receive, and more than once. Receive returns ErrConnectionClosed (possibly
// wrapped) when the peer closes normally.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceSession is the registry entry for one connected device.
type DeviceSession struct {
	DeviceID    string
	Conn        Conn
	ConnectedAt time.Time

	// sendMu serialises writes to Conn.
	sendMu sync.Mutex
}

func newDeviceSession(id string, conn Conn) *DeviceSession {
	return &DeviceSession{
		DeviceID:    id,
		Conn:        conn,
		ConnectedAt: time.Now().UTC(),
	}
}

// send writes one frame while holding the session's send lock.
func (s *DeviceSession) send(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sendLocked(data)
}

func (s *DeviceSession) sendLocked(data []byte) error {
	if err := s.Conn.Send(data); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportSend, err)
	}
	return nil
}

// ClientSession is the registry entry for one connected dashboard client.
type ClientSession struct {
	ID          string
	Conn        Conn
	ConnectedAt time.Time

	sendMu sync.Mutex
}

func newClientSession(conn Conn) *ClientSession {
	return &ClientSession{
		ID:          uuid.NewString(),
		Conn:        conn,
		ConnectedAt: time.Now().UTC(),
	}
}

func (s *ClientSession) send(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sendLocked(data)
}

func (s *ClientSession) sendLocked(data []byte) error {
	if err := s.Conn.Send(data); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportSend, err)
	}
	return nil
}
