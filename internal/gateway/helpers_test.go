package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// Receive; frames written with Send are recorded.
type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	sentCh  chan []byte

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sentCh:  make(chan []byte, 64),
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return errors.New("fake: send on closed connection")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	frame := append([]byte(nil), data...)
	c.sent = append(c.sent, frame)
	select {
	case c.sentCh <- frame:
	default:
	}
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, ErrConnectionClosed
	case f := <-c.inbound:
		return f, nil
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) deliver(t *testing.T, v any) {
	t.Helper()
	var data []byte
	switch b := v.(type) {
	case string:
		data = []byte(b)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal frame: %v", err)
		}
	}
	c.inbound <- data
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// nextSent waits for the next frame written to the connection and decodes it.
func (c *fakeConn) nextSent(t *testing.T) map[string]any {
	t.Helper()
	select {
	case frame := <-c.sentCh:
		var msg map[string]any
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("decode sent frame %q: %v", frame, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}

// recordingPublisher captures Publish calls.
type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []map[string]any
}

func (p *recordingPublisher) Publish(channel string, payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
