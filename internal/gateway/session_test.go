package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-gateway/internal/broker"
)

// serve runs ServeDevice in the background and returns a channel with its result.
func serve(g *Gateway, ctx context.Context, conn Conn) <-chan error {
	done := make(chan error, 1)
	go func() { done <- g.ServeDevice(ctx, conn) }()
	return done
}

func result(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

// ===== Device handshake =====

func TestServeDevice_Handshake(t *testing.T) {
	g := New(Options{})
	conn := newFakeConn()
	done := serve(g, context.Background(), conn)

	conn.deliver(t, map[string]any{"device_id": "lamp-1", "firmware": "1.2.0"})

	msg := conn.nextSent(t)
	if msg["status"] != "connected" || msg["device_id"] != "lamp-1" {
		t.Errorf("confirmation = %v", msg)
	}
	if !g.Registry().IsOnline("lamp-1") {
		t.Error("device should be online after handshake")
	}
	if _, ok := g.Cache().Get("lamp-1"); ok {
		t.Error("handshake frame should not populate the cache")
	}

	conn.Close()
	if err := result(t, done); err != nil {
		t.Errorf("ServeDevice() after normal close = %v, want nil", err)
	}
	if g.Registry().IsOnline("lamp-1") {
		t.Error("device should be offline after disconnect")
	}
}

func TestServeDevice_InvalidHandshake(t *testing.T) {
	tests := []struct {
		name  string
		frame any
	}{
		{"not json", "hello"},
		{"json array", `[1,2,3]`},
		{"missing id", map[string]any{"temperature": 20}},
		{"empty id", map[string]any{"device_id": ""}},
		{"numeric id", map[string]any{"device_id": 42}},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Options{})
			conn := newFakeConn()
			done := serve(g, context.Background(), conn)

			conn.deliver(t, tt.frame)

			msg := conn.nextSent(t)
			if msg["error"] != handshakeErrorMessage {
				t.Errorf("error frame = %v", msg)
			}
			if err := result(t, done); !errors.Is(err, ErrInvalidHandshake) {
				t.Errorf("ServeDevice() = %v, want ErrInvalidHandshake", err)
			}
			if !conn.isClosed() {
				t.Error("connection should be closed")
			}
			if g.Registry().DeviceCount() != 0 || g.Cache().Len() != 0 {
				t.Error("rejected handshake must not touch registry or cache")
			}
		})
	}
}

// ===== Telemetry =====

func TestServeDevice_TelemetryFlow(t *testing.T) {
	pub := &recordingPublisher{}
	var hookMu sync.Mutex
	var hooked []string
	g := New(Options{
		Publisher: pub,
		Hooks: Hooks{
			OnTelemetry: func(_ context.Context, id, _ string, _ map[string]any) {
				hookMu.Lock()
				hooked = append(hooked, id)
				hookMu.Unlock()
			},
		},
	})

	client := newFakeConn()
	g.Registry().RegisterClient(client)

	conn := newFakeConn()
	done := serve(g, context.Background(), conn)
	conn.deliver(t, map[string]any{"device_id": "env-1"})
	conn.nextSent(t)

	conn.deliver(t, map[string]any{"temperature": 21.5, "humidity": 40.0})
	conn.deliver(t, map[string]any{"temperature": 22.0})

	first := client.nextSent(t)
	second := client.nextSent(t)
	if first["type"] != EventSensorData || first["device_id"] != "env-1" {
		t.Errorf("first event = %v", first)
	}
	if data := second["data"].(map[string]any); data["temperature"] != 22.0 {
		t.Errorf("events out of order: second = %v", second)
	}

	st, ok := g.Cache().Get("env-1")
	if !ok {
		t.Fatal("cache has no state for env-1")
	}
	if st.Fields["temperature"] != 22.0 || st.Fields["humidity"] != 40.0 {
		t.Errorf("merged state = %v", st.Fields)
	}

	waitFor(t, "publisher", func() bool { return pub.count() == 2 })
	pub.mu.Lock()
	if pub.channels[0] != broker.ChannelDeviceTelemetry || pub.payloads[0]["device_id"] != "env-1" {
		t.Errorf("published %s %v", pub.channels[0], pub.payloads[0])
	}
	pub.mu.Unlock()

	hookMu.Lock()
	if len(hooked) != 2 {
		t.Errorf("telemetry hook ran %d times, want 2", len(hooked))
	}
	hookMu.Unlock()

	conn.Close()
	result(t, done)
}

func TestServeDevice_MalformedFrame(t *testing.T) {
	g := New(Options{})
	conn := newFakeConn()
	done := serve(g, context.Background(), conn)

	conn.deliver(t, map[string]any{"device_id": "lamp-1"})
	conn.nextSent(t)
	conn.deliver(t, "{not json")

	if err := result(t, done); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("ServeDevice() = %v, want ErrMalformedFrame", err)
	}
	if g.Registry().IsOnline("lamp-1") {
		t.Error("device should be unregistered after malformed frame")
	}
	if !conn.isClosed() {
		t.Error("connection should be closed")
	}
}

// ===== Replacement =====

func TestServeDevice_ReconnectReplacesSession(t *testing.T) {
	var mu sync.Mutex
	var disconnects int
	g := New(Options{Hooks: Hooks{
		OnDeviceDisconnected: func(context.Context, string) {
			mu.Lock()
			disconnects++
			mu.Unlock()
		},
	}})

	oldConn := newFakeConn()
	oldDone := serve(g, context.Background(), oldConn)
	oldConn.deliver(t, map[string]any{"device_id": "lamp-1"})
	oldConn.nextSent(t)

	newConn := newFakeConn()
	newDone := serve(g, context.Background(), newConn)
	newConn.deliver(t, map[string]any{"device_id": "lamp-1"})
	newConn.nextSent(t)

	oldConn.waitClosed(t)
	result(t, oldDone)

	got, ok := g.Registry().DeviceConn("lamp-1")
	if !ok || got != newConn {
		t.Fatal("stale session teardown evicted the replacement")
	}
	mu.Lock()
	if disconnects != 0 {
		t.Errorf("replaced session fired %d disconnect hooks, want 0", disconnects)
	}
	mu.Unlock()

	cmd, _ := DimmerCommand("lamp-1", 30)
	if err := g.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("SendCommand() to replacement = %v", err)
	}
	if msg := newConn.nextSent(t); msg["command"] != "dimmer" {
		t.Errorf("replacement got %v", msg)
	}

	newConn.Close()
	result(t, newDone)
	mu.Lock()
	if disconnects != 1 {
		t.Errorf("disconnect hooks = %d, want 1", disconnects)
	}
	mu.Unlock()
}

func TestServeDevice_ContextCancel(t *testing.T) {
	g := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	conn := newFakeConn()
	done := serve(g, ctx, conn)

	conn.deliver(t, map[string]any{"device_id": "lamp-1"})
	conn.nextSent(t)

	cancel()
	if err := result(t, done); err != nil {
		t.Errorf("ServeDevice() after cancel = %v, want nil", err)
	}
	if g.Registry().IsOnline("lamp-1") {
		t.Error("device should be offline after cancel")
	}
}

// ===== Clients =====

func TestServeClient_SnapshotAndEcho(t *testing.T) {
	g := New(Options{})
	g.Registry().RegisterDevice("lamp-2", newFakeConn())
	g.Registry().RegisterDevice("env-1", newFakeConn())

	conn := newFakeConn()
	done := make(chan error, 1)
	go func() { done <- g.ServeClient(context.Background(), conn) }()

	snap := conn.nextSent(t)
	if snap["status"] != "connected" {
		t.Errorf("snapshot = %v", snap)
	}
	devices, _ := snap["connected_devices"].([]any)
	if len(devices) != 2 || devices[0] != "env-1" || devices[1] != "lamp-2" {
		t.Errorf("connected_devices = %v, want [env-1 lamp-2]", snap["connected_devices"])
	}

	conn.deliver(t, map[string]any{"ping": 1})
	echo := conn.nextSent(t)
	inner, _ := echo["echo"].(map[string]any)
	if inner["ping"] != 1.0 {
		t.Errorf("echo = %v", echo)
	}

	conn.deliver(t, "plain text")
	if echo := conn.nextSent(t); echo["echo"] != "plain text" {
		t.Errorf("text echo = %v", echo)
	}

	if g.Cache().Len() != 0 {
		t.Error("client frames must not mutate device state")
	}

	conn.Close()
	if err := result(t, done); err != nil {
		t.Errorf("ServeClient() = %v, want nil", err)
	}
	if g.Registry().ClientCount() != 0 {
		t.Error("client should be unregistered")
	}
}

func TestServeClient_SnapshotPrecedesBroadcast(t *testing.T) {
	g := New(Options{})
	conn := newFakeConn()
	go g.ServeClient(context.Background(), conn) //nolint:errcheck

	waitFor(t, "client registration", func() bool { return g.Registry().ClientCount() == 1 })
	g.broadcaster.Broadcast(SensorDataEvent("env-1", map[string]any{"t": 1.0}))

	if first := conn.nextSent(t); first["status"] != "connected" {
		t.Errorf("first frame = %v, want snapshot", first)
	}
	if second := conn.nextSent(t); second["type"] != EventSensorData {
		t.Errorf("second frame = %v, want sensor_data", second)
	}
	conn.Close()
}
