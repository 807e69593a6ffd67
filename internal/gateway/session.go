package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/smarthome-gateway/internal/broker"
)

// SessionState is the lifecycle phase of a device session.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateIdentified
	StateActive
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

const handshakeErrorMessage = "device_id required in first message"

// Publisher receives a copy of telemetry for downstream analytics.
// Publish must not block.
type Publisher interface {
	Publish(channel string, payload map[string]any)
}

// Hooks are optional callbacks run on the session goroutine. They must not
// block for long; they run between frames of the same device.
type Hooks struct {
	OnDeviceConnected    func(ctx context.Context, deviceID string)
	OnDeviceDisconnected func(ctx context.Context, deviceID string)
	OnTelemetry          func(ctx context.Context, deviceID, channel string, data map[string]any)
}

// Options configures a Gateway. All fields are optional.
type Options struct {
	Publisher Publisher
	Hooks     Hooks
	Logger    Logger
}

// Gateway wires the registry, state cache, broadcaster and dispatcher
// together and runs the per-connection session protocol.
type Gateway struct {
	registry    *Registry
	cache       *StateCache
	broadcaster *Broadcaster
	dispatcher  *Dispatcher
	publisher   Publisher
	hooks       Hooks
	logger      Logger
}

// New creates a Gateway with empty registry and cache.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	registry := NewRegistry()
	registry.SetLogger(logger)
	broadcaster := NewBroadcaster(registry)
	broadcaster.SetLogger(logger)
	dispatcher := NewDispatcher(registry)
	dispatcher.SetLogger(logger)

	return &Gateway{
		registry:    registry,
		cache:       NewStateCache(),
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		publisher:   opts.Publisher,
		hooks:       opts.Hooks,
		logger:      logger,
	}
}

// Registry returns the connection registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// Cache returns the device state cache.
func (g *Gateway) Cache() *StateCache { return g.cache }

// SendCommand delivers cmd to its device. See Dispatcher.SendCommand.
func (g *Gateway) SendCommand(ctx context.Context, cmd Command) error {
	return g.dispatcher.SendCommand(ctx, cmd)
}

// Close disconnects every device and client.
func (g *Gateway) Close() {
	g.registry.CloseAll()
}

// ServeDevice runs the device session protocol on conn until the connection
// ends or ctx is cancelled. The connection is always closed on return.
//
// The first frame must be a JSON object with a non-empty string device_id.
// After the handshake each frame is merged into the state cache, broadcast
// to clients as sensor_data and mirrored to the publisher.
//
// A normal close returns nil. A bad handshake returns ErrInvalidHandshake
// and a non-object frame returns ErrMalformedFrame.
func (g *Gateway) ServeDevice(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() }) //nolint:errcheck // unblocks Receive
	defer stop()

	state := StateConnecting

	first, err := conn.Receive()
	if err != nil {
		_ = conn.Close() //nolint:errcheck // never registered
		return normalClose(err)
	}

	deviceID, ok := parseHandshake(first)
	if !ok {
		g.logger.Warn("device handshake rejected", "state", state.String())
		if data, err := json.Marshal(map[string]string{"error": handshakeErrorMessage}); err == nil {
			_ = conn.Send(data) //nolint:errcheck // closing regardless
		}
		_ = conn.Close() //nolint:errcheck // rejected
		return ErrInvalidHandshake
	}
	state = StateIdentified

	sess := newDeviceSession(deviceID, conn)
	logger := loggerWith(g.logger, "device_id", deviceID)

	// Hold the send lock across registration and confirmation so no command
	// or broadcast reaches the device ahead of its confirmation frame.
	sess.sendMu.Lock()
	g.registry.insertDevice(sess)
	confirm, _ := json.Marshal(map[string]string{"status": "connected", "device_id": deviceID}) //nolint:errcheck // static shape
	err = sess.sendLocked(confirm)
	sess.sendMu.Unlock()

	connected := false
	defer func() {
		released := g.registry.releaseDevice(sess)
		_ = conn.Close() //nolint:errcheck // teardown
		if connected && released && g.hooks.OnDeviceDisconnected != nil {
			g.hooks.OnDeviceDisconnected(context.WithoutCancel(ctx), deviceID)
		}
		logger.Info("device disconnected", "state", StateDisconnected.String(), "replaced", !released)
	}()

	if err != nil {
		logger.Warn("device confirmation failed", "error", err)
		return err
	}

	connected = true
	logger.Info("device connected", "state", state.String())
	if g.hooks.OnDeviceConnected != nil {
		g.hooks.OnDeviceConnected(ctx, deviceID)
	}
	state = StateActive

	for {
		frame, err := conn.Receive()
		if err != nil {
			return normalClose(err)
		}

		var payload map[string]any
		if err := json.Unmarshal(frame, &payload); err != nil || payload == nil {
			logger.Warn("malformed frame from device", "state", state.String())
			return ErrMalformedFrame
		}

		g.IngestTelemetry(ctx, deviceID, payload, broker.ChannelDeviceTelemetry, SensorDataEvent)
	}
}

// IngestTelemetry applies a reading that arrived outside a device session,
// such as the HTTP ingestion endpoints. It behaves like a device frame but
// lets the caller choose the broadcast event.
func (g *Gateway) IngestTelemetry(ctx context.Context, deviceID string, data map[string]any,
	channel string, event func(string, map[string]any) Event) DeviceState {
	st := g.cache.Update(deviceID, data)
	g.broadcaster.Broadcast(event(deviceID, data))
	g.publish(channel, deviceID, data)
	if g.hooks.OnTelemetry != nil {
		g.hooks.OnTelemetry(ctx, deviceID, channel, data)
	}
	return st
}

func (g *Gateway) publish(channel, deviceID string, data map[string]any) {
	if g.publisher == nil {
		return
	}
	msg := make(map[string]any, len(data)+1)
	for k, v := range data {
		msg[k] = v
	}
	msg["device_id"] = deviceID
	g.publisher.Publish(channel, msg)
}

// ServeClient runs the dashboard client protocol on conn until the
// connection ends or ctx is cancelled. The client first receives the list
// of online devices; each frame it sends afterwards is echoed back.
func (g *Gateway) ServeClient(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() }) //nolint:errcheck // unblocks Receive
	defer stop()

	sess := newClientSession(conn)

	sess.sendMu.Lock()
	g.registry.insertClient(sess)
	snapshot, _ := json.Marshal(map[string]any{ //nolint:errcheck // static shape
		"status":            "connected",
		"connected_devices": g.registry.ListOnline(),
	})
	err := sess.sendLocked(snapshot)
	sess.sendMu.Unlock()

	defer func() {
		g.registry.UnregisterClient(conn)
		_ = conn.Close() //nolint:errcheck // teardown
		g.logger.Debug("client disconnected", "client_id", sess.ID)
	}()

	if err != nil {
		return err
	}
	g.logger.Info("client connected", "client_id", sess.ID)

	for {
		frame, err := conn.Receive()
		if err != nil {
			return normalClose(err)
		}

		reply, err := json.Marshal(map[string]json.RawMessage{"echo": echoValue(frame)})
		if err != nil {
			continue
		}
		if err := sess.send(reply); err != nil {
			return err
		}
	}
}

// echoValue returns frame as JSON if it already is JSON, otherwise as a
// JSON string.
func echoValue(frame []byte) json.RawMessage {
	if json.Valid(frame) {
		return frame
	}
	quoted, _ := json.Marshal(string(frame)) //nolint:errcheck // strings always encode
	return quoted
}

// parseHandshake extracts device_id from the first frame.
func parseHandshake(frame []byte) (string, bool) {
	var hello map[string]any
	if err := json.Unmarshal(frame, &hello); err != nil || hello == nil {
		return "", false
	}
	id, ok := hello["device_id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// normalClose maps ErrConnectionClosed to a nil error.
func normalClose(err error) error {
	if errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}

func loggerWith(l Logger, args ...any) Logger {
	return prefixedLogger{Logger: l, args: args}
}

// prefixedLogger appends fixed attributes to every call.
type prefixedLogger struct {
	Logger
	args []any
}

func (p prefixedLogger) with(args []any) []any {
	return slices.Concat(args, p.args)
}

func (p prefixedLogger) Debug(msg string, args ...any) { p.Logger.Debug(msg, p.with(args)...) }
func (p prefixedLogger) Info(msg string, args ...any)  { p.Logger.Info(msg, p.with(args)...) }
func (p prefixedLogger) Warn(msg string, args ...any)  { p.Logger.Warn(msg, p.with(args)...) }
func (p prefixedLogger) Error(msg string, args ...any) { p.Logger.Error(msg, p.with(args)...) }
