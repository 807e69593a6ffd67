package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Command names understood by the lighting controller firmware.
const (
	CommandDimmer          = "dimmer"
	CommandDaylightHarvest = "daylight_harvest"
	commandRelayPrefix     = "relay"
)

// Relay channel bounds.
const (
	MinRelayChannel = 1
	MaxRelayChannel = 4
)

// Command is a control instruction for one device. It is serialised as
// {"command": Name, "value": Value}.
type Command struct {
	DeviceID string
	Name     string
	Value    int
}

// Payload returns the wire form of the command.
func (c Command) Payload() map[string]any {
	return map[string]any{
		"command": c.Name,
		"value":   c.Value,
	}
}

// Validate checks that the command has a target and a name.
func (c Command) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidCommand)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: command name is required", ErrInvalidCommand)
	}
	return nil
}

// DimmerCommand sets the dimmer output to brightness percent (0-100).
func DimmerCommand(deviceID string, brightness int) (Command, error) {
	if brightness < 0 || brightness > 100 {
		return Command{}, fmt.Errorf("%w: brightness %d outside 0-100", ErrInvalidCommand, brightness)
	}
	return Command{DeviceID: deviceID, Name: CommandDimmer, Value: brightness}, nil
}

// RelayCommand switches relay channel (1-4) on or off.
func RelayCommand(deviceID string, channel int, on bool) (Command, error) {
	if channel < MinRelayChannel || channel > MaxRelayChannel {
		return Command{}, fmt.Errorf("%w: relay channel %d outside %d-%d",
			ErrInvalidCommand, channel, MinRelayChannel, MaxRelayChannel)
	}
	return Command{
		DeviceID: deviceID,
		Name:     fmt.Sprintf("%s%d", commandRelayPrefix, channel),
		Value:    boolToInt(on),
	}, nil
}

// DaylightHarvestCommand enables or disables daylight harvesting.
func DaylightHarvestCommand(deviceID string, enabled bool) (Command, error) {
	return Command{DeviceID: deviceID, Name: CommandDaylightHarvest, Value: boolToInt(enabled)}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Dispatcher delivers commands to connected devices.
//
// Delivery is at-most-once: one send attempt per call, no retry, no
// acknowledgement. A nil error means the frame was handed to the transport.
type Dispatcher struct {
	registry *Registry
	logger   Logger
}

// NewDispatcher creates a dispatcher over the registry's device sessions.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SendCommand serialises cmd and writes it to the device's session.
//
// Returns ErrDeviceOffline if the device has no session. If the write
// fails, the session is evicted and closed, and the returned error matches
// both ErrDeviceOffline and ErrTransportSend.
func (d *Dispatcher) SendCommand(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	sess, ok := d.registry.deviceSession(cmd.DeviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceOffline, cmd.DeviceID)
	}

	data, err := json.Marshal(cmd.Payload())
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrInvalidCommand, err)
	}

	if err := sess.send(data); err != nil {
		d.registry.releaseDevice(sess)
		_ = sess.Conn.Close() //nolint:errcheck // evicting, best-effort
		d.logger.Warn("command send failed, device evicted",
			"device_id", cmd.DeviceID, "command", cmd.Name, "error", err)
		return fmt.Errorf("%w: %w", ErrDeviceOffline, err)
	}

	d.logger.Debug("command sent", "device_id", cmd.DeviceID, "command", cmd.Name, "value", cmd.Value)
	return nil
}
