package gateway

import (
	"encoding/json"
	"time"
)

// Event types pushed to dashboard clients.
const (
	EventSensorData   = "sensor_data"
	EventLightingData = "lighting_data"
)

// BroadcastTimeKey is the field Broadcast stamps on every outgoing event.
const BroadcastTimeKey = "broadcast_time"

// Event is a JSON object fanned out to every dashboard client.
type Event map[string]any

// SensorDataEvent builds the event sent when a device reports telemetry.
func SensorDataEvent(deviceID string, data map[string]any) Event {
	return Event{
		"type":      EventSensorData,
		"device_id": deviceID,
		"data":      data,
	}
}

// LightingDataEvent builds the event sent for lighting readings ingested
// over HTTP.
func LightingDataEvent(deviceID string, data map[string]any) Event {
	return Event{
		"type":      EventLightingData,
		"device_id": deviceID,
		"data":      data,
	}
}

// Broadcaster fans events out to every registered client.
type Broadcaster struct {
	registry *Registry
	logger   Logger
	now      func() time.Time
}

// NewBroadcaster creates a broadcaster over the registry's client set.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the broadcaster.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.logger = logger
}

// Broadcast sends event to every client registered at the moment of the
// call. The event is not modified; a copy is stamped with broadcast_time and
// serialised once.
//
// Clients whose send fails are removed from the registry and closed after
// the whole pass completes, so one dead client never prevents delivery to
// the others.
func (b *Broadcaster) Broadcast(event Event) {
	clients := b.registry.Clients()
	if len(clients) == 0 {
		return
	}

	msg := make(map[string]any, len(event)+1)
	for k, v := range event {
		msg[k] = v
	}
	msg[BroadcastTimeKey] = b.now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal broadcast event", "type", event["type"], "error", err)
		return
	}

	var failed []*ClientSession
	for _, client := range clients {
		if err := client.send(data); err != nil {
			b.logger.Debug("broadcast to client failed", "client_id", client.ID, "error", err)
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		b.registry.UnregisterClient(client.Conn)
		_ = client.Conn.Close() //nolint:errcheck // already failed, best-effort
	}

	b.logger.Debug("broadcast sent", "type", event["type"],
		"recipients", len(clients)-len(failed), "failed", len(failed))
}
