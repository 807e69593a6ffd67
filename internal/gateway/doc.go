// Package gateway is the real-time core of the smart home gateway.
//
// It keeps one live session per field device, fans telemetry out to
// dashboard clients, and delivers control commands back to devices.
//
//   - Registry: device ID to session map plus the dashboard client set
//   - StateCache: last merged reading per device
//   - Broadcaster: one event to every client, dead clients pruned afterwards
//   - Dispatcher: at-most-once command delivery to a device
//   - Gateway: ServeDevice and ServeClient, the per-connection protocols
//
// The package is transport agnostic. Anything that implements Conn can be
// served; internal/api adapts gorilla/websocket connections.
//
// Device protocol:
//
//	device -> {"device_id": "lamp-1", ...}
//	gateway -> {"status": "connected", "device_id": "lamp-1"}
//	device -> {"temperature": 21.5}            (repeated)
//	gateway -> {"command": "dimmer", "value": 40}  (any time)
//
// Client protocol:
//
//	gateway -> {"status": "connected", "connected_devices": ["lamp-1"]}
//	gateway -> {"type": "sensor_data", "device_id": ..., "data": ..., "broadcast_time": ...}
//
// All exported types are safe for concurrent use.
package gateway
