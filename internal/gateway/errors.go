package gateway

import "errors"

// Domain errors for the gateway package.
//
// Check them with errors.Is:
//
//	if errors.Is(err, gateway.ErrDeviceOffline) {
//	    // device has no live session
//	}
var (
	// ErrInvalidHandshake is returned when a device's first frame is not a
	// JSON object carrying a non-empty string device_id.
	ErrInvalidHandshake = errors.New("gateway: invalid handshake")

	// ErrMalformedFrame is returned when an active device sends a frame that
	// is not a JSON object.
	ErrMalformedFrame = errors.New("gateway: malformed frame")

	// ErrDeviceOffline is returned when a command targets a device with no
	// registered session.
	ErrDeviceOffline = errors.New("gateway: device offline")

	// ErrTransportSend is returned when writing to a connection fails.
	ErrTransportSend = errors.New("gateway: transport send failed")

	// ErrInvalidCommand is returned when a command fails validation.
	ErrInvalidCommand = errors.New("gateway: invalid command")

	// ErrConnectionClosed is reported by a Conn when the peer closed the
	// connection normally. Sessions treat it as a clean exit.
	ErrConnectionClosed = errors.New("gateway: connection closed")
)
