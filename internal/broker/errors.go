package broker

import "errors"

// Domain errors for the broker package.
var (
	// ErrPublishFailed wraps any failure to hand a message to the broker.
	// It is logged and counted, never returned to Publish callers.
	ErrPublishFailed = errors.New("broker: publish failed")

	// ErrUnknownKind is returned when broker.type names no known transport.
	ErrUnknownKind = errors.New("broker: unknown kind")

	// ErrUnavailable is returned by Connect when the selected broker cannot
	// be reached.
	ErrUnavailable = errors.New("broker: unavailable")
)
