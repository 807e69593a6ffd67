package broker

import (
	"fmt"
	"strings"
)

// Kind selects the transport behind a Publisher.
type Kind string

const (
	// KindMQTT publishes to MQTT topics. This is the default.
	KindMQTT Kind = "mqtt"

	// KindRedis appends to Redis Streams with XADD.
	KindRedis Kind = "redis"
)

// Channels telemetry is published on.
const (
	ChannelEnvironmental   = "sensors/environmental"
	ChannelLighting        = "sensors/lighting"
	ChannelDeviceTelemetry = "devices/telemetry"
)

// ParseKind maps a configuration string to a Kind. Matching is case
// insensitive and the empty string selects KindMQTT.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(KindMQTT):
		return KindMQTT, nil
	case string(KindRedis):
		return KindRedis, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) String() string { return string(k) }
