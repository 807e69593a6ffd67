package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "smarthome/"

// Topics builds MQTT topic names under a common prefix.
//
//	topics := mqtt.NewTopics("smarthome/")
//	topics.Channel("sensors/lighting") // "smarthome/sensors/lighting"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. A trailing slash is added if
// missing; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Topics{prefix: prefix}
}

// Prefix returns the normalised prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Channel returns the topic for a logical broker channel such as
// "devices/telemetry".
func (t Topics) Channel(channel string) string {
	return t.prefix + strings.TrimPrefix(channel, "/")
}

// GatewayStatus returns the retained online/offline status topic for the
// gateway identified by clientID.
func (t Topics) GatewayStatus(clientID string) string {
	return t.prefix + "gateway/" + clientID + "/status"
}

// validPublishTopic reports whether topic is non-empty and free of
// subscription wildcards.
func validPublishTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
