// Package broker mirrors gateway telemetry to a downstream analytics broker.
//
// Two transports exist, chosen once at startup by broker.type:
//
//	mqtt   publish to {topic_prefix}{channel}         (default)
//	redis  XADD to the stream {stream_prefix}{channel}
//
// Publishing is fire-and-forget. Callers on the real-time path never block
// and never see an error; a full queue drops its oldest message, and a
// failing broker trips a circuit breaker until it recovers.
package broker
