package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/mqtt"
)

// transport delivers one serialised message to a broker channel.
// There are exactly two implementations, one per Kind.
type transport interface {
	publish(ctx context.Context, channel string, data []byte) error
	healthCheck(ctx context.Context) error
	close() error
}

// mqttTransport publishes each channel to prefix+channel.
type mqttTransport struct {
	client *mqtt.Client
}

func newMQTTTransport(client *mqtt.Client) *mqttTransport {
	return &mqttTransport{client: client}
}

func (t *mqttTransport) publish(ctx context.Context, channel string, data []byte) error {
	return t.client.PublishQoS(ctx, t.client.Topics().Channel(channel), data)
}

func (t *mqttTransport) healthCheck(ctx context.Context) error {
	return t.client.HealthCheck(ctx)
}

func (t *mqttTransport) close() error {
	return t.client.Close()
}

// redisTransport appends each message to the stream prefix+channel.
type redisTransport struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
}

func newRedisTransport(client redis.UniversalClient, prefix string, maxLen int64) *redisTransport {
	return &redisTransport{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
	}
}

func (t *redisTransport) streamKey(channel string) string {
	return t.prefix + channel
}

func (t *redisTransport) publish(ctx context.Context, channel string, data []byte) error {
	args := &redis.XAddArgs{
		Stream: t.streamKey(channel),
		Values: map[string]any{
			"data": data,
		},
	}
	if t.maxLen > 0 {
		args.MaxLen = t.maxLen
		args.Approx = true
	}

	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

func (t *redisTransport) healthCheck(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

func (t *redisTransport) close() error {
	return t.client.Close()
}
