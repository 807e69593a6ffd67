package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/mqtt"
)

// Defaults applied when the corresponding config value is zero.
const (
	defaultQueueSize        = 1024
	defaultPublishTimeout   = 5 * time.Second
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
)

// Logger defines the logging interface used by the Publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type message struct {
	channel string
	data    []byte
}

// Stats is a point-in-time view of Publisher counters.
type Stats struct {
	Kind         Kind   `json:"kind"`
	Published    uint64 `json:"published"`
	Dropped      uint64 `json:"dropped"`
	Failed       uint64 `json:"failed"`
	Queued       int    `json:"queued"`
	BreakerState string `json:"breaker_state"`
}

// Publisher mirrors telemetry to the analytics broker without ever blocking
// the caller.
//
// Publish serialises the payload immediately and enqueues it on a bounded
// queue. When the queue is full the oldest message is dropped. A single
// worker drains the queue through a circuit breaker so a dead broker fails
// fast instead of stalling the queue.
//
// A nil *Publisher is valid and discards everything.
type Publisher struct {
	kind      Kind
	transport transport
	queue     chan message
	breaker   *gobreaker.CircuitBreaker
	timeout   time.Duration
	logger    Logger

	// enqueueMu makes drop-oldest plus enqueue atomic with respect to other
	// producers and to Close.
	enqueueMu sync.Mutex

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// Connect dials the transport selected by cfg.Broker.Type and returns a
// started Publisher. Errors wrap ErrUnavailable when the broker cannot be
// reached, so callers can fall back to running without one.
func Connect(ctx context.Context, cfg *config.Config, logger Logger) (*Publisher, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	kind, err := ParseKind(cfg.Broker.Type)
	if err != nil {
		return nil, err
	}

	var t transport
	switch kind {
	case KindMQTT:
		client, err := mqtt.Connect(cfg.MQTT, cfg.Broker.TopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		client.SetLogger(logger)
		t = newMQTTTransport(client)

	case KindRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return NewRedisPublisher(client, cfg, logger), nil
	}

	p := newPublisher(kind, t, cfg.Broker, logger)
	p.Start()
	return p, nil
}

// NewRedisPublisher returns a started Publisher that appends to Redis
// Streams through an existing client. The client is not pinged and is
// closed by Publisher.Close.
func NewRedisPublisher(client *redis.Client, cfg *config.Config, logger Logger) *Publisher {
	t := newRedisTransport(client, cfg.Redis.StreamPrefix, cfg.Redis.MaxLen)
	p := newPublisher(KindRedis, t, cfg.Broker, logger)
	p.Start()
	return p
}

// newPublisher builds an unstarted Publisher around t.
func newPublisher(kind Kind, t transport, cfg config.BrokerConfig, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := time.Duration(cfg.PublishTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	threshold := cfg.CircuitBreaker.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	reset := time.Duration(cfg.CircuitBreaker.ResetTimeout) * time.Second
	if reset <= 0 {
		reset = defaultResetTimeout
	}

	p := &Publisher{
		kind:      kind,
		transport: t,
		queue:     make(chan message, queueSize),
		timeout:   timeout,
		logger:    logger,
		stop:      make(chan struct{}),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-" + kind.String(),
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("broker circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return p
}

// Start launches the worker. It is called by Connect.
func (p *Publisher) Start() {
	if p == nil {
		return
	}
	p.wg.Add(1)
	go p.worker()
	p.logger.Info("broker publisher started", "kind", p.kind, "queue_size", cap(p.queue))
}

// Kind returns the transport variant, or "" for a nil Publisher.
func (p *Publisher) Kind() Kind {
	if p == nil {
		return ""
	}
	return p.kind
}

// Publish queues payload for channel. It never blocks and never fails from
// the caller's point of view; problems are logged and counted.
func (p *Publisher) Publish(channel string, payload map[string]any) {
	if p == nil {
		return
	}
	if p.closed.Load() {
		p.dropped.Add(1)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.failed.Add(1)
		p.logger.Error("broker payload encoding failed", "channel", channel,
			"error", fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return
	}

	p.enqueue(message{channel: channel, data: data})
}

func (p *Publisher) enqueue(msg message) {
	p.enqueueMu.Lock()
	defer p.enqueueMu.Unlock()

	// The worker may already have drained and exited.
	if p.closed.Load() {
		p.dropped.Add(1)
		return
	}

	select {
	case p.queue <- msg:
		return
	default:
	}

	// Queue full: drop the oldest, then add the newest.
	select {
	case old := <-p.queue:
		p.dropped.Add(1)
		p.logger.Warn("broker queue full, oldest message dropped", "channel", old.channel)
	default:
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
		p.logger.Warn("broker queue full, message dropped", "channel", msg.channel)
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			p.drain()
			return
		case msg := <-p.queue:
			p.send(msg)
		}
	}
}

// drain flushes whatever is still queued at shutdown.
func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.send(msg)
		default:
			return
		}
	}
}

func (p *Publisher) send(msg message) {
	_, err := p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		return nil, p.transport.publish(ctx, msg.channel, msg.data)
	})
	if err == nil {
		p.published.Add(1)
		return
	}

	p.failed.Add(1)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.Debug("broker publish skipped, circuit open", "channel", msg.channel)
		return
	}
	p.logger.Warn("broker publish failed", "channel", msg.channel,
		"error", fmt.Errorf("%w: %w", ErrPublishFailed, err))
}

// Stats returns the current counters.
func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Kind:         p.kind,
		Published:    p.published.Load(),
		Dropped:      p.dropped.Load(),
		Failed:       p.failed.Load(),
		Queued:       len(p.queue),
		BreakerState: p.breaker.State().String(),
	}
}

// HealthCheck reports whether the underlying broker is reachable.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if p == nil {
		return ErrUnavailable
	}
	return p.transport.healthCheck(ctx)
}

// Close stops accepting messages, flushes the queue and closes the
// transport. It is safe to call more than once.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}

	var err error
	p.stopOnce.Do(func() {
		p.enqueueMu.Lock()
		p.closed.Store(true)
		p.enqueueMu.Unlock()

		close(p.stop)
		p.wg.Wait()
		err = p.transport.close()

		s := p.Stats()
		p.logger.Info("broker publisher stopped",
			"published", s.Published, "dropped", s.Dropped, "failed", s.Failed)
	})
	return err
}
