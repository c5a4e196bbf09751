// Package redistrigger relays Redis pub/sub messages into taskmgr events.
//
// A Bridge subscribes to one Redis channel per binding and calls
// MarkTriggeredAndNotify on the bound events whenever a message arrives, so a
// process can wake an event owned by a manager in another process. Message
// payloads are ignored and no scheduler state is kept in Redis.
package redistrigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	tmctx "github.com/vnykmshr/taskmgr/pkg/common/context"
	tmerrors "github.com/vnykmshr/taskmgr/pkg/common/errors"
	"github.com/vnykmshr/taskmgr/pkg/common/validation"
	"github.com/vnykmshr/taskmgr/pkg/metrics"
)

// Triggerable is implemented by every taskmgr event through BaseEvent.
type Triggerable interface {
	MarkTriggeredAndNotify()
}

// Config holds bridge configuration.
type Config struct {
	// Redis client used for subscribing and publishing.
	Redis redis.UniversalClient

	// Name labels logs and metrics (default: "default").
	Name string

	// Prefix is prepended to every channel name (default: "taskmgr:trigger:").
	Prefix string

	// RedisTimeout bounds subscribe confirmation and Publish (default: 500ms).
	RedisTimeout time.Duration

	// Logger receives diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics configures Prometheus instrumentation.
	Metrics metrics.Config
}

// DefaultPrefix namespaces trigger channels in a shared Redis.
const DefaultPrefix = "taskmgr:trigger:"

// Stats is a snapshot of bridge counters.
type Stats struct {
	Channels  int
	Delivered uint64
	Dropped   uint64
	Published uint64
}

// Bridge subscribes to Redis channels and triggers bound events.
type Bridge struct {
	client  redis.UniversalClient
	name    string
	prefix  string
	timeout time.Duration
	log     zerolog.Logger
	reg     *metrics.Registry

	mu       sync.RWMutex
	bindings map[string][]Triggerable
	pubsub   *redis.PubSub
	closed   bool

	done sync.WaitGroup
	stop chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	published atomic.Uint64
}

// New creates a bridge. It does not contact Redis until Start or Publish.
func New(cfg Config) (*Bridge, error) {
	if err := validation.ValidateNotNil("redistrigger", "redis", cfg.Redis); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RedisTimeout <= 0 {
		cfg.RedisTimeout = 500 * time.Millisecond
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "redistrigger").Str("bridge", cfg.Name).Logger()
	}
	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry(cfg.Metrics)
	}

	return &Bridge{
		client:   cfg.Redis,
		name:     cfg.Name,
		prefix:   cfg.Prefix,
		timeout:  cfg.RedisTimeout,
		log:      log,
		reg:      reg,
		bindings: make(map[string][]Triggerable),
		stop:     make(chan struct{}),
	}, nil
}

// Bind routes messages on channel to t. Binding after Start subscribes to the
// new channel straight away.
func (b *Bridge) Bind(ctx context.Context, channel string, t Triggerable) error {
	if err := validation.ValidateNotEmpty("redistrigger", "channel", channel); err != nil {
		return err
	}
	if err := validation.ValidateNotNil("redistrigger", "event", t); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return tmerrors.NewOperationError("redistrigger", "Bind", tmerrors.ErrClosed)
	}
	_, known := b.bindings[channel]
	b.bindings[channel] = append(b.bindings[channel], t)
	ps := b.pubsub
	b.mu.Unlock()

	if ps == nil || known {
		return nil
	}
	ctx, cancel := tmctx.WithTimeoutOrCancel(ctx, b.timeout)
	defer cancel()
	if err := ps.Subscribe(ctx, b.prefix+channel); err != nil {
		return tmerrors.NewOperationError("redistrigger", "Bind", err).WithContext(channel)
	}
	return nil
}

// Unbind removes every binding for channel.
func (b *Bridge) Unbind(ctx context.Context, channel string) error {
	b.mu.Lock()
	_, known := b.bindings[channel]
	delete(b.bindings, channel)
	ps := b.pubsub
	b.mu.Unlock()

	if ps == nil || !known {
		return nil
	}
	ctx, cancel := tmctx.WithTimeoutOrCancel(ctx, b.timeout)
	defer cancel()
	return ps.Unsubscribe(ctx, b.prefix+channel)
}

// Start subscribes to all bound channels and relays messages until Close.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return tmerrors.NewOperationError("redistrigger", "Start", tmerrors.ErrClosed)
	}
	if b.pubsub != nil {
		b.mu.Unlock()
		return tmerrors.NewOperationError("redistrigger", "Start", fmt.Errorf("already started"))
	}
	channels := make([]string, 0, len(b.bindings))
	for ch := range b.bindings {
		channels = append(channels, b.prefix+ch)
	}
	b.mu.Unlock()

	subCtx, cancel := tmctx.WithTimeoutOrCancel(ctx, b.timeout)
	defer cancel()
	ps := b.client.Subscribe(subCtx, channels...)
	if len(channels) > 0 {
		// wait for the first confirmation so Start reports connection errors
		if _, err := ps.Receive(subCtx); err != nil {
			_ = ps.Close()
			return tmerrors.NewOperationError("redistrigger", "Start", err).
				WithContext(strings.Join(channels, ","))
		}
	}

	b.mu.Lock()
	b.pubsub = ps
	b.mu.Unlock()

	msgs := ps.Channel()
	b.done.Add(1)
	go func() {
		defer b.done.Done()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				b.dispatch(msg.Channel)
			case <-b.stop:
				return
			}
		}
	}()

	b.log.Info().Int("channels", len(channels)).Msg("trigger bridge started")
	return nil
}

// dispatch triggers every event bound to the Redis channel.
func (b *Bridge) dispatch(redisChannel string) {
	channel := strings.TrimPrefix(redisChannel, b.prefix)

	b.mu.RLock()
	targets := b.bindings[channel]
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.dropped.Add(1)
		if b.reg != nil {
			b.reg.TriggerDropped.WithLabelValues(b.name).Inc()
		}
		b.log.Debug().Str("channel", channel).Msg("trigger without binding")
		return
	}
	for _, t := range targets {
		t.MarkTriggeredAndNotify()
	}
	b.delivered.Add(1)
	if b.reg != nil {
		b.reg.TriggerMessages.WithLabelValues(b.name, channel).Inc()
	}
}

// Publish fires channel on every bridge subscribed to it.
func (b *Bridge) Publish(ctx context.Context, channel string) error {
	if err := validation.ValidateNotEmpty("redistrigger", "channel", channel); err != nil {
		return err
	}
	ctx, cancel := tmctx.WithTimeoutOrCancel(ctx, b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.prefix+channel, b.name).Err(); err != nil {
		return tmerrors.NewOperationError("redistrigger", "Publish", err).WithContext(channel)
	}
	b.published.Add(1)
	return nil
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.RLock()
	channels := len(b.bindings)
	b.mu.RUnlock()
	return Stats{
		Channels:  channels,
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Published: b.published.Load(),
	}
}

// Close unsubscribes and waits for the relay goroutine. The Redis client is
// owned by the caller and stays open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return tmerrors.ErrClosed
	}
	b.closed = true
	ps := b.pubsub
	b.mu.Unlock()

	close(b.stop)
	var err error
	if ps != nil {
		err = ps.Close()
	}
	b.done.Wait()
	return err
}
