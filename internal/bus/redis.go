package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tunnelmesh/relay/internal/logging"
)

// redisBus fans messages out across the fleet with Redis Pub/Sub: best
// effort, in order per publisher, no persistence. An offline subscriber
// simply misses messages published while it was down, which is exactly what
// the downstream pending-request timeouts are designed to tolerate.
type redisBus struct {
	client    *redis.Client
	keyPrefix string

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedis builds a Bus backed by a Redis client already connected to a URL
// of the form redis://[:password@]host:port/db. keyPrefix namespaces the
// five pub/sub channel names so multiple deployments can share one Redis
// instance.
func NewRedis(client *redis.Client, keyPrefix string) Bus {
	return &redisBus{client: client, keyPrefix: keyPrefix, subs: make(map[string]*redis.PubSub)}
}

func (b *redisBus) channelKey(channel string) string {
	return b.keyPrefix + channel
}

func (b *redisBus) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal bus envelope: %w", err)
	}
	return b.client.Publish(ctx, b.channelKey(env.Channel), raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, channel string, handler func(Envelope)) (Unsubscribe, error) {
	logger := logging.FromContext(ctx)
	sub := b.client.Subscribe(ctx, b.channelKey(channel))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	b.mu.Lock()
	b.subs[channel] = sub
	b.mu.Unlock()

	msgCh := sub.Channel()
	go func() {
		for msg := range msgCh {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("bus: dropping malformed message", "channel", channel, "err", err.Error())
				continue
			}
			if env.Channel != "" && env.Channel != channel {
				logger.Warn("bus: dropping cross-channel message", "expected", channel, "got", env.Channel)
				continue
			}
			handler(env)
		}
	}()

	return func() {
		_ = sub.Close()
		b.mu.Lock()
		delete(b.subs, channel)
		b.mu.Unlock()
	}, nil
}

func (b *redisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, sub := range b.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.subs = make(map[string]*redis.PubSub)
	return firstErr
}
