package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay carries deltas to other processes.
type Relay interface {
	Forward(ctx context.Context, sessionID string, delta Delta) error
}

// DefaultRelayChannel is the Redis channel shared by all instances.
const DefaultRelayChannel = "sitepipe:progress"

type relayMessage struct {
	Origin    string `json:"origin"`
	SessionID string `json:"sessionId"`
	Delta     Delta  `json:"delta"`
}

// RedisRelay shares progress deltas between processes over Redis pub/sub.
// Messages a relay published itself are ignored on receipt.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisRelay creates a relay on the default channel.
func NewRedisRelay(client *redis.Client, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: DefaultRelayChannel,
		origin:  uuid.New().String(),
		logger:  logger.Named("relay"),
		ready:   make(chan struct{}),
	}
}

// Forward publishes one delta.
func (r *RedisRelay) Forward(ctx context.Context, sessionID string, delta Delta) error {
	payload, err := json.Marshal(relayMessage{Origin: r.origin, SessionID: sessionID, Delta: delta})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Ready is closed once Run has an active subscription.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run applies deltas from other processes to b until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, b *Broadcaster) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.readyOnce.Do(func() { close(r.ready) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("discarding malformed relay message", zap.Error(err))
				continue
			}
			if m.Origin == r.origin || m.SessionID == "" {
				continue
			}
			b.ApplyRemote(m.SessionID, m.Delta)
		}
	}
}
