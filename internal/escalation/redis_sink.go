package escalation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel escalations are published to.
const DefaultChannel = "siga:escalations"

// RedisSink publishes escalations as JSON to a Redis pub/sub channel so the
// notification center and mailers can subscribe without coupling to this
// process.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a RedisSink publishing to the given channel. An empty
// channel falls back to DefaultChannel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Deliver publishes the escalation. Failures wrap ErrDeliveryFailed.
func (s *RedisSink) Deliver(ctx context.Context, esc *Escalation) error {
	payload, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("%w: marshal escalation: %v", ErrDeliveryFailed, err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ErrDeliveryFailed, s.channel, err)
	}
	return nil
}
