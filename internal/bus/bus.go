package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// signalTag is the fixed first element of every signal payload. Stream
// consumers key on this literal, so it must not change.
const signalTag = "flask-event"

// Bus publishes and subscribes completion signals over Redis pub/sub.
// Delivery is live broadcast: every attached subscriber receives every
// message, and a subscriber attached after a publish never sees it.
type Bus struct {
	rdb *redis.Client
}

// New returns a Bus using the provided Redis client.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish broadcasts the completion signal for jobID on channel.
func (b *Bus) Publish(ctx context.Context, channel, jobID string) error {
	payload, err := Encode(jobID)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

// Subscription is one live channel subscription. It must be closed when the
// consumer goes away, or the bus keeps fanning out to a dead target.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe attaches to channel. The subscription is confirmed with the
// server before Subscribe returns, so an unreachable bus surfaces here
// rather than as a silently idle stream.
func (b *Bus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return &Subscription{pubsub: pubsub}, nil
}

// Messages returns the stream of raw payloads for this subscription. The
// channel is closed when the subscription is closed.
func (s *Subscription) Messages() <-chan *redis.Message {
	return s.pubsub.Channel()
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Encode builds the wire payload for one completion signal: a JSON array of
// exactly two strings, the signal tag and the job identifier.
func Encode(jobID string) (string, error) {
	raw, err := json.Marshal([2]string{signalTag, jobID})
	if err != nil {
		return "", fmt.Errorf("encode signal: %w", err)
	}
	return string(raw), nil
}

// Decode parses a wire payload and returns the job identifier. Anything but
// a two-element JSON array of strings is rejected.
func Decode(payload string) (string, error) {
	var parts []string
	if err := json.Unmarshal([]byte(payload), &parts); err != nil {
		return "", fmt.Errorf("decode signal: %w", err)
	}
	if len(parts) != 2 {
		return "", fmt.Errorf("decode signal: want 2 elements, got %d", len(parts))
	}
	if parts[1] == "" {
		return "", fmt.Errorf("decode signal: empty job id")
	}
	return parts[1], nil
}
