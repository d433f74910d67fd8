package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ Bus = &RedisBus{}

// RedisBus rides the typed channels on redis Pub/Sub for multi-node
// deployments. Delivery is fire-and-forget, same as the in-process bus.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus creates a bus over an established redis client
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) publish(ctx context.Context, channel string, ev any) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, body).Err()
}

// PublishRecordChange publishes to the record/change redis channel
func (b *RedisBus) PublishRecordChange(ctx context.Context, ev *RecordChange) error {
	return b.publish(ctx, ChannelRecordChange, ev)
}

// SubscribeRecordChange subscribes to the record/change redis channel
func (b *RedisBus) SubscribeRecordChange() (<-chan *RecordChange, func()) {
	sub := b.client.Subscribe(context.Background(), ChannelRecordChange)
	out := make(chan *RecordChange, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			ev := new(RecordChange)
			if err := json.Unmarshal([]byte(msg.Payload), ev); err != nil {
				b.logger.Warn("bad record change event", zap.Error(err))
				continue
			}
			out <- ev
		}
	}()
	return out, func() { _ = sub.Close() }
}

// PublishContestRecompute publishes to the contest/recompute redis channel
func (b *RedisBus) PublishContestRecompute(ctx context.Context, ev *ContestRecompute) error {
	return b.publish(ctx, ChannelContestRecompute, ev)
}

// SubscribeContestRecompute subscribes to the contest/recompute redis channel
func (b *RedisBus) SubscribeContestRecompute() (<-chan *ContestRecompute, func()) {
	sub := b.client.Subscribe(context.Background(), ChannelContestRecompute)
	out := make(chan *ContestRecompute, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			ev := new(ContestRecompute)
			if err := json.Unmarshal([]byte(msg.Payload), ev); err != nil {
				b.logger.Warn("bad contest recompute event", zap.Error(err))
				continue
			}
			out <- ev
		}
	}()
	return out, func() { _ = sub.Close() }
}
