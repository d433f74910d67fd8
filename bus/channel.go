package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 64

var _ Bus = &ChannelBus{}

// ChannelBus is the single-node bus over buffered go channels. A slow
// subscriber drops events rather than blocking the publisher.
type ChannelBus struct {
	logger *zap.Logger

	mu         sync.RWMutex
	recordSubs map[int]chan *RecordChange
	recompSubs map[int]chan *ContestRecompute
	nextID     int
}

// NewChannelBus creates an in-process bus
func NewChannelBus(logger *zap.Logger) *ChannelBus {
	return &ChannelBus{
		logger:     logger,
		recordSubs: make(map[int]chan *RecordChange),
		recompSubs: make(map[int]chan *ContestRecompute),
	}
}

// PublishRecordChange fans the event out to all subscribers
func (b *ChannelBus) PublishRecordChange(_ context.Context, ev *RecordChange) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.recordSubs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("record change subscriber lagging, event dropped",
				zap.String("rid", ev.RecordID.Hex()))
		}
	}
	return nil
}

// SubscribeRecordChange registers a subscriber; cancel unregisters it
func (b *ChannelBus) SubscribeRecordChange() (<-chan *RecordChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan *RecordChange, subscriberBuffer)
	b.recordSubs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.recordSubs, id)
	}
}

// PublishContestRecompute fans the event out to all subscribers
func (b *ChannelBus) PublishContestRecompute(_ context.Context, ev *ContestRecompute) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.recompSubs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("contest recompute subscriber lagging, event dropped",
				zap.String("tid", ev.ContestID.Hex()))
		}
	}
	return nil
}

// SubscribeContestRecompute registers a subscriber; cancel unregisters it
func (b *ChannelBus) SubscribeContestRecompute() (<-chan *ContestRecompute, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan *ContestRecompute, subscriberBuffer)
	b.recompSubs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.recompSubs, id)
	}
}
