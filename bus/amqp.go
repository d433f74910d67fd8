package bus

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ Bus = &AMQPBus{}

// AMQPBus rides the typed channels on AMQP fanout exchanges, one exchange
// per event kind.
type AMQPBus struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

// NewAMQPBus dials the broker and declares the exchanges
func NewAMQPBus(url string, logger *zap.Logger) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, exchange := range []string{ChannelRecordChange, ChannelContestRecompute} {
		if err := ch.ExchangeDeclare(exchange, "fanout", false, false, false, false, nil); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &AMQPBus{conn: conn, ch: ch, logger: logger}, nil
}

// Close shuts down the AMQP connection
func (b *AMQPBus) Close() error {
	return b.conn.Close()
}

func (b *AMQPBus) publish(exchange string, ev any) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.ch.Publish(exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (b *AMQPBus) subscribe(exchange string) (<-chan amqp.Delivery, func(), error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, err
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return deliveries, func() { _ = ch.Close() }, nil
}

// PublishRecordChange publishes to the record/change exchange
func (b *AMQPBus) PublishRecordChange(_ context.Context, ev *RecordChange) error {
	return b.publish(ChannelRecordChange, ev)
}

// SubscribeRecordChange binds a private queue to the record/change exchange
func (b *AMQPBus) SubscribeRecordChange() (<-chan *RecordChange, func()) {
	deliveries, cancel, err := b.subscribe(ChannelRecordChange)
	if err != nil {
		b.logger.Error("record change subscribe failed", zap.Error(err))
		ch := make(chan *RecordChange)
		close(ch)
		return ch, func() {}
	}
	out := make(chan *RecordChange, subscriberBuffer)
	go func() {
		defer close(out)
		for d := range deliveries {
			ev := new(RecordChange)
			if err := json.Unmarshal(d.Body, ev); err != nil {
				b.logger.Warn("bad record change event", zap.Error(err))
				continue
			}
			out <- ev
		}
	}()
	return out, cancel
}

// PublishContestRecompute publishes to the contest/recompute exchange
func (b *AMQPBus) PublishContestRecompute(_ context.Context, ev *ContestRecompute) error {
	return b.publish(ChannelContestRecompute, ev)
}

// SubscribeContestRecompute binds a private queue to the contest/recompute
// exchange
func (b *AMQPBus) SubscribeContestRecompute() (<-chan *ContestRecompute, func()) {
	deliveries, cancel, err := b.subscribe(ChannelContestRecompute)
	if err != nil {
		b.logger.Error("contest recompute subscribe failed", zap.Error(err))
		ch := make(chan *ContestRecompute)
		close(ch)
		return ch, func() {}
	}
	out := make(chan *ContestRecompute, subscriberBuffer)
	go func() {
		defer close(out)
		for d := range deliveries {
			ev := new(ContestRecompute)
			if err := json.Unmarshal(d.Body, ev); err != nil {
				b.logger.Warn("bad contest recompute event", zap.Error(err))
				continue
			}
			out <- ev
		}
	}()
	return out, cancel
}
