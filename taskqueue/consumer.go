package taskqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is the idle back-off between empty dequeues
const DefaultPollInterval = time.Second

// Handler processes one claimed task
type Handler func(ctx context.Context, t *Task) error

// Consumer drives a handler from the queue. An error from the handler is
// logged and the loop continues; one bad task must not starve the queue.
type Consumer struct {
	queue    Queue
	handler  Handler
	logger   *zap.Logger
	interval time.Duration

	mu     sync.RWMutex
	filter Filter

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewConsumer creates a consumer; interval <= 0 uses DefaultPollInterval
func NewConsumer(q Queue, f Filter, h Handler, interval time.Duration, logger *zap.Logger) *Consumer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Consumer{
		queue:    q,
		handler:  h,
		logger:   logger,
		interval: interval,
		filter:   f,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetFilter replaces the consume filter for subsequent dequeues
func (c *Consumer) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

// Start launches the consume loop
func (c *Consumer) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop terminates the loop and waits for the in-flight handler to return
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.stopped
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.stopped)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-timer.C:
		}

		c.mu.RLock()
		f := c.filter
		c.mu.RUnlock()

		t, err := c.queue.GetFirst(ctx, f)
		switch {
		case err != nil:
			c.logger.Error("task dequeue failed", zap.Error(err))
			timer.Reset(c.interval)
		case t == nil:
			timer.Reset(c.interval)
		default:
			if err := c.handler(ctx, t); err != nil {
				c.logger.Error("task handler failed",
					zap.String("taskId", t.ID.Hex()),
					zap.String("type", t.Type),
					zap.String("subType", t.SubType),
					zap.Error(err))
			}
			// drain the queue before idling again
			timer.Reset(0)
		}
	}
}
