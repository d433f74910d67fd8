package taskqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TypeSchedule marks tasks dispatched by the scheduled Worker
const TypeSchedule = "schedule"

// Worker dispatches "schedule" tasks to handlers registered by subType.
// Recurring jobs are tasks added with Interval set.
type Worker struct {
	queue    Queue
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler

	consumer *Consumer
}

// NewWorker creates a scheduled-task worker
func NewWorker(q Queue, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		queue:    q,
		logger:   logger,
		interval: interval,
		handlers: make(map[string]Handler),
	}
}

// AddHandler registers a handler for a schedule subType
func (w *Worker) AddHandler(subType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[subType] = h
	if w.consumer != nil {
		w.consumer.SetFilter(w.filter())
	}
}

func (w *Worker) filter() Filter {
	subTypes := make([]string, 0, len(w.handlers))
	for s := range w.handlers {
		subTypes = append(subTypes, s)
	}
	return Filter{Type: TypeSchedule, SubTypes: subTypes}
}

// Start begins consuming scheduled tasks
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consumer = NewConsumer(w.queue, w.filter(), w.dispatch, w.interval, w.logger)
	w.consumer.Start(ctx)
}

// Stop terminates the worker loop
func (w *Worker) Stop() {
	w.mu.RLock()
	c := w.consumer
	w.mu.RUnlock()
	if c != nil {
		c.Stop()
	}
}

func (w *Worker) dispatch(ctx context.Context, t *Task) error {
	w.mu.RLock()
	h, ok := w.handlers[t.SubType]
	w.mu.RUnlock()
	if !ok {
		w.logger.Warn("no handler for scheduled task", zap.String("subType", t.SubType))
		return nil
	}
	return h(ctx, t)
}
