package taskqueue

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ Queue = &MemoryQueue{}

// MemoryQueue keeps tasks in process memory. It loses tasks on restart and
// exists for single-node development and tests; production uses MongoQueue.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks map[primitive.ObjectID]*Task
}

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tasks: make(map[primitive.ObjectID]*Task)}
}

// Add inserts a task
func (q *MemoryQueue) Add(_ context.Context, t *Task) (primitive.ObjectID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := *t
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.ExecuteAfter.IsZero() {
		c.ExecuteAfter = time.Now()
	}
	q.tasks[c.ID] = &c
	t.ID = c.ID
	taskAdded.WithLabelValues(c.Type).Inc()
	return c.ID, nil
}

// Get returns a task by id
func (q *MemoryQueue) Get(_ context.Context, id primitive.ObjectID) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// Del removes a task by id
func (q *MemoryQueue) Del(_ context.Context, id primitive.ObjectID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.tasks, id)
	return nil
}

// Count counts tasks matching filter
func (q *MemoryQueue) Count(_ context.Context, f Filter) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, t := range q.tasks {
		if f.Match(t) {
			n++
		}
	}
	return n, nil
}

// GetFirst claims the best due task under the queue lock
func (q *MemoryQueue) GetFirst(_ context.Context, f Filter) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var best *Task
	for _, t := range q.tasks {
		if !f.Match(t) || t.ExecuteAfter.After(now) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.ID.Hex() < best.ID.Hex()) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	if _, ok := q.tasks[best.ID]; !ok {
		return nil, ErrQueueInconsistent
	}
	delete(q.tasks, best.ID)
	if best.Interval > 0 {
		next := *best
		next.ID = primitive.NewObjectID()
		next.ExecuteAfter = now.Add(best.Interval)
		q.tasks[next.ID] = &next
	}
	taskClaimed.WithLabelValues(best.Type).Inc()
	return best, nil
}
