// Package taskqueue implements a durable, at-least-once work queue over the
// shared document store. Tasks become visible once executeAfter has passed;
// dequeue is a single atomic delete-and-return so that concurrent consumers
// never receive the same task twice.
package taskqueue

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrQueueInconsistent indicates a dequeue that failed to atomically remove
// the task it returned. It breaks the single-winner guarantee and is always
// an implementation bug.
var ErrQueueInconsistent = errors.New("taskqueue: dequeue was not atomic")

// Task is one unit of queued work
type Task struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type         string             `bson:"type" json:"type"`
	SubType      string             `bson:"subType,omitempty" json:"subType,omitempty"`
	Priority     int                `bson:"priority" json:"priority"`
	ExecuteAfter time.Time          `bson:"executeAfter" json:"executeAfter"`
	// Interval re-schedules a copy of the task on every dequeue
	Interval time.Duration `bson:"interval,omitempty" json:"interval,omitempty"`
	Payload  bson.Raw      `bson:"payload,omitempty" json:"payload,omitempty"`
}

// EncodePayload marshals v into a task payload
func EncodePayload(v any) (bson.Raw, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bson.Raw(b), nil
}

// Bind unmarshals the task payload into v
func (t *Task) Bind(v any) error {
	return bson.Unmarshal(t.Payload, v)
}

// Filter selects tasks by type and optionally by subType
type Filter struct {
	Type     string
	SubTypes []string
}

// Match reports whether the task matches the filter
func (f Filter) Match(t *Task) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if len(f.SubTypes) > 0 {
		ok := false
		for _, s := range f.SubTypes {
			if t.SubType == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Queue provides the durable task queue
type Queue interface {
	// Add inserts a task; a zero ExecuteAfter means immediately visible
	Add(ctx context.Context, t *Task) (primitive.ObjectID, error)

	// Get returns a task by id without claiming it
	Get(ctx context.Context, id primitive.ObjectID) (*Task, error)

	// Del removes a task by id
	Del(ctx context.Context, id primitive.ObjectID) error

	// Count counts visible and pending tasks matching filter
	Count(ctx context.Context, f Filter) (int64, error)

	// GetFirst atomically claims the best visible task matching filter,
	// or returns (nil, nil) when none is due. A task carrying Interval has
	// its successor inserted before the task is handed out.
	GetFirst(ctx context.Context, f Filter) (*Task, error)
}
