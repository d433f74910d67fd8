package taskqueue

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Queue = &MongoQueue{}

// MongoQueue is the durable queue over a mongo collection. The atomic claim
// is a single findOneAndDelete so two concurrent consumers cannot receive
// the same task.
type MongoQueue struct {
	coll *mongo.Collection
}

// NewMongoQueue creates the queue over the given collection
func NewMongoQueue(coll *mongo.Collection) *MongoQueue {
	return &MongoQueue{coll: coll}
}

func (f Filter) query(now time.Time) bson.M {
	q := bson.M{"executeAfter": bson.M{"$lte": now}}
	if f.Type != "" {
		q["type"] = f.Type
	}
	if len(f.SubTypes) > 0 {
		q["subType"] = bson.M{"$in": f.SubTypes}
	}
	return q
}

// Add inserts a task
func (q *MongoQueue) Add(ctx context.Context, t *Task) (primitive.ObjectID, error) {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.ExecuteAfter.IsZero() {
		t.ExecuteAfter = time.Now()
	}
	if _, err := q.coll.InsertOne(ctx, t); err != nil {
		return primitive.NilObjectID, err
	}
	taskAdded.WithLabelValues(t.Type).Inc()
	return t.ID, nil
}

// Get returns a task by id
func (q *MongoQueue) Get(ctx context.Context, id primitive.ObjectID) (*Task, error) {
	var t Task
	err := q.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Del removes a task by id
func (q *MongoQueue) Del(ctx context.Context, id primitive.ObjectID) error {
	_, err := q.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Count counts tasks matching filter regardless of visibility
func (q *MongoQueue) Count(ctx context.Context, f Filter) (int64, error) {
	query := f.query(time.Now())
	delete(query, "executeAfter")
	return q.coll.CountDocuments(ctx, query)
}

// GetFirst atomically claims the highest-priority due task
func (q *MongoQueue) GetFirst(ctx context.Context, f Filter) (*Task, error) {
	opts := options.FindOneAndDelete().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "_id", Value: 1}})
	var t Task
	err := q.coll.FindOneAndDelete(ctx, f.query(time.Now()), opts).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Interval > 0 {
		next := t
		next.ID = primitive.NewObjectID()
		next.ExecuteAfter = time.Now().Add(t.Interval)
		if _, err := q.coll.InsertOne(ctx, &next); err != nil {
			return nil, err
		}
	}
	taskClaimed.WithLabelValues(t.Type).Inc()
	return &t, nil
}
