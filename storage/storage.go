// Package storage connects to the shared document store and prepares the
// collections used by the judging core.
package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Collection names owned by the judging core
const (
	CollTask          = "task"
	CollRecord        = "record"
	CollContest       = "contest"
	CollContestStatus = "contest.status"
	CollProblem       = "problem"
	CollRating        = "rating"
)

// Database wraps the mongo database handle used by the models
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials mongo, verifies the connection and ensures indexes
func Connect(ctx context.Context, uri, name string, logger *zap.Logger) (*Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	d := &Database{client: client, db: client.Database(name)}
	d.ensureIndexes(ctx, logger)
	return d, nil
}

// Collection returns a collection handle by name
func (d *Database) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

// Disconnect closes the underlying client
func (d *Database) Disconnect(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

func (d *Database) ensureIndexes(ctx context.Context, logger *zap.Logger) {
	indexes := map[string][]mongo.IndexModel{
		CollTask: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "subType", Value: 1}, {Key: "executeAfter", Value: 1}}},
			{Keys: bson.D{{Key: "priority", Value: -1}, {Key: "_id", Value: 1}}},
		},
		CollRecord: {
			{Keys: bson.D{{Key: "domainId", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "domainId", Value: 1}, {Key: "uid", Value: 1}, {Key: "pid", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "domainId", Value: 1}, {Key: "contest.tid", Value: 1}, {Key: "_id", Value: -1}}},
		},
		CollContest: {
			{Keys: bson.D{{Key: "domainId", Value: 1}, {Key: "beginAt", Value: -1}}},
		},
		CollContestStatus: {
			{
				Keys:    bson.D{{Key: "domainId", Value: 1}, {Key: "tid", Value: 1}, {Key: "uid", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		CollRating: {
			{
				Keys:    bson.D{{Key: "domainId", Value: 1}, {Key: "uid", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
	for coll, models := range indexes {
		if _, err := d.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			logger.Warn("create index failed", zap.String("collection", coll), zap.Error(err))
		}
	}
}
