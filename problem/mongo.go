package problem

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var _ Source = &MongoSource{}

// MongoSource resolves problems from the shared document store
type MongoSource struct {
	coll *mongo.Collection
}

// NewMongoSource creates the source over the given collection
func NewMongoSource(coll *mongo.Collection) *MongoSource {
	return &MongoSource{coll: coll}
}

// Get returns one problem by (domain, pid)
func (s *MongoSource) Get(ctx context.Context, domainID string, pid int64) (*Problem, error) {
	var p Problem
	err := s.coll.FindOne(ctx, bson.M{"domainId": domainID, "pid": pid}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{DomainID: domainID, PID: pid}
	}
	if err != nil {
		return nil, err
	}
	if p.Config == nil {
		c, err := ParseConfig(nil)
		if err != nil {
			return nil, err
		}
		p.Config = c
	}
	return &p, nil
}
