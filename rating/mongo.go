package rating

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ratingDoc struct {
	DomainID string `bson:"domainId"`
	UID      int64  `bson:"uid"`
	Rating   int    `bson:"rating"`
}

// MongoStore persists ratings, one document per (domain, user)
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a rating store on the collection
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Get(ctx context.Context, domainID string, uids []int64) (map[int64]int, error) {
	cur, err := s.coll.Find(ctx, bson.M{
		"domainId": domainID,
		"uid":      bson.M{"$in": uids},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make(map[int64]int, len(uids))
	for cur.Next(ctx) {
		var doc ratingDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.UID] = doc.Rating
	}
	return out, cur.Err()
}

func (s *MongoStore) Set(ctx context.Context, domainID string, ratings map[int64]int) error {
	if len(ratings) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(ratings))
	for uid, r := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"domainId": domainID, "uid": uid}).
			SetUpdate(bson.M{"$set": bson.M{"rating": r}}).
			SetUpsert(true))
	}
	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}
