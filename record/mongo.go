package record

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lumen-oj/lumen/status"
)

var _ Store = &MongoStore{}

// MongoStore persists records in the shared document store
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates the store over the given collection
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Insert stores a new record
func (s *MongoStore) Insert(ctx context.Context, r *Record) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := s.coll.InsertOne(ctx, r)
	return err
}

// Get returns one record by (domain, id)
func (s *MongoStore) Get(ctx context.Context, domainID string, id primitive.ObjectID) (*Record, error) {
	var r Record
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "domainId": domainID}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{DomainID: domainID, RecordID: id}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Delta) update() bson.M {
	set := bson.M{}
	push := bson.M{}
	if d.Status != nil {
		set["status"] = *d.Status
	}
	if d.Score != nil {
		set["score"] = *d.Score
	}
	if d.Time != nil {
		set["time"] = *d.Time
	}
	if d.Memory != nil {
		set["memory"] = *d.Memory
	}
	if d.Progress != nil {
		set["progress"] = *d.Progress
	}
	if d.Judger != nil {
		set["judger"] = *d.Judger
	}
	if d.JudgeAt != nil {
		set["judgeAt"] = *d.JudgeAt
	}
	if d.Case != nil {
		push["testCases"] = *d.Case
	}
	if d.JudgeText != "" {
		push["judgeTexts"] = d.JudgeText
	}
	if d.CompilerText != "" {
		push["compilerTexts"] = d.CompilerText
	}
	u := bson.M{}
	if len(set) > 0 {
		u["$set"] = set
	}
	if len(push) > 0 {
		u["$push"] = push
	}
	return u
}

// Update applies the delta with a single findOneAndUpdate
func (s *MongoStore) Update(ctx context.Context, domainID string, id primitive.ObjectID, d *Delta) (*Record, error) {
	u := d.update()
	if len(u) == 0 {
		return s.Get(ctx, domainID, id)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r Record
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "domainId": domainID}, u, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{DomainID: domainID, RecordID: id}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Reset clears accumulated judging output
func (s *MongoStore) Reset(ctx context.Context, domainID string, id primitive.ObjectID, markRejudged bool) (*Record, error) {
	set := bson.M{
		"status":        status.StatusWaiting,
		"score":         float64(0),
		"time":          uint64(0),
		"memory":        uint64(0),
		"testCases":     []TestCase{},
		"judgeTexts":    []string{},
		"compilerTexts": []string{},
		"progress":      float64(0),
		"judger":        "",
		"judgeAt":       nil,
	}
	if markRejudged {
		set["rejudged"] = true
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r Record
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "domainId": domainID}, bson.M{"$set": set}, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{DomainID: domainID, RecordID: id}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetMulti returns the known records among ids
func (s *MongoStore) GetMulti(ctx context.Context, domainID string, ids []primitive.ObjectID) ([]*Record, error) {
	cur, err := s.coll.Find(ctx, bson.M{"domainId": domainID, "_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var rs []*Record
	if err := cur.All(ctx, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// CountStatus counts a problem's records grouped by status
func (s *MongoStore) CountStatus(ctx context.Context, domainID string, pid int64) (map[status.Status]int64, error) {
	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"domainId": domainID, "pid": pid}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make(map[status.Status]int64)
	for cur.Next(ctx) {
		var doc struct {
			Status status.Status `bson:"_id"`
			Count  int64         `bson:"count"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.Status] = doc.Count
	}
	return out, cur.Err()
}

// ByUser lists a user's most recent records
func (s *MongoStore) ByUser(ctx context.Context, domainID string, uid int64, limit int64) ([]*Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(limit)
	cur, err := s.coll.Find(ctx, bson.M{"domainId": domainID, "uid": uid}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var rs []*Record
	if err := cur.All(ctx, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// RecentTime sums judged time of the last hour's records
func (s *MongoStore) RecentTime(ctx context.Context, domainID string, uid int64) (uint64, error) {
	cutoff := time.Now().Add(-time.Hour)
	cur, err := s.coll.Find(ctx,
		bson.M{"domainId": domainID, "uid": uid, "submitAt": bson.M{"$gte": cutoff}},
		options.Find().SetProjection(bson.M{"time": 1}))
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)
	var total uint64
	for cur.Next(ctx) {
		var doc struct {
			Time uint64 `bson:"time"`
		}
		if err := cur.Decode(&doc); err != nil {
			return 0, err
		}
		total += doc.Time
	}
	return total, cur.Err()
}
