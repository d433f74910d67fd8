package contest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/taskqueue"
)

// ErrScoreboardHidden is returned when the rule hides the scoreboard at
// the requested time
var ErrScoreboardHidden = errors.New("contest scoreboard hidden")

// journal updates retry on rev conflict this many times
const statusUpdateRetries = 3

// SubTypeRating is the schedule subtype that settles ratings once a
// rated contest has ended
const SubTypeRating = "contest.rating"

// RatingTask is the payload of a rating settlement task
type RatingTask struct {
	DomainID  string             `bson:"domainId"`
	ContestID primitive.ObjectID `bson:"tid"`
}

// Model persists contests and per-contestant status documents
type Model struct {
	coll       *mongo.Collection
	statusColl *mongo.Collection
	queue      taskqueue.Queue
	logger     *zap.Logger
}

// NewModel creates the contest model
func NewModel(coll, statusColl *mongo.Collection, queue taskqueue.Queue, logger *zap.Logger) *Model {
	return &Model{coll: coll, statusColl: statusColl, queue: queue, logger: logger}
}

// ScheduleSettlement enqueues the rating settlement of a rated contest,
// due at its end time
func (m *Model) ScheduleSettlement(ctx context.Context, c *Contest) error {
	payload, err := taskqueue.EncodePayload(&RatingTask{DomainID: c.DomainID, ContestID: c.ID})
	if err != nil {
		return err
	}
	if _, err := m.queue.Add(ctx, &taskqueue.Task{
		Type:         taskqueue.TypeSchedule,
		SubType:      SubTypeRating,
		ExecuteAfter: c.EndAt,
		Payload:      payload,
	}); err != nil {
		return err
	}
	m.logger.Info("rating settlement scheduled",
		zap.String("tid", c.ID.Hex()), zap.Time("executeAfter", c.EndAt))
	return nil
}

// Add validates and inserts a contest. Rated contests get their rating
// settlement scheduled for the end time.
func (m *Model) Add(ctx context.Context, c *Contest) (primitive.ObjectID, error) {
	if err := Validate(c); err != nil {
		return primitive.NilObjectID, err
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := m.coll.InsertOne(ctx, c); err != nil {
		return primitive.NilObjectID, err
	}
	if c.Rated {
		if err := m.ScheduleSettlement(ctx, c); err != nil {
			return primitive.NilObjectID, err
		}
	}
	return c.ID, nil
}

// Edit validates and replaces a contest document. A contest edited from
// unrated to rated gets its settlement scheduled; an already scheduled
// settlement whose end time moved is rescheduled by the worker handler.
func (m *Model) Edit(ctx context.Context, c *Contest) error {
	if err := Validate(c); err != nil {
		return err
	}
	var prev Contest
	err := m.coll.FindOneAndReplace(ctx, bson.M{"_id": c.ID, "domainId": c.DomainID}, c).Decode(&prev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s/%s", ErrContestNotFound, c.DomainID, c.ID.Hex())
	}
	if err != nil {
		return err
	}
	if c.Rated && !prev.Rated {
		return m.ScheduleSettlement(ctx, c)
	}
	return nil
}

// Get returns one contest
func (m *Model) Get(ctx context.Context, domainID string, tid primitive.ObjectID) (*Contest, error) {
	var c Contest
	err := m.coll.FindOne(ctx, bson.M{"_id": tid, "domainId": domainID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s/%s", ErrContestNotFound, domainID, tid.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Attend registers a contestant. The status document is keyed unique on
// (domain, contest, user); a second attend trips the unique index.
func (m *Model) Attend(ctx context.Context, domainID string, tid primitive.ObjectID, uid int64) error {
	_, err := m.statusColl.InsertOne(ctx, &StatusDoc{
		DomainID: domainID,
		TID:      tid,
		UID:      uid,
		Attend:   1,
		Journal:  []JournalEntry{},
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: contest %s user %d", ErrAlreadyAttended, tid.Hex(), uid)
	}
	if err != nil {
		return err
	}
	_, err = m.coll.UpdateOne(ctx, bson.M{"_id": tid, "domainId": domainID}, bson.M{"$inc": bson.M{"attend": 1}})
	return err
}

// GetStatus returns a contestant's status document
func (m *Model) GetStatus(ctx context.Context, domainID string, tid primitive.ObjectID, uid int64) (*StatusDoc, error) {
	var ts StatusDoc
	err := m.statusColl.FindOne(ctx, bson.M{"domainId": domainID, "tid": tid, "uid": uid}).Decode(&ts)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: contest %s user %d", ErrNotAttended, tid.Hex(), uid)
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// appendJournal merges one judged attempt, replacing a re-delivered rid
// instead of duplicating it
func appendJournal(journal []JournalEntry, entry JournalEntry) []JournalEntry {
	for i := range journal {
		if journal[i].RID == entry.RID {
			journal[i] = entry
			return journal
		}
	}
	return append(journal, entry)
}

// UpdateStatus appends one judged attempt to the contestant journal and
// recomputes the rule aggregate. Fails with ErrNotAttended for users who
// never attended.
func (m *Model) UpdateStatus(ctx context.Context, domainID string, tid primitive.ObjectID, uid int64, entry JournalEntry) (*StatusDoc, error) {
	c, err := m.Get(ctx, domainID, tid)
	if err != nil {
		return nil, err
	}
	rule, err := GetRule(c.Rule)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < statusUpdateRetries; attempt++ {
		ts, err := m.GetStatus(ctx, domainID, tid, uid)
		if err != nil {
			return nil, err
		}
		if ts.Attend == 0 {
			return nil, fmt.Errorf("%w: contest %s user %d", ErrNotAttended, tid.Hex(), uid)
		}

		journal := appendJournal(append([]JournalEntry(nil), ts.Journal...), entry)
		sort.SliceStable(journal, func(i, j int) bool {
			return journal[i].SubmitAt.Before(journal[j].SubmitAt)
		})
		agg := rule.Stat(c, journal)

		res, err := m.statusColl.UpdateOne(ctx,
			bson.M{"_id": ts.ID, "rev": ts.Rev},
			bson.M{
				"$set": bson.M{
					"journal":      journal,
					"accept":       agg.Accept,
					"score":        agg.Score,
					"penaltyScore": agg.PenaltyScore,
					"time":         agg.Time,
					"detail":       agg.Detail,
				},
				"$inc": bson.M{"rev": 1},
			})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			ts.Journal = journal
			ts.Aggregate = *agg
			ts.Rev++
			return ts, nil
		}
		// rev moved under us, reload and retry
	}
	return nil, fmt.Errorf("contest status update conflict: contest %s user %d", tid.Hex(), uid)
}

// RecalcStatus recomputes every contestant's aggregate from its journal
func (m *Model) RecalcStatus(ctx context.Context, domainID string, tid primitive.ObjectID) error {
	c, err := m.Get(ctx, domainID, tid)
	if err != nil {
		return err
	}
	rule, err := GetRule(c.Rule)
	if err != nil {
		return err
	}
	cur, err := m.statusColl.Find(ctx, bson.M{"domainId": domainID, "tid": tid})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var ts StatusDoc
		if err := cur.Decode(&ts); err != nil {
			return err
		}
		agg := rule.Stat(c, ts.Journal)
		if _, err := m.statusColl.UpdateOne(ctx,
			bson.M{"_id": ts.ID},
			bson.M{
				"$set": bson.M{
					"accept":       agg.Accept,
					"score":        agg.Score,
					"penaltyScore": agg.PenaltyScore,
					"time":         agg.Time,
					"detail":       agg.Detail,
				},
				"$inc": bson.M{"rev": 1},
			}); err != nil {
			return err
		}
	}
	return cur.Err()
}

// Ranked loads all attended contestants ranked by the contest rule
func (m *Model) Ranked(ctx context.Context, c *Contest) ([]RankedStatus, error) {
	rule, err := GetRule(c.Rule)
	if err != nil {
		return nil, err
	}
	cur, err := m.statusColl.Find(ctx,
		bson.M{"domainId": c.DomainID, "tid": c.ID, "attend": 1},
		options.Find())
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []*StatusDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return Rank(rule, docs), nil
}

// Scoreboard renders the board, honoring the rule visibility gate
func (m *Model) Scoreboard(ctx context.Context, domainID string, tid primitive.ObjectID, isExport bool, tr Translator, users UserDict, problems ProblemDict) (*Contest, []Row, error) {
	c, err := m.Get(ctx, domainID, tid)
	if err != nil {
		return nil, nil, err
	}
	rule, err := GetRule(c.Rule)
	if err != nil {
		return nil, nil, err
	}
	if !rule.ShowScoreboard(c, time.Now()) {
		return nil, nil, fmt.Errorf("%w: contest %s", ErrScoreboardHidden, tid.Hex())
	}
	ranked, err := m.Ranked(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	if tr == nil {
		tr = func(s string) string { return s }
	}
	return c, rule.Scoreboard(isExport, tr, c, ranked, users, problems), nil
}
