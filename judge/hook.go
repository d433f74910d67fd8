package judge

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/bus"
	"github.com/lumen-oj/lumen/contest"
	"github.com/lumen-oj/lumen/record"
)

// RecordSource looks up records for the hook
type RecordSource interface {
	Get(ctx context.Context, domainID string, id primitive.ObjectID) (*record.Record, error)
}

// ContestScorer folds judged attempts into contest statistics
type ContestScorer interface {
	UpdateStatus(ctx context.Context, domainID string, tid primitive.ObjectID, uid int64, entry contest.JournalEntry) (*contest.StatusDoc, error)
	RecalcStatus(ctx context.Context, domainID string, tid primitive.ObjectID) error
}

// ContestHook consumes record change events and feeds terminal contest
// submissions into contest scoring. It subscribes on the bus instead of
// being called by the record state machine, so scoring can run on a
// different node than judging.
type ContestHook struct {
	bus      bus.Bus
	records  RecordSource
	contests ContestScorer
	logger   *zap.Logger
}

// NewContestHook wires the post-judge hook
func NewContestHook(b bus.Bus, records RecordSource, contests ContestScorer, logger *zap.Logger) *ContestHook {
	return &ContestHook{bus: b, records: records, contests: contests, logger: logger}
}

// Run consumes events until ctx is canceled
func (h *ContestHook) Run(ctx context.Context) {
	changes, cancelChanges := h.bus.SubscribeRecordChange()
	defer cancelChanges()
	recomputes, cancelRecomputes := h.bus.SubscribeContestRecompute()
	defer cancelRecomputes()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			h.onRecordChange(ctx, ev)
		case ev, ok := <-recomputes:
			if !ok {
				return
			}
			if err := h.contests.RecalcStatus(ctx, ev.DomainID, ev.ContestID); err != nil {
				h.logger.Warn("contest recompute failed",
					zap.String("tid", ev.ContestID.Hex()), zap.Error(err))
			}
		}
	}
}

func (h *ContestHook) onRecordChange(ctx context.Context, ev *bus.RecordChange) {
	if !ev.Done || ev.ContestID == nil {
		return
	}
	// the event carries no timestamp; load the record for its submit time
	r, err := h.records.Get(ctx, ev.DomainID, ev.RecordID)
	if err != nil {
		h.logger.Warn("contest hook record lookup failed",
			zap.String("rid", ev.RecordID.Hex()), zap.Error(err))
		return
	}
	entry := contest.JournalEntry{
		RID:      r.ID,
		PID:      r.PID,
		Status:   r.Status,
		Score:    r.Score,
		SubmitAt: r.SubmitAt,
	}
	_, err = h.contests.UpdateStatus(ctx, ev.DomainID, *ev.ContestID, ev.UID, entry)
	if errors.Is(err, contest.ErrNotAttended) {
		// submitted to a contest problem without attending, nothing to score
		return
	}
	if err != nil {
		h.logger.Warn("contest status update failed",
			zap.String("tid", ev.ContestID.Hex()),
			zap.Int64("uid", ev.UID), zap.Error(err))
	}
}
