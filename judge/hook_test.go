package judge

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/bus"
	"github.com/lumen-oj/lumen/contest"
	"github.com/lumen-oj/lumen/record"
	"github.com/lumen-oj/lumen/status"
)

type scorerCall struct {
	domainID string
	tid      primitive.ObjectID
	uid      int64
	entry    contest.JournalEntry
}

type stubScorer struct {
	updates chan scorerCall
	recalcs chan primitive.ObjectID
}

func newStubScorer() *stubScorer {
	return &stubScorer{
		updates: make(chan scorerCall, 8),
		recalcs: make(chan primitive.ObjectID, 8),
	}
}

func (s *stubScorer) UpdateStatus(_ context.Context, domainID string, tid primitive.ObjectID, uid int64, entry contest.JournalEntry) (*contest.StatusDoc, error) {
	s.updates <- scorerCall{domainID: domainID, tid: tid, uid: uid, entry: entry}
	return &contest.StatusDoc{}, nil
}

func (s *stubScorer) RecalcStatus(_ context.Context, _ string, tid primitive.ObjectID) error {
	s.recalcs <- tid
	return nil
}

func TestContestHookScoresTerminalContestRecord(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tid := primitive.NewObjectID()
	scorer := newStubScorer()
	hook := NewContestHook(e.bus, e.records, scorer, zap.NewNop())
	go hook.Run(ctx)
	// subscription must exist before events are published
	time.Sleep(10 * time.Millisecond)

	r, err := e.records.Add(ctx, "system", 1000, 7, "cc", "x", false, &record.ContestInfo{TID: tid})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e.srv.End(ctx, "judger-1", &EndRequest{
		RecordID: r.ID,
		DomainID: "system",
		Status:   status.StatusAccepted,
		Score:    100,
	}); err != nil {
		t.Fatalf("End: %v", err)
	}

	select {
	case call := <-scorer.updates:
		if call.domainID != "system" || call.tid != tid || call.uid != 7 {
			t.Errorf("unexpected scorer call: %+v", call)
		}
		if call.entry.RID != r.ID || call.entry.Status != status.StatusAccepted || call.entry.Score != 100 {
			t.Errorf("unexpected journal entry: %+v", call.entry)
		}
		if call.entry.SubmitAt.IsZero() {
			t.Error("journal entry lost the submit time")
		}
	case <-time.After(time.Second):
		t.Fatal("terminal contest record did not reach the scorer")
	}
}

func TestContestHookIgnoresNonContestAndPartial(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tid := primitive.NewObjectID()
	scorer := newStubScorer()
	hook := NewContestHook(e.bus, e.records, scorer, zap.NewNop())
	go hook.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	// terminal but outside any contest
	plain, err := e.records.Add(ctx, "system", 1000, 7, "cc", "x", false, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e.srv.End(ctx, "judger-1", &EndRequest{
		RecordID: plain.ID, DomainID: "system", Status: status.StatusAccepted,
	}); err != nil {
		t.Fatalf("End: %v", err)
	}

	// contest record, non-terminal progress only
	inContest, err := e.records.Add(ctx, "system", 1000, 7, "cc", "x", false, &record.ContestInfo{TID: tid})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	judging := status.StatusJudging
	if err := e.srv.Next(ctx, &NextRequest{
		RecordID: inContest.ID, DomainID: "system", Status: &judging,
	}); err != nil {
		t.Fatalf("Next: %v", err)
	}

	select {
	case call := <-scorer.updates:
		t.Errorf("scorer called for a non-scorable event: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContestHookHandlesRecompute(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tid := primitive.NewObjectID()
	scorer := newStubScorer()
	hook := NewContestHook(e.bus, e.records, scorer, zap.NewNop())
	go hook.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	if err := e.bus.PublishContestRecompute(ctx, &bus.ContestRecompute{
		DomainID: "system", ContestID: tid,
	}); err != nil {
		t.Fatalf("PublishContestRecompute: %v", err)
	}

	select {
	case got := <-scorer.recalcs:
		if got != tid {
			t.Errorf("recalc for %s, want %s", got.Hex(), tid.Hex())
		}
	case <-time.After(time.Second):
		t.Fatal("recompute event did not reach the scorer")
	}
}
