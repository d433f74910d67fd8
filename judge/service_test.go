package judge

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/bus"
	"github.com/lumen-oj/lumen/problem"
	"github.com/lumen-oj/lumen/record"
	"github.com/lumen-oj/lumen/status"
	"github.com/lumen-oj/lumen/taskqueue"
)

type stubProblems struct{}

func (stubProblems) Get(_ context.Context, domainID string, pid int64) (*problem.Problem, error) {
	cfg, _ := problem.ParseConfig(nil)
	return &problem.Problem{DomainID: domainID, PID: pid, Data: "handle", Config: cfg}, nil
}

type testEnv struct {
	srv     *Service
	records *record.Service
	queue   *taskqueue.MemoryQueue
	bus     *bus.ChannelBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, record.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store record.Store) *testEnv {
	t.Helper()
	q := taskqueue.NewMemoryQueue()
	b := bus.NewChannelBus(zap.NewNop())
	records := record.NewService(store, q, stubProblems{}, b, zap.NewNop())
	return &testEnv{
		srv:     NewService(q, records, zap.NewNop()),
		records: records,
		queue:   q,
		bus:     b,
	}
}

// flakyStore fails a fixed number of updates before recovering
type flakyStore struct {
	record.Store
	failures int
}

func (s *flakyStore) Update(ctx context.Context, domainID string, id primitive.ObjectID, d *record.Delta) (*record.Record, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("store unavailable")
	}
	return s.Store.Update(ctx, domainID, id, d)
}

func (e *testEnv) submit(t *testing.T, ctx context.Context) *record.Record {
	t.Helper()
	r, err := e.records.Add(ctx, "system", 1000, 1, "cc", "int main() {}", true, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return r
}

func TestClaimMarksRecordFetched(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.submit(t, ctx)

	p, err := e.srv.Claim(ctx, "judger-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if p == nil || p.RecordID != r.ID {
		t.Fatalf("claimed %+v, want record %s", p, r.ID.Hex())
	}

	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != status.StatusFetched {
		t.Errorf("status = %v, want fetched", got.Status)
	}
	if got.Judger != "judger-1" {
		t.Errorf("judger = %q, want judger-1", got.Judger)
	}

	n, _ := e.queue.Count(ctx, taskqueue.Filter{Type: record.TaskTypeJudge})
	if n != 0 {
		t.Errorf("queue holds %d tasks after claim, want 0", n)
	}
}

func TestClaimEmptyQueue(t *testing.T) {
	e := newTestEnv(t)
	p, err := e.srv.Claim(context.Background(), "judger-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if p != nil {
		t.Errorf("claimed %+v from an empty queue", p)
	}
}

func TestClaimSkipsTaskForDeletedRecord(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	payload, err := taskqueue.EncodePayload(&record.JudgePayload{
		RecordID: primitive.NewObjectID(),
		DomainID: "system",
	})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	if _, err := e.queue.Add(ctx, &taskqueue.Task{
		Type:     record.TaskTypeJudge,
		Priority: 100,
		Payload:  payload,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r := e.submit(t, ctx)

	p, err := e.srv.Claim(ctx, "judger-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if p == nil || p.RecordID != r.ID {
		t.Fatalf("claimed %+v, want the live record %s", p, r.ID.Hex())
	}
}

// A transient store failure while marking the record fetched must not
// swallow the submission: the dequeued task goes back to the queue.
func TestClaimRestoresTaskOnStoreError(t *testing.T) {
	fs := &flakyStore{Store: record.NewMemoryStore(), failures: 1}
	e := newTestEnvWithStore(t, fs)
	ctx := context.Background()
	r := e.submit(t, ctx)

	if _, err := e.srv.Claim(ctx, "judger-1"); err == nil {
		t.Fatal("Claim with a failing store returned no error")
	}
	n, _ := e.queue.Count(ctx, taskqueue.Filter{Type: record.TaskTypeJudge})
	if n != 1 {
		t.Fatalf("queue holds %d tasks after the failed claim, want 1", n)
	}
	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != status.StatusWaiting {
		t.Errorf("status = %v, want waiting", got.Status)
	}

	// the store recovered; the same submission is claimed normally
	p, err := e.srv.Claim(ctx, "judger-1")
	if err != nil {
		t.Fatalf("Claim after recovery: %v", err)
	}
	if p == nil || p.RecordID != r.ID {
		t.Fatalf("claimed %+v after recovery, want record %s", p, r.ID.Hex())
	}
}

func TestNextThenEnd(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.submit(t, ctx)
	if _, err := e.srv.Claim(ctx, "judger-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	judging := status.StatusJudging
	if err := e.srv.Next(ctx, &NextRequest{
		RecordID: r.ID,
		DomainID: "system",
		Status:   &judging,
		Case: &CaseResult{
			ID: 1, Status: status.StatusAccepted, Score: 100, Time: 12, Memory: 2048,
		},
	}); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := e.srv.End(ctx, "judger-1", &EndRequest{
		RecordID: r.ID,
		DomainID: "system",
		Status:   status.StatusAccepted,
		Score:    100,
		Time:     12,
		Memory:   2048,
	}); err != nil {
		t.Fatalf("End: %v", err)
	}

	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != status.StatusAccepted || got.Score != 100 {
		t.Errorf("final record %v score %v, want accepted 100", got.Status, got.Score)
	}
	if len(got.TestCases) != 1 {
		t.Fatalf("record has %d test cases, want 1", len(got.TestCases))
	}
	if got.TestCases[0].Time != 12 || got.TestCases[0].Memory != 2048 {
		t.Errorf("unexpected test case: %+v", got.TestCases[0])
	}
	if got.Judger != "judger-1" {
		t.Errorf("judger = %q, want judger-1", got.Judger)
	}
}

// Judgers may bundle the last test case and compiler output with the end
// report instead of sending a trailing next.
func TestEndAppendsFinalCase(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.submit(t, ctx)
	if _, err := e.srv.Claim(ctx, "judger-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	judging := status.StatusJudging
	if err := e.srv.Next(ctx, &NextRequest{
		RecordID: r.ID,
		DomainID: "system",
		Status:   &judging,
		Case: &CaseResult{
			ID: 1, Status: status.StatusAccepted, Score: 50, Time: 10, Memory: 1024,
		},
	}); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := e.srv.End(ctx, "judger-1", &EndRequest{
		RecordID: r.ID,
		DomainID: "system",
		Status:   status.StatusAccepted,
		Score:    100,
		Time:     15,
		Memory:   2048,
		Case: &CaseResult{
			ID: 2, Status: status.StatusAccepted, Score: 50, Time: 15, Memory: 2048,
		},
		CompilerText: "no warnings",
	}); err != nil {
		t.Fatalf("End: %v", err)
	}

	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.TestCases) != 2 {
		t.Fatalf("record has %d test cases, want 2", len(got.TestCases))
	}
	if got.TestCases[1].ID != 2 || got.TestCases[1].Score != 50 {
		t.Errorf("unexpected final test case: %+v", got.TestCases[1])
	}
	if len(got.CompilerTexts) != 1 || got.CompilerTexts[0] != "no warnings" {
		t.Errorf("compiler texts = %v, want the end report's text", got.CompilerTexts)
	}
}

// A next report may update the running aggregate alongside the case
func TestNextUpdatesAggregate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.submit(t, ctx)

	judging := status.StatusJudging
	score := 50.0
	tm := uint64(10)
	mem := uint64(1024)
	if err := e.srv.Next(ctx, &NextRequest{
		RecordID: r.ID,
		DomainID: "system",
		Status:   &judging,
		Score:    &score,
		Time:     &tm,
		Memory:   &mem,
	}); err != nil {
		t.Fatalf("Next: %v", err)
	}

	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Score != 50 || got.Time != 10 || got.Memory != 1024 {
		t.Errorf("aggregate = %v/%v/%v, want 50/10/1024", got.Score, got.Time, got.Memory)
	}
}

func TestNextRejectsTerminalStatus(t *testing.T) {
	e := newTestEnv(t)
	done := status.StatusAccepted
	err := e.srv.Next(context.Background(), &NextRequest{
		RecordID: primitive.NewObjectID(),
		DomainID: "system",
		Status:   &done,
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestEndRequiresTerminalStatus(t *testing.T) {
	e := newTestEnv(t)
	err := e.srv.End(context.Background(), "judger-1", &EndRequest{
		RecordID: primitive.NewObjectID(),
		DomainID: "system",
		Status:   status.StatusJudging,
	})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestEndUnknownRecord(t *testing.T) {
	e := newTestEnv(t)
	err := e.srv.End(context.Background(), "judger-1", &EndRequest{
		RecordID: primitive.NewObjectID(),
		DomainID: "system",
		Status:   status.StatusAccepted,
	})
	if !errors.Is(err, record.ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

// A dropped connection must return its in-flight task to the queue
// exactly once, with the record reset to waiting.
func TestDisconnectRequeuesInflightOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.submit(t, ctx)

	p, err := e.srv.Claim(ctx, "judger-1")
	if err != nil || p == nil {
		t.Fatalf("Claim: %v %v", p, err)
	}

	c := &wsConn{
		id:       "judger-1",
		srv:      e.srv,
		logger:   zap.NewNop(),
		inflight: map[primitive.ObjectID]string{p.RecordID: p.DomainID},
	}
	c.requeueInflight()
	c.requeueInflight()

	n, _ := e.queue.Count(ctx, taskqueue.Filter{Type: record.TaskTypeJudge})
	if n != 1 {
		t.Errorf("queue holds %d tasks after disconnect, want 1", n)
	}
	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != status.StatusWaiting {
		t.Errorf("status = %v, want waiting", got.Status)
	}
	if got.Rejudged {
		t.Error("disconnect requeue must not mark the record rejudged")
	}
}

// A task claimed by the dispatch loop right as the connection drops must
// still be requeued: teardown waits for the loop to stop tracking before
// draining the in-flight map.
func TestDisconnectRequeuesTaskClaimedDuringTeardown(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.submit(t, ctx)

	c := &wsConn{
		id:           "judger-1",
		srv:          e.srv,
		logger:       zap.NewNop(),
		sendCh:       make(chan any, 16),
		taskDone:     make(chan struct{}, 1),
		dispatchDone: make(chan struct{}),
		inflight:     map[primitive.ObjectID]string{},
	}
	loopCtx, cancel := context.WithCancel(ctx)
	go c.dispatchLoop(loopCtx)

	// the loop tracks the task before pushing it down the connection
	<-c.sendCh

	// connection drops with the task still in flight
	cancel()
	<-c.dispatchDone
	c.requeueInflight()

	n, _ := e.queue.Count(ctx, taskqueue.Filter{Type: record.TaskTypeJudge})
	if n != 1 {
		t.Errorf("queue holds %d tasks after disconnect, want 1", n)
	}
	got, err := e.records.Get(ctx, "system", r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != status.StatusWaiting {
		t.Errorf("status = %v, want waiting", got.Status)
	}
}

func TestEndClearsInflight(t *testing.T) {
	rid := primitive.NewObjectID()
	c := &wsConn{
		logger:   zap.NewNop(),
		inflight: map[primitive.ObjectID]string{rid: "system"},
	}
	if !c.untrack(rid) {
		t.Error("untrack of a tracked record returned false")
	}
	if c.untrack(rid) {
		t.Error("second untrack of the same record returned true")
	}
}
