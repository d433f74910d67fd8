package judge

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/record"
	"github.com/lumen-oj/lumen/status"
	"github.com/lumen-oj/lumen/taskqueue"
)

// Service applies judger reports to records and hands out queued judge
// tasks. Both delivery modes go through the same three operations.
type Service struct {
	queue   taskqueue.Queue
	records *record.Service
	logger  *zap.Logger
}

// NewService creates the gateway service
func NewService(queue taskqueue.Queue, records *record.Service, logger *zap.Logger) *Service {
	return &Service{queue: queue, records: records, logger: logger}
}

// Claim atomically takes the best visible judge task, marks its record as
// fetched by the judger and returns the payload. Returns (nil, nil) when
// no task is due. Tasks whose record disappeared are dropped; the dequeue
// already removed them from the queue.
func (s *Service) Claim(ctx context.Context, judgerID string) (*record.JudgePayload, error) {
	for {
		t, err := s.queue.GetFirst(ctx, taskqueue.Filter{Type: record.TaskTypeJudge})
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		var p record.JudgePayload
		if err := t.Bind(&p); err != nil {
			s.logger.Warn("dropping malformed judge task",
				zap.String("task", t.ID.Hex()), zap.Error(err))
			continue
		}
		st := status.StatusFetched
		now := time.Now()
		_, err = s.records.Update(ctx, p.DomainID, p.RecordID, &record.Delta{
			Status:  &st,
			Judger:  &judgerID,
			JudgeAt: &now,
		})
		if errors.Is(err, record.ErrRecordNotFound) {
			s.logger.Warn("dropping judge task for deleted record",
				zap.String("rid", p.RecordID.Hex()))
			continue
		}
		if err != nil {
			// the dequeue already removed the task; put it back so a
			// transient store error cannot swallow the submission
			if _, aerr := s.queue.Add(ctx, &taskqueue.Task{
				Type:     t.Type,
				SubType:  t.SubType,
				Priority: t.Priority,
				Payload:  t.Payload,
			}); aerr != nil {
				s.logger.Error("task re-enqueue after failed claim",
					zap.String("rid", p.RecordID.Hex()), zap.Error(aerr))
			}
			return nil, err
		}
		claimedTotal.Inc()
		return &p, nil
	}
}

// Next applies one partial progress report
func (s *Service) Next(ctx context.Context, req *NextRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	d := req.delta()
	if d.Empty() {
		return nil
	}
	if _, err := s.records.Update(ctx, req.DomainID, req.RecordID, d); err != nil {
		return err
	}
	nextTotal.Inc()
	return nil
}

// End applies the terminal report of one judging attempt. The terminal
// update publishes a done change event, which drives the contest
// post-judge hook.
func (s *Service) End(ctx context.Context, judgerID string, req *EndRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	if _, err := s.records.Update(ctx, req.DomainID, req.RecordID, req.delta(judgerID, time.Now())); err != nil {
		return err
	}
	endTotal.Inc()
	return nil
}

// Requeue returns a lost in-flight task to the queue. Used by the push
// handler when a connection drops without sending end.
func (s *Service) Requeue(ctx context.Context, domainID string, rid primitive.ObjectID) error {
	requeueTotal.Inc()
	return s.records.Requeue(ctx, domainID, rid)
}
