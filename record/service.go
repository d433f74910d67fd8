package record

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/bus"
	"github.com/lumen-oj/lumen/problem"
	"github.com/lumen-oj/lumen/status"
	"github.com/lumen-oj/lumen/taskqueue"
)

// contest submissions jump the queue
const contestPriorityBase = 50

// Service is the record state machine. All mutation goes through it so
// every change is published on the bus.
type Service struct {
	store    Store
	queue    taskqueue.Queue
	problems problem.Source
	bus      bus.Bus
	logger   *zap.Logger
}

// NewService wires the state machine
func NewService(store Store, queue taskqueue.Queue, problems problem.Source, b bus.Bus, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		queue:    queue,
		problems: problems,
		bus:      b,
		logger:   logger,
	}
}

// Add creates a record in waiting state and optionally enqueues its judge
// task
func (s *Service) Add(ctx context.Context, domainID string, pid, uid int64, lang, code string, enqueue bool, contest *ContestInfo) (*Record, error) {
	r := &Record{
		DomainID:      domainID,
		PID:           pid,
		UID:           uid,
		Lang:          lang,
		Code:          code,
		Status:        status.StatusWaiting,
		TestCases:     []TestCase{},
		JudgeTexts:    []string{},
		CompilerTexts: []string{},
		SubmitAt:      time.Now(),
		Contest:       contest,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}
	if enqueue {
		base := 0
		if contest != nil {
			base = contestPriorityBase
		}
		if err := s.enqueue(ctx, r, s.priority(ctx, domainID, uid, base)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get returns one record
func (s *Service) Get(ctx context.Context, domainID string, id primitive.ObjectID) (*Record, error) {
	return s.store.Get(ctx, domainID, id)
}

// GetMulti returns the known records among ids
func (s *Service) GetMulti(ctx context.Context, domainID string, ids []primitive.ObjectID) ([]*Record, error) {
	return s.store.GetMulti(ctx, domainID, ids)
}

// ByUser lists a user's most recent records
func (s *Service) ByUser(ctx context.Context, domainID string, uid int64, limit int64) ([]*Record, error) {
	return s.store.ByUser(ctx, domainID, uid, limit)
}

// CountStatus counts a problem's records grouped by status
func (s *Service) CountStatus(ctx context.Context, domainID string, pid int64) (map[status.Status]int64, error) {
	return s.store.CountStatus(ctx, domainID, pid)
}

// Update applies one judging delta and publishes the change
func (s *Service) Update(ctx context.Context, domainID string, id primitive.ObjectID, d *Delta) (*Record, error) {
	r, err := s.store.Update(ctx, domainID, id, d)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, r, d.Status != nil && d.Status.Done())
	return r, nil
}

// Reset clears judging output and returns the record to waiting
func (s *Service) Reset(ctx context.Context, domainID string, id primitive.ObjectID, markRejudged bool) (*Record, error) {
	r, err := s.store.Reset(ctx, domainID, id, markRejudged)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, r, false)
	return r, nil
}

// Judge enqueues a judge task for an existing record
func (s *Service) Judge(ctx context.Context, domainID string, id primitive.ObjectID) error {
	r, err := s.store.Get(ctx, domainID, id)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, r, s.priority(ctx, domainID, r.UID, 0))
}

// Rejudge resets the record and enqueues it again
func (s *Service) Rejudge(ctx context.Context, domainID string, id primitive.ObjectID) error {
	r, err := s.Reset(ctx, domainID, id, true)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, r, s.priority(ctx, domainID, r.UID, 0))
}

// Requeue puts a lost in-flight task back on the queue after clearing the
// partial output a disconnected judger may have reported
func (s *Service) Requeue(ctx context.Context, domainID string, id primitive.ObjectID) error {
	r, err := s.Reset(ctx, domainID, id, false)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, r, s.priority(ctx, domainID, r.UID, 0))
}

func (s *Service) enqueue(ctx context.Context, r *Record, priority int) error {
	p, err := s.problems.Get(ctx, r.DomainID, r.PID)
	if err != nil {
		return err
	}
	detail := true
	if p.Config.Detail != nil {
		detail = *p.Config.Detail
	}
	payload, err := taskqueue.EncodePayload(&JudgePayload{
		RecordID:    r.ID,
		DomainID:    r.DomainID,
		PID:         r.PID,
		Lang:        r.Lang,
		Code:        r.Code,
		Data:        p.Data,
		Type:        p.Config.Type,
		TimeLimit:   p.Config.TimeLimit,
		MemoryLimit: p.Config.MemoryLimit,
		FullScore:   p.Config.FullScore,
		Detail:      detail,
	})
	if err != nil {
		return err
	}
	_, err = s.queue.Add(ctx, &taskqueue.Task{
		Type:     TaskTypeJudge,
		Priority: priority,
		Payload:  payload,
	})
	return err
}

// priority lowers a user's queue position the more judge time they used
// recently
func (s *Service) priority(ctx context.Context, domainID string, uid int64, base int) int {
	recent, err := s.store.RecentTime(ctx, domainID, uid)
	if err != nil {
		s.logger.Warn("submission priority lookup failed", zap.Error(err))
		return base
	}
	return base - int(recent/10000)
}

func (s *Service) publish(ctx context.Context, r *Record, done bool) {
	ev := &bus.RecordChange{
		RecordID: r.ID,
		DomainID: r.DomainID,
		UID:      r.UID,
		PID:      r.PID,
		Status:   r.Status,
		Score:    r.Score,
		Done:     done,
	}
	if r.Contest != nil {
		tid := r.Contest.TID
		ev.ContestID = &tid
	}
	if done {
		judgedTotal.WithLabelValues(r.Status.String()).Inc()
	}
	if err := s.bus.PublishRecordChange(ctx, ev); err != nil {
		s.logger.Warn("record change publish failed",
			zap.String("rid", r.ID.Hex()), zap.Error(err))
	}
}
