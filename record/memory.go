package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/status"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps records in process memory, for single-node development
// and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]*Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[primitive.ObjectID]*Record)}
}

func (s *MemoryStore) get(domainID string, id primitive.ObjectID) (*Record, error) {
	r, ok := s.records[id]
	if !ok || r.DomainID != domainID {
		return nil, &NotFoundError{DomainID: domainID, RecordID: id}
	}
	return r, nil
}

func clone(r *Record) *Record {
	c := *r
	c.TestCases = append([]TestCase(nil), r.TestCases...)
	c.JudgeTexts = append([]string(nil), r.JudgeTexts...)
	c.CompilerTexts = append([]string(nil), r.CompilerTexts...)
	if r.Contest != nil {
		ci := *r.Contest
		c.Contest = &ci
	}
	return &c
}

// Insert stores a new record
func (s *MemoryStore) Insert(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.records[r.ID] = clone(r)
	return nil
}

// Get returns one record
func (s *MemoryStore) Get(_ context.Context, domainID string, id primitive.ObjectID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(domainID, id)
	if err != nil {
		return nil, err
	}
	return clone(r), nil
}

// Update applies the delta under the store lock
func (s *MemoryStore) Update(_ context.Context, domainID string, id primitive.ObjectID, d *Delta) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(domainID, id)
	if err != nil {
		return nil, err
	}
	if d.Status != nil {
		r.Status = *d.Status
	}
	if d.Score != nil {
		r.Score = *d.Score
	}
	if d.Time != nil {
		r.Time = *d.Time
	}
	if d.Memory != nil {
		r.Memory = *d.Memory
	}
	if d.Progress != nil {
		r.Progress = *d.Progress
	}
	if d.Judger != nil {
		r.Judger = *d.Judger
	}
	if d.JudgeAt != nil {
		at := *d.JudgeAt
		r.JudgeAt = &at
	}
	if d.Case != nil {
		r.TestCases = append(r.TestCases, *d.Case)
	}
	if d.JudgeText != "" {
		r.JudgeTexts = append(r.JudgeTexts, d.JudgeText)
	}
	if d.CompilerText != "" {
		r.CompilerTexts = append(r.CompilerTexts, d.CompilerText)
	}
	return clone(r), nil
}

// Reset clears accumulated judging output
func (s *MemoryStore) Reset(_ context.Context, domainID string, id primitive.ObjectID, markRejudged bool) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.get(domainID, id)
	if err != nil {
		return nil, err
	}
	r.Status = status.StatusWaiting
	r.Score = 0
	r.Time = 0
	r.Memory = 0
	r.Progress = 0
	r.TestCases = nil
	r.JudgeTexts = nil
	r.CompilerTexts = nil
	r.Judger = ""
	r.JudgeAt = nil
	if markRejudged {
		r.Rejudged = true
	}
	return clone(r), nil
}

// GetMulti returns the known records among ids
func (s *MemoryStore) GetMulti(_ context.Context, domainID string, ids []primitive.ObjectID) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rs []*Record
	for _, id := range ids {
		if r, ok := s.records[id]; ok && r.DomainID == domainID {
			rs = append(rs, clone(r))
		}
	}
	return rs, nil
}

// CountStatus counts a problem's records grouped by status
func (s *MemoryStore) CountStatus(_ context.Context, domainID string, pid int64) (map[status.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[status.Status]int64)
	for _, r := range s.records {
		if r.DomainID == domainID && r.PID == pid {
			out[r.Status]++
		}
	}
	return out, nil
}

// ByUser lists a user's most recent records
func (s *MemoryStore) ByUser(_ context.Context, domainID string, uid int64, limit int64) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rs []*Record
	for _, r := range s.records {
		if r.DomainID == domainID && r.UID == uid {
			rs = append(rs, clone(r))
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID.Hex() > rs[j].ID.Hex() })
	if int64(len(rs)) > limit {
		rs = rs[:limit]
	}
	return rs, nil
}

// RecentTime sums judged time of the last hour's records
func (s *MemoryStore) RecentTime(_ context.Context, domainID string, uid int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-time.Hour)
	var total uint64
	for _, r := range s.records {
		if r.DomainID == domainID && r.UID == uid && r.SubmitAt.After(cutoff) {
			total += r.Time
		}
	}
	return total, nil
}
