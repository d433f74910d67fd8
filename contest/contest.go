// Package contest implements the contest scoring engine: per-contestant
// journals of judged attempts, pluggable ranking rules and scoreboard
// rendering, and the contest document model.
package contest

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/status"
)

// Error taxonomy of the contest engine
var (
	ErrContestNotFound = errors.New("contest not found")
	ErrValidation      = errors.New("contest validation failed")
	ErrNotAttended     = errors.New("contest not attended")
	ErrAlreadyAttended = errors.New("contest already attended")
)

// ValidationError carries the offending field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid contest %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Contest is the contest document (tdoc)
type Contest struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DomainID string             `bson:"domainId" json:"domainId"`
	Title    string             `bson:"title" json:"title"`
	Owner    int64              `bson:"owner" json:"owner"`
	Rule     RuleID             `bson:"rule" json:"rule"`
	BeginAt  time.Time          `bson:"beginAt" json:"beginAt"`
	EndAt    time.Time          `bson:"endAt" json:"endAt"`
	PIDs     []int64            `bson:"pids" json:"pids"`
	Rated    bool               `bson:"rated" json:"rated"`
	Attend   int64              `bson:"attend" json:"attend"`

	// assignment penalty schedule
	PenaltySince *time.Time `bson:"penaltySince,omitempty" json:"penaltySince,omitempty"`
	// hours past penaltySince -> score multiplier
	PenaltyRules []PenaltyRule `bson:"penaltyRules,omitempty" json:"penaltyRules,omitempty"`
}

// PenaltyRule is one breakpoint of the assignment penalty schedule
type PenaltyRule struct {
	Hours      float64 `bson:"hours" json:"hours"`
	Multiplier float64 `bson:"multiplier" json:"multiplier"`
}

// HasProblem reports whether pid belongs to the contest
func (c *Contest) HasProblem(pid int64) bool {
	for _, p := range c.PIDs {
		if p == pid {
			return true
		}
	}
	return false
}

// Contest phases
func (c *Contest) IsNotStarted(now time.Time) bool {
	return now.Before(c.BeginAt)
}

func (c *Contest) IsOngoing(now time.Time) bool {
	return !now.Before(c.BeginAt) && now.Before(c.EndAt)
}

func (c *Contest) IsDone(now time.Time) bool {
	return !now.Before(c.EndAt)
}

// IsExtended reports the assignment grace period past penaltySince
func (c *Contest) IsExtended(now time.Time) bool {
	return c.PenaltySince != nil && !now.Before(*c.PenaltySince) && now.Before(c.EndAt)
}

// StatusText is the human-readable phase
func (c *Contest) StatusText(now time.Time) string {
	switch {
	case c.IsNotStarted(now):
		return "not_started"
	case c.IsOngoing(now):
		return "ongoing"
	default:
		return "finished"
	}
}

// JournalEntry is one judged attempt inside a contest. Entries are
// appended in judge order and deduplicated by rid on re-delivery.
type JournalEntry struct {
	RID    primitive.ObjectID `bson:"rid" json:"rid"`
	PID    int64              `bson:"pid" json:"pid"`
	Status status.Status      `bson:"status" json:"status"`
	Score  float64            `bson:"score" json:"score"`
	// SubmitAt is the explicit submission timestamp used for time scoring
	SubmitAt time.Time `bson:"submitAt" json:"submitAt"`
}

// Accepted reports whether the attempt solved the problem
func (j *JournalEntry) Accepted() bool {
	return j.Status == status.StatusAccepted
}

// ProblemDetail is the per-problem aggregate derived from the journal
type ProblemDetail struct {
	PID      int64              `bson:"pid" json:"pid"`
	RID      primitive.ObjectID `bson:"rid" json:"rid"`
	Status   status.Status      `bson:"status" json:"status"`
	Score    float64            `bson:"score" json:"score"`
	Accepted bool               `bson:"accepted" json:"accepted"`
	// Attempts counts prior wrong (non compile-error) attempts
	Attempts int `bson:"attempts" json:"attempts"`
	// Real is the submission offset from contest begin in seconds;
	// Penalty adds 20 minutes per prior wrong attempt; Time is their sum
	Real    int64 `bson:"real" json:"real"`
	Penalty int64 `bson:"penalty" json:"penalty"`
	Time    int64 `bson:"time" json:"time"`
	// PenaltyScore is the score after the assignment penalty multiplier
	PenaltyScore float64 `bson:"penaltyScore" json:"penaltyScore"`
	// SubmitAt of the effective attempt, for first-blood detection
	SubmitAt time.Time `bson:"submitAt" json:"submitAt"`
}

// Aggregate is a rule-specific fold of the journal
type Aggregate struct {
	Accept       int             `bson:"accept" json:"accept"`
	Score        float64         `bson:"score" json:"score"`
	PenaltyScore float64         `bson:"penaltyScore" json:"penaltyScore"`
	Time         int64           `bson:"time" json:"time"`
	Detail       []ProblemDetail `bson:"detail" json:"detail"`
}

// DetailByPID indexes the aggregate detail by problem
func (a *Aggregate) DetailByPID() map[int64]*ProblemDetail {
	m := make(map[int64]*ProblemDetail, len(a.Detail))
	for i := range a.Detail {
		m[a.Detail[i].PID] = &a.Detail[i]
	}
	return m
}

// StatusDoc is the per-(contest, user) status document (tsdoc)
type StatusDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DomainID string             `bson:"domainId" json:"domainId"`
	TID      primitive.ObjectID `bson:"tid" json:"tid"`
	UID      int64              `bson:"uid" json:"uid"`
	Attend   int                `bson:"attend" json:"attend"`
	Rev      int64              `bson:"rev" json:"rev"`
	Journal  []JournalEntry     `bson:"journal" json:"journal"`
	Aggregate `bson:",inline"`
}

// User is the minimum the scoreboard needs about a contestant
type User struct {
	UID   int64  `json:"uid"`
	Uname string `json:"uname"`
	// Rating is the prior rating, input to the rating calculator
	Rating int `json:"rating"`
}

// UserDict resolves contestants for scoreboard rendering
type UserDict map[int64]User

// ProblemDict resolves problem titles for scoreboard rendering
type ProblemDict map[int64]string
