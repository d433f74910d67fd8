// Package judge is the protocol boundary between the judging core and
// remote judger processes. Judgers either poll for tasks over HTTP or
// hold a persistent connection that tasks are pushed down; in both modes
// they report progress with "next" messages and finish with one "end"
// message.
package judge

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/record"
	"github.com/lumen-oj/lumen/status"
)

// ErrBadRequest indicates a malformed judger message
var ErrBadRequest = errors.New("judge: bad request")

// CaseResult is one judged test case as reported on the wire
type CaseResult struct {
	ID        int           `json:"id"`
	SubtaskID int           `json:"subtaskId,omitempty"`
	Status    status.Status `json:"status"`
	Score     float64       `json:"score"`
	Time      uint64        `json:"time"`
	Memory    uint64        `json:"memory"`
	Message   string        `json:"message,omitempty"`
}

func (c *CaseResult) testCase() *record.TestCase {
	return &record.TestCase{
		ID:        c.ID,
		SubtaskID: c.SubtaskID,
		Status:    c.Status,
		Score:     c.Score,
		Time:      c.Time,
		Memory:    c.Memory,
		Message:   c.Message,
	}
}

// NextRequest is a partial progress report. Any subset of fields may be
// set; none of them is terminal.
type NextRequest struct {
	RecordID primitive.ObjectID `json:"recordId"`
	DomainID string             `json:"domainId"`

	Status       *status.Status `json:"status,omitempty"`
	Score        *float64       `json:"score,omitempty"`
	Time         *uint64        `json:"time,omitempty"`
	Memory       *uint64        `json:"memory,omitempty"`
	Progress     *float64       `json:"progress,omitempty"`
	Case         *CaseResult    `json:"case,omitempty"`
	Message      string         `json:"message,omitempty"`
	CompilerText string         `json:"compilerText,omitempty"`
}

// EndRequest is the terminal report of one judging attempt
type EndRequest struct {
	RecordID primitive.ObjectID `json:"recordId"`
	DomainID string             `json:"domainId"`

	Status status.Status `json:"status"`
	Score  float64       `json:"score"`
	Time   uint64        `json:"time"`
	Memory uint64        `json:"memory"`
	// Case carries a final test case bundled with the end report
	Case     *CaseResult `json:"case,omitempty"`
	Progress *float64    `json:"progress,omitempty"`
	// Message is appended to the judge texts when set
	Message      string `json:"message,omitempty"`
	CompilerText string `json:"compilerText,omitempty"`
}

// TaskResponse is the body handed to a polling judger. Task is nil when
// the queue is empty.
type TaskResponse struct {
	Task *record.JudgePayload `json:"task"`
}

func (r *NextRequest) validate() error {
	if r.RecordID.IsZero() || r.DomainID == "" {
		return ErrBadRequest
	}
	if r.Status != nil && r.Status.Done() {
		return ErrBadRequest
	}
	return nil
}

func (r *EndRequest) validate() error {
	if r.RecordID.IsZero() || r.DomainID == "" {
		return ErrBadRequest
	}
	if !r.Status.Done() {
		return ErrBadRequest
	}
	return nil
}

// delta converts a progress report into a record update
func (r *NextRequest) delta() *record.Delta {
	d := &record.Delta{
		Status:       r.Status,
		Score:        r.Score,
		Time:         r.Time,
		Memory:       r.Memory,
		Progress:     r.Progress,
		JudgeText:    r.Message,
		CompilerText: r.CompilerText,
	}
	if r.Case != nil {
		d.Case = r.Case.testCase()
	}
	return d
}

// delta converts the terminal report into a record update
func (r *EndRequest) delta(judger string, at time.Time) *record.Delta {
	st := r.Status
	d := &record.Delta{
		Status:       &st,
		Score:        &r.Score,
		Time:         &r.Time,
		Memory:       &r.Memory,
		Progress:     r.Progress,
		Judger:       &judger,
		JudgeAt:      &at,
		JudgeText:    r.Message,
		CompilerText: r.CompilerText,
	}
	if r.Case != nil {
		d.Case = r.Case.testCase()
	}
	return d
}
