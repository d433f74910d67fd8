// Package record owns the lifecycle of one submission: creation,
// incremental judging progress, terminal status and reset for rejudge.
// Records are never deleted; a rejudge resets them back to waiting.
package record

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/status"
)

// ErrRecordNotFound indicates an unknown record id
var ErrRecordNotFound = errors.New("record not found")

// NotFoundError wraps ErrRecordNotFound with the lookup key
type NotFoundError struct {
	DomainID string
	RecordID primitive.ObjectID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s/%s", e.DomainID, e.RecordID.Hex())
}

func (e *NotFoundError) Unwrap() error { return ErrRecordNotFound }

// TaskTypeJudge is the queue type of judge tasks
const TaskTypeJudge = "judge"

// TestCase is the judged result of a single test case
type TestCase struct {
	ID        int           `bson:"id" json:"id"`
	SubtaskID int           `bson:"subtaskId,omitempty" json:"subtaskId,omitempty"`
	Status    status.Status `bson:"status" json:"status"`
	Score     float64       `bson:"score" json:"score"`
	// Time in ms, Memory in KiB
	Time    uint64 `bson:"time" json:"time"`
	Memory  uint64 `bson:"memory" json:"memory"`
	Message string `bson:"message,omitempty" json:"message,omitempty"`
}

// ContestInfo links a record to the contest it was submitted in
type ContestInfo struct {
	TID primitive.ObjectID `bson:"tid" json:"tid"`
}

// Record is one submission attempt and its judging outcome
type Record struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DomainID string             `bson:"domainId" json:"domainId"`
	PID      int64              `bson:"pid" json:"pid"`
	UID      int64              `bson:"uid" json:"uid"`
	Lang     string             `bson:"lang" json:"lang"`
	Code     string             `bson:"code" json:"code"`

	Status   status.Status `bson:"status" json:"status"`
	Score    float64       `bson:"score" json:"score"`
	Time     uint64        `bson:"time" json:"time"`
	Memory   uint64        `bson:"memory" json:"memory"`
	Progress float64       `bson:"progress,omitempty" json:"progress,omitempty"`

	TestCases     []TestCase `bson:"testCases" json:"testCases"`
	JudgeTexts    []string   `bson:"judgeTexts" json:"judgeTexts"`
	CompilerTexts []string   `bson:"compilerTexts" json:"compilerTexts"`

	Judger  string     `bson:"judger,omitempty" json:"judger,omitempty"`
	JudgeAt *time.Time `bson:"judgeAt,omitempty" json:"judgeAt,omitempty"`
	// SubmitAt is an explicit submission timestamp; contest scoring must
	// not derive time from the id format.
	SubmitAt time.Time `bson:"submitAt" json:"submitAt"`

	Rejudged bool         `bson:"rejudged" json:"rejudged"`
	Contest  *ContestInfo `bson:"contest,omitempty" json:"contest,omitempty"`
}

// Delta is one partial judging update. Pointer fields replace, the
// remaining fields append; testCases / judgeTexts / compilerTexts are
// append-only until a terminal status lands.
type Delta struct {
	Status   *status.Status
	Score    *float64
	Time     *uint64
	Memory   *uint64
	Progress *float64
	Judger   *string
	JudgeAt  *time.Time

	Case         *TestCase
	JudgeText    string
	CompilerText string
}

// Empty reports whether the delta changes nothing
func (d *Delta) Empty() bool {
	return d.Status == nil && d.Score == nil && d.Time == nil && d.Memory == nil &&
		d.Progress == nil && d.Judger == nil && d.JudgeAt == nil &&
		d.Case == nil && d.JudgeText == "" && d.CompilerText == ""
}

// JudgePayload is the task payload handed to a judger
type JudgePayload struct {
	RecordID primitive.ObjectID `bson:"rid" json:"recordId"`
	DomainID string             `bson:"domainId" json:"domainId"`
	PID      int64              `bson:"pid" json:"problemId"`
	Lang     string             `bson:"lang" json:"lang"`
	Code     string             `bson:"code" json:"code"`
	// Data is the opaque problem test-data handle
	Data        string `bson:"data" json:"data"`
	Type        string `bson:"type,omitempty" json:"type,omitempty"`
	TimeLimit   uint64 `bson:"timeLimit" json:"timeLimit"`
	MemoryLimit uint64 `bson:"memoryLimit" json:"memoryLimit"`
	FullScore   int    `bson:"fullScore" json:"fullScore"`
	Detail      bool   `bson:"detail" json:"detail"`
}
