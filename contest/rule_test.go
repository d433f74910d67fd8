package contest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/status"
)

var contestBegin = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func acmContest() *Contest {
	return &Contest{
		DomainID: "system",
		Title:    "weekly round",
		Rule:     RuleACM,
		BeginAt:  contestBegin,
		EndAt:    contestBegin.Add(5 * time.Hour),
		PIDs:     []int64{1000, 1001},
	}
}

func attempt(pid int64, st status.Status, score float64, offset time.Duration) JournalEntry {
	return JournalEntry{
		RID:      primitive.NewObjectID(),
		PID:      pid,
		Status:   st,
		Score:    score,
		SubmitAt: contestBegin.Add(offset),
	}
}

func TestACMStat_WrongThenAccepted(t *testing.T) {
	c := acmContest()
	rule, err := GetRule(RuleACM)
	require.NoError(t, err)

	agg := rule.Stat(c, []JournalEntry{
		attempt(1000, status.StatusWrongAnswer, 0, 60*time.Second),
		attempt(1000, status.StatusAccepted, 100, 300*time.Second),
	})
	require.Len(t, agg.Detail, 1)
	assert.Equal(t, 1, agg.Accept)
	// 300s real + one 20-minute wrong-attempt penalty
	assert.Equal(t, int64(1500), agg.Time)
	assert.Equal(t, 1, agg.Detail[0].Attempts)
	assert.Equal(t, int64(300), agg.Detail[0].Real)
}

func TestACMStat_FirstAcceptedEffective(t *testing.T) {
	c := acmContest()
	rule, _ := GetRule(RuleACM)

	agg := rule.Stat(c, []JournalEntry{
		attempt(1000, status.StatusAccepted, 100, 10*time.Minute),
		attempt(1000, status.StatusWrongAnswer, 0, 20*time.Minute),
	})
	require.Len(t, agg.Detail, 1)
	assert.Equal(t, 1, agg.Accept)
	assert.Equal(t, int64(600), agg.Time)
	assert.Equal(t, 0, agg.Detail[0].Attempts)
}

func TestACMStat_CompileErrorNoPenalty(t *testing.T) {
	c := acmContest()
	rule, _ := GetRule(RuleACM)

	agg := rule.Stat(c, []JournalEntry{
		attempt(1000, status.StatusCompileError, 0, time.Minute),
		attempt(1000, status.StatusAccepted, 100, 10*time.Minute),
	})
	assert.Equal(t, int64(600), agg.Time)
	assert.Equal(t, 0, agg.Detail[0].Attempts)
}

func TestACMStat_IgnoresForeignProblems(t *testing.T) {
	c := acmContest()
	rule, _ := GetRule(RuleACM)
	agg := rule.Stat(c, []JournalEntry{
		attempt(9999, status.StatusAccepted, 100, time.Minute),
	})
	assert.Empty(t, agg.Detail)
	assert.Zero(t, agg.Accept)
}

func TestACMRank_TieBreak(t *testing.T) {
	rule, _ := GetRule(RuleACM)
	fast := &StatusDoc{UID: 1, Aggregate: Aggregate{Accept: 2, Time: 1000}}
	slow := &StatusDoc{UID: 2, Aggregate: Aggregate{Accept: 2, Time: 2000}}
	few := &StatusDoc{UID: 3, Aggregate: Aggregate{Accept: 1, Time: 10}}

	ranked := Rank(rule, []*StatusDoc{few, slow, fast})
	require.Len(t, ranked, 3)
	// equal accepts: lower time strictly better; more accepts beat any time
	assert.Equal(t, int64(1), ranked[0].Status.UID)
	assert.Equal(t, int64(2), ranked[1].Status.UID)
	assert.Equal(t, int64(3), ranked[2].Status.UID)
}

func TestRank_TiesShareThenResume(t *testing.T) {
	rule, _ := GetRule(RuleOI)
	docs := []*StatusDoc{
		{UID: 1, Aggregate: Aggregate{Score: 300}},
		{UID: 2, Aggregate: Aggregate{Score: 300}},
		{UID: 3, Aggregate: Aggregate{Score: 100}},
	}
	ranked := Rank(rule, docs)
	assert.Equal(t, []int{1, 1, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
}

func TestOIStat_LastAttemptCounts(t *testing.T) {
	c := acmContest()
	c.Rule = RuleOI
	rule, _ := GetRule(RuleOI)

	agg := rule.Stat(c, []JournalEntry{
		attempt(1000, status.StatusAccepted, 100, 10*time.Minute),
		attempt(1000, status.StatusWrongAnswer, 40, 20*time.Minute),
		attempt(1001, status.StatusWrongAnswer, 70, 30*time.Minute),
	})
	assert.Equal(t, float64(110), agg.Score)
}

func TestOIVisibilityGates(t *testing.T) {
	c := acmContest()
	c.Rule = RuleOI
	rule, _ := GetRule(RuleOI)

	assert.False(t, rule.ShowScoreboard(c, c.BeginAt.Add(time.Hour)))
	assert.False(t, rule.ShowScoreboard(c, c.EndAt))
	assert.True(t, rule.ShowScoreboard(c, c.EndAt.Add(time.Second)))
	assert.False(t, rule.ShowRecord(c, c.EndAt))

	ioi, _ := GetRule(RuleIOI)
	assert.True(t, ioi.ShowScoreboard(c, c.BeginAt.Add(time.Hour)))
	assert.True(t, ioi.ShowRecord(c, c.BeginAt.Add(time.Hour)))
}

func assignmentContest() *Contest {
	since := contestBegin.Add(24 * time.Hour)
	return &Contest{
		DomainID:     "system",
		Rule:         RuleAssignment,
		BeginAt:      contestBegin,
		EndAt:        contestBegin.Add(14 * 24 * time.Hour),
		PIDs:         []int64{1000},
		PenaltySince: &since,
		PenaltyRules: []PenaltyRule{
			{Hours: 0, Multiplier: 0.9},
			{Hours: 24, Multiplier: 0.7},
			{Hours: 72, Multiplier: 0.5},
		},
	}
}

func TestAssignmentStat_PenaltySchedule(t *testing.T) {
	c := assignmentContest()
	rule, _ := GetRule(RuleAssignment)

	for _, tt := range []struct {
		name   string
		offset time.Duration
		want   float64
	}{
		{"before penaltySince", 2 * time.Hour, 100},
		{"first breakpoint", 24*time.Hour + time.Minute, 90},
		{"second breakpoint", 50 * time.Hour, 70},
		{"third breakpoint", 24*time.Hour + 80*time.Hour, 50},
	} {
		t.Run(tt.name, func(t *testing.T) {
			agg := rule.Stat(c, []JournalEntry{
				attempt(1000, status.StatusAccepted, 100, tt.offset),
			})
			assert.Equal(t, tt.want, agg.PenaltyScore)
			assert.Equal(t, float64(100), agg.Score)
		})
	}
}

func TestAssignmentCheck(t *testing.T) {
	c := assignmentContest()
	c.PenaltySince = nil
	err := Validate(c)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidate(t *testing.T) {
	c := acmContest()
	c.Rule = "codegolf"
	assert.ErrorIs(t, Validate(c), ErrValidation)

	c = acmContest()
	c.EndAt = c.BeginAt
	assert.ErrorIs(t, Validate(c), ErrValidation)

	assert.NoError(t, Validate(acmContest()))
}

func TestAppendJournalDedupByRID(t *testing.T) {
	first := attempt(1000, status.StatusWrongAnswer, 0, time.Minute)
	journal := appendJournal(nil, first)
	redelivered := first
	redelivered.Status = status.StatusAccepted
	redelivered.Score = 100
	journal = appendJournal(journal, redelivered)

	require.Len(t, journal, 1)
	assert.Equal(t, status.StatusAccepted, journal[0].Status)
}
