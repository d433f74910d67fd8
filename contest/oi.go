package contest

import (
	"fmt"
	"time"
)

type oiRule struct{}

func (oiRule) ID() RuleID   { return RuleOI }
func (oiRule) Text() string { return "OI" }

func (oiRule) Check(*Contest) error { return nil }

// Stat counts the last attempt per problem, whatever its status
func (oiRule) Stat(c *Contest, journal []JournalEntry) *Aggregate {
	effective := make(map[int64]JournalEntry)
	var order []int64
	for _, j := range journal {
		if !c.HasProblem(j.PID) {
			continue
		}
		if _, ok := effective[j.PID]; !ok {
			order = append(order, j.PID)
		}
		effective[j.PID] = j
	}
	agg := &Aggregate{}
	for _, pid := range order {
		j := effective[pid]
		agg.Detail = append(agg.Detail, ProblemDetail{
			PID:      pid,
			RID:      j.RID,
			Status:   j.Status,
			Score:    j.Score,
			Accepted: j.Accepted(),
			SubmitAt: j.SubmitAt,
		})
		agg.Score += j.Score
	}
	return agg
}

func (oiRule) Less(a, b *StatusDoc) bool { return a.Score > b.Score }
func (oiRule) Tie(a, b *StatusDoc) bool  { return a.Score == b.Score }

// results stay hidden while the contest runs
func (oiRule) ShowScoreboard(c *Contest, now time.Time) bool { return now.After(c.EndAt) }
func (oiRule) ShowRecord(c *Contest, now time.Time) bool     { return now.After(c.EndAt) }

func (oiRule) Scoreboard(isExport bool, tr Translator, c *Contest, ranked []RankedStatus, users UserDict, problems ProblemDict) []Row {
	return oiScoreboard(isExport, tr, c, ranked, users, problems)
}

func oiScoreboard(isExport bool, tr Translator, c *Contest, ranked []RankedStatus, users UserDict, problems ProblemDict) []Row {
	header := Row{
		{Type: CellRank, Value: tr("Rank")},
		{Type: CellUser, Value: tr("User")},
		{Type: CellString, Value: tr("Total Score")},
	}
	for i, pid := range c.PIDs {
		header = append(header, problemHeader(isExport, tr, problems, i+1, pid, "Score")...)
	}

	first := firstBlood(c, ranked)
	rows := []Row{header}
	for _, rs := range ranked {
		ts := rs.Status
		row := Row{
			{Type: CellRank, Value: fmt.Sprint(rs.Rank)},
			userCell(users, ts.UID),
			{Type: CellString, Value: trimFloat(ts.Score)},
		}
		detail := ts.DetailByPID()
		for _, pid := range c.PIDs {
			d := detail[pid]
			if d == nil {
				row = append(row, Cell{Type: CellRecord, Value: "-"})
				continue
			}
			row = append(row, Cell{
				Type:       CellRecord,
				Value:      trimFloat(d.Score),
				Raw:        d.RID.Hex(),
				FirstBlood: d.Accepted && d.SubmitAt.Equal(first[pid]),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// ioiRule scores like OI but keeps the scoreboard and records visible
type ioiRule struct {
	oiRule
}

func (ioiRule) ID() RuleID   { return RuleIOI }
func (ioiRule) Text() string { return "IOI" }

func (ioiRule) ShowScoreboard(*Contest, time.Time) bool { return true }
func (ioiRule) ShowRecord(*Contest, time.Time) bool     { return true }

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
