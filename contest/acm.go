package contest

import (
	"fmt"
	"time"

	"github.com/lumen-oj/lumen/status"
)

// wrong-attempt penalty, ICPC standard
const acmPenalty = 20 * 60

type acmRule struct{}

func (acmRule) ID() RuleID   { return RuleACM }
func (acmRule) Text() string { return "ACM/ICPC" }

func (acmRule) Check(*Contest) error { return nil }

// Stat keeps the first accepted attempt per problem effective. Wrong
// attempts before it (compile errors excluded) add 20 minutes each to the
// effective time.
func (acmRule) Stat(c *Contest, journal []JournalEntry) *Aggregate {
	attempts := make(map[int64]int)
	effective := make(map[int64]JournalEntry)
	var order []int64
	for _, j := range journal {
		if !c.HasProblem(j.PID) {
			continue
		}
		if prev, ok := effective[j.PID]; ok && prev.Accepted() {
			continue
		}
		if _, ok := effective[j.PID]; !ok {
			order = append(order, j.PID)
		}
		effective[j.PID] = j
		if !j.Accepted() && j.Status != status.StatusCompileError {
			attempts[j.PID]++
		}
	}

	agg := &Aggregate{}
	for _, pid := range order {
		j := effective[pid]
		naccept := attempts[pid]
		real := int64(j.SubmitAt.Sub(c.BeginAt) / time.Second)
		penalty := int64(acmPenalty * naccept)
		d := ProblemDetail{
			PID:      pid,
			RID:      j.RID,
			Status:   j.Status,
			Score:    j.Score,
			Accepted: j.Accepted(),
			Attempts: naccept,
			Real:     real,
			Penalty:  penalty,
			Time:     real + penalty,
			SubmitAt: j.SubmitAt,
		}
		agg.Detail = append(agg.Detail, d)
		if d.Accepted {
			agg.Accept++
			agg.Time += d.Time
		}
	}
	return agg
}

func (acmRule) Less(a, b *StatusDoc) bool {
	if a.Accept != b.Accept {
		return a.Accept > b.Accept
	}
	return a.Time < b.Time
}

func (acmRule) Tie(a, b *StatusDoc) bool {
	return a.Accept == b.Accept && a.Time == b.Time
}

func (acmRule) ShowScoreboard(*Contest, time.Time) bool { return true }

func (acmRule) ShowRecord(c *Contest, now time.Time) bool { return now.After(c.EndAt) }

func (r acmRule) Scoreboard(isExport bool, tr Translator, c *Contest, ranked []RankedStatus, users UserDict, problems ProblemDict) []Row {
	header := Row{
		{Type: CellRank, Value: tr("Rank")},
		{Type: CellUser, Value: tr("User")},
		{Type: CellString, Value: tr("Solved Problems")},
	}
	if isExport {
		header = append(header,
			Cell{Type: CellString, Value: tr("Total Time (Seconds)")},
			Cell{Type: CellString, Value: tr("Total Time")},
		)
	}
	for i, pid := range c.PIDs {
		header = append(header, problemHeader(isExport, tr, problems, i+1, pid,
			"Flag", "Time (Seconds)", "Time")...)
	}

	first := firstBlood(c, ranked)
	rows := []Row{header}
	for _, rs := range ranked {
		ts := rs.Status
		row := Row{
			{Type: CellRank, Value: fmt.Sprint(rs.Rank)},
			userCell(users, ts.UID),
			{Type: CellString, Value: fmt.Sprint(ts.Accept)},
		}
		if isExport {
			row = append(row,
				Cell{Type: CellString, Value: fmt.Sprint(ts.Time)},
				Cell{Type: CellString, Value: formatSeconds(ts.Time)},
			)
		}
		detail := ts.DetailByPID()
		for _, pid := range c.PIDs {
			d := detail[pid]
			flag, timeStr := "-", "-"
			var raw any
			var blood bool
			if d != nil {
				if d.Accepted {
					flag = tr("Accepted")
					timeStr = formatSeconds(d.Time)
					raw = d.RID.Hex()
					blood = d.SubmitAt.Equal(first[pid])
				}
				if d.Attempts > 0 {
					flag = fmt.Sprintf("%s (-%d)", flag, d.Attempts)
				}
			}
			if isExport {
				timeSec := "-"
				if d != nil && d.Accepted {
					timeSec = fmt.Sprint(d.Time)
				}
				row = append(row,
					Cell{Type: CellString, Value: flag},
					Cell{Type: CellString, Value: timeSec},
					Cell{Type: CellString, Value: timeStr},
				)
			} else {
				row = append(row, Cell{
					Type:       CellRecord,
					Value:      flag + "\n" + timeStr,
					Raw:        raw,
					FirstBlood: blood,
				})
			}
		}
		rows = append(rows, row)
	}
	return rows
}
