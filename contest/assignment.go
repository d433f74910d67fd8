package contest

import (
	"fmt"
	"sort"
	"time"
)

type assignmentRule struct{}

func (assignmentRule) ID() RuleID   { return RuleAssignment }
func (assignmentRule) Text() string { return "Assignment" }

func (assignmentRule) Check(c *Contest) error {
	if c.PenaltySince == nil {
		return &ValidationError{Field: "penaltySince", Reason: "assignment requires penaltySince"}
	}
	if c.PenaltySince.After(c.EndAt) {
		return &ValidationError{Field: "penaltySince", Reason: "penaltySince after endAt"}
	}
	if len(c.PenaltyRules) == 0 {
		return &ValidationError{Field: "penaltyRules", Reason: "assignment requires penalty rules"}
	}
	for _, r := range c.PenaltyRules {
		if r.Hours < 0 || r.Multiplier < 0 || r.Multiplier > 1 {
			return &ValidationError{Field: "penaltyRules", Reason: "multiplier must be within [0, 1]"}
		}
	}
	return nil
}

// penaltyMultiplier applies the largest breakpoint at or under the overdue
// duration
func penaltyMultiplier(c *Contest, submitAt time.Time) float64 {
	exceed := submitAt.Sub(*c.PenaltySince)
	if exceed < 0 {
		return 1
	}
	rules := make([]PenaltyRule, len(c.PenaltyRules))
	copy(rules, c.PenaltyRules)
	sort.Slice(rules, func(i, j int) bool { return rules[i].Hours < rules[j].Hours })
	multiplier := 1.0
	for _, r := range rules {
		if time.Duration(r.Hours*float64(time.Hour)) <= exceed {
			multiplier = r.Multiplier
		} else {
			break
		}
	}
	return multiplier
}

// Stat keeps the first accepted attempt per problem effective and applies
// the overdue penalty multiplier to its score
func (assignmentRule) Stat(c *Contest, journal []JournalEntry) *Aggregate {
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
	}

	agg := &Aggregate{}
	for _, pid := range order {
		j := effective[pid]
		d := ProblemDetail{
			PID:          pid,
			RID:          j.RID,
			Status:       j.Status,
			Score:        j.Score,
			Accepted:     j.Accepted(),
			Real:         int64(j.SubmitAt.Sub(c.BeginAt) / time.Second),
			PenaltyScore: j.Score * penaltyMultiplier(c, j.SubmitAt),
			SubmitAt:     j.SubmitAt,
		}
		d.Time = d.Real
		agg.Detail = append(agg.Detail, d)
		agg.Score += d.Score
		agg.PenaltyScore += d.PenaltyScore
		agg.Time += d.Time
	}
	return agg
}

func (assignmentRule) Less(a, b *StatusDoc) bool {
	if a.PenaltyScore != b.PenaltyScore {
		return a.PenaltyScore > b.PenaltyScore
	}
	return a.Time < b.Time
}

func (assignmentRule) Tie(a, b *StatusDoc) bool {
	return a.PenaltyScore == b.PenaltyScore && a.Time == b.Time
}

func (assignmentRule) ShowScoreboard(*Contest, time.Time) bool { return true }
func (assignmentRule) ShowRecord(*Contest, time.Time) bool     { return true }

func (assignmentRule) Scoreboard(isExport bool, tr Translator, c *Contest, ranked []RankedStatus, users UserDict, problems ProblemDict) []Row {
	header := Row{
		{Type: CellRank, Value: tr("Rank")},
		{Type: CellUser, Value: tr("User")},
		{Type: CellString, Value: tr("Score")},
	}
	if isExport {
		header = append(header,
			Cell{Type: CellString, Value: tr("Original Score")},
			Cell{Type: CellString, Value: tr("Total Time (Seconds)")},
		)
	}
	header = append(header, Cell{Type: CellString, Value: tr("Total Time")})
	for i, pid := range c.PIDs {
		header = append(header, problemHeader(isExport, tr, problems, i+1, pid,
			"Score", "Original Score", "Time (Seconds)", "Time")...)
	}

	rows := []Row{header}
	for _, rs := range ranked {
		ts := rs.Status
		row := Row{
			{Type: CellRank, Value: fmt.Sprint(rs.Rank)},
			userCell(users, ts.UID),
			{Type: CellString, Value: trimFloat(ts.PenaltyScore)},
		}
		if isExport {
			row = append(row,
				Cell{Type: CellString, Value: trimFloat(ts.Score)},
				Cell{Type: CellString, Value: fmt.Sprint(ts.Time)},
			)
		}
		row = append(row, Cell{Type: CellString, Value: formatSeconds(ts.Time)})
		detail := ts.DetailByPID()
		for _, pid := range c.PIDs {
			d := detail[pid]
			if d == nil {
				if isExport {
					row = append(row,
						Cell{Type: CellString, Value: "-"},
						Cell{Type: CellString, Value: "-"},
						Cell{Type: CellString, Value: "-"},
						Cell{Type: CellString, Value: "-"},
					)
				} else {
					row = append(row, Cell{Type: CellRecord, Value: "-"})
				}
				continue
			}
			timeStr := formatSeconds(d.Time)
			if isExport {
				row = append(row,
					Cell{Type: CellString, Value: trimFloat(d.PenaltyScore)},
					Cell{Type: CellString, Value: trimFloat(d.Score)},
					Cell{Type: CellString, Value: fmt.Sprint(d.Time)},
					Cell{Type: CellString, Value: timeStr},
				)
			} else {
				value := trimFloat(d.PenaltyScore) + "\n" + timeStr
				if d.PenaltyScore != d.Score {
					value = trimFloat(d.PenaltyScore) + " / " + trimFloat(d.Score) + "\n" + timeStr
				}
				row = append(row, Cell{Type: CellRecord, Value: value, Raw: d.RID.Hex()})
			}
		}
		rows = append(rows, row)
	}
	return rows
}
