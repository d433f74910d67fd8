package contest

import (
	"fmt"
	"time"
)

// Cell types used by scoreboard consumers
const (
	CellRank    = "rank"
	CellUser    = "user"
	CellString  = "string"
	CellProblem = "problem"
	CellRecord  = "record"
)

// Cell is one scoreboard node
type Cell struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	// Raw carries the machine-readable value (uid, pid, rid hex)
	Raw any `json:"raw,omitempty"`
	// FirstBlood marks the earliest accepted solution of a problem
	FirstBlood bool `json:"firstBlood,omitempty"`
}

// Row is one scoreboard row; the first row is the header
type Row []Cell

func formatSeconds(s int64) string {
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
}

// firstBlood finds the earliest accepted submission time per problem
func firstBlood(c *Contest, ranked []RankedStatus) map[int64]time.Time {
	first := make(map[int64]time.Time)
	for _, rs := range ranked {
		for _, d := range rs.Status.Detail {
			if !d.Accepted {
				continue
			}
			if t, ok := first[d.PID]; !ok || d.SubmitAt.Before(t) {
				first[d.PID] = d.SubmitAt
			}
		}
	}
	return first
}

func userCell(users UserDict, uid int64) Cell {
	uname := users[uid].Uname
	if uname == "" {
		uname = fmt.Sprintf("user %d", uid)
	}
	return Cell{Type: CellUser, Value: uname, Raw: uid}
}

func problemHeader(isExport bool, tr Translator, problems ProblemDict, idx int, pid int64, exportCols ...string) []Cell {
	if !isExport {
		return []Cell{{Type: CellProblem, Value: fmt.Sprintf("#%d", idx), Raw: pid}}
	}
	cells := make([]Cell, 0, len(exportCols))
	for _, col := range exportCols {
		cells = append(cells, Cell{
			Type:  CellProblem,
			Value: fmt.Sprintf("#%d %s %s", idx, problems[pid], tr(col)),
			Raw:   pid,
		})
	}
	return cells
}
