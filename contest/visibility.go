package contest

import (
	"time"
)

// CanShowRecord and CanShowScoreboard are the narrow capabilities that
// record and scoreboard consumers take, instead of depending on a whole
// Rule.
type CanShowRecord interface {
	ShowRecord(c *Contest, now time.Time) bool
}

type CanShowScoreboard interface {
	ShowScoreboard(c *Contest, now time.Time) bool
}

// ShowRecord resolves the contest rule and applies its record gate;
// unknown rules hide everything.
func ShowRecord(c *Contest, now time.Time) bool {
	r, err := GetRule(c.Rule)
	if err != nil {
		return false
	}
	return r.ShowRecord(c, now)
}

// ShowScoreboard resolves the contest rule and applies its scoreboard gate
func ShowScoreboard(c *Contest, now time.Time) bool {
	r, err := GetRule(c.Rule)
	if err != nil {
		return false
	}
	return r.ShowScoreboard(c, now)
}
