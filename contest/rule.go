package contest

import (
	"fmt"
	"time"
)

// RuleID selects a ranking strategy. The set of rules is closed; unknown
// ids are rejected on contest add/edit.
type RuleID string

const (
	RuleACM        RuleID = "acm"
	RuleOI         RuleID = "oi"
	RuleIOI        RuleID = "ioi"
	RuleAssignment RuleID = "assignment"
)

// Translator renders scoreboard labels; identity when no i18n is wired
type Translator func(string) string

// Rule is one ranking strategy
type Rule interface {
	ID() RuleID
	Text() string

	// Check validates rule-specific contest fields on add / edit
	Check(c *Contest) error

	// Stat folds the journal into the rule aggregate; pure
	Stat(c *Contest, journal []JournalEntry) *Aggregate

	// Less orders status documents best-first; Tie marks equal rank
	Less(a, b *StatusDoc) bool
	Tie(a, b *StatusDoc) bool

	// Scoreboard renders the header plus one row per ranked contestant
	Scoreboard(isExport bool, tr Translator, c *Contest, ranked []RankedStatus, users UserDict, problems ProblemDict) []Row

	// Visibility gates
	ShowScoreboard(c *Contest, now time.Time) bool
	ShowRecord(c *Contest, now time.Time) bool
}

var registry = map[RuleID]Rule{
	RuleACM:        acmRule{},
	RuleOI:         oiRule{},
	RuleIOI:        ioiRule{},
	RuleAssignment: assignmentRule{},
}

// GetRule resolves a rule id
func GetRule(id RuleID) (Rule, error) {
	r, ok := registry[id]
	if !ok {
		return nil, &ValidationError{Field: "rule", Reason: fmt.Sprintf("unknown rule %q", id)}
	}
	return r, nil
}

// Rules lists the registered rule ids
func Rules() []RuleID {
	return []RuleID{RuleACM, RuleOI, RuleIOI, RuleAssignment}
}

// Validate checks the invariants shared by every rule, then the
// rule-specific ones
func Validate(c *Contest) error {
	r, err := GetRule(c.Rule)
	if err != nil {
		return err
	}
	if !c.BeginAt.Before(c.EndAt) {
		return &ValidationError{Field: "beginAt", Reason: "beginAt must be before endAt"}
	}
	if len(c.PIDs) == 0 {
		return &ValidationError{Field: "pids", Reason: "contest has no problems"}
	}
	return r.Check(c)
}
