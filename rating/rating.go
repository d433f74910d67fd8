// Package rating recalibrates contestant ratings after a rated contest
// using an Elo-style pairwise comparison model. Calculate is pure: it
// performs no I/O and persisting the result is the caller's concern.
package rating

import (
	"math"
	"sort"
)

// Rating bounds of the binary search
const (
	minRating = 1
	maxRating = 8000
)

// User is one participant of a rated contest. Rank is the dense
// competition rank of the final scoreboard, with tied entries sharing the
// rank of the first tied position. Old is the prior rating.
type User struct {
	UID  int64
	Rank int
	Old  int

	seed  float64
	delta int
	New   int
}

// winProb is the probability that a beats b under the Elo model
func winProb(aOld, bOld float64) float64 {
	return 1 / (1 + math.Pow(10, (bOld-aOld)/400))
}

// expectedSeed is 1 plus the expected number of opponents beating a
// hypothetical player with the given rating
func expectedSeed(users []User, self int, rating float64) float64 {
	result := 1.0
	for i := range users {
		if i != self {
			result += winProb(float64(users[i].Old), rating)
		}
	}
	return result
}

// ratingFor searches the integer rating whose expected seed matches the
// target. The bounded integer search keeps results bit-reproducible.
func ratingFor(users []User, self int, targetSeed float64) int {
	left, right := minRating, maxRating
	for right-left > 1 {
		mid := (left + right) / 2
		if expectedSeed(users, self, float64(mid)) < targetSeed {
			right = mid
		} else {
			left = mid
		}
	}
	return left
}

// Calculate computes new ratings for all participants, ordered by rank
// ascending. An empty input yields an empty output.
func Calculate(input []User) []User {
	n := len(input)
	if n == 0 {
		return nil
	}
	users := make([]User, n)
	copy(users, input)
	sort.SliceStable(users, func(i, j int) bool { return users[i].Rank < users[j].Rank })

	// seed: expected number of players performing better
	for i := range users {
		users[i].seed = 1
		for j := range users {
			if i != j {
				users[i].seed += winProb(float64(users[j].Old), float64(users[i].Old))
			}
		}
	}

	// initial delta from the geometric mean of rank and seed
	sumDelta := 0
	for i := range users {
		mid := math.Sqrt(float64(users[i].Rank) * users[i].seed)
		users[i].delta = (ratingFor(users, i, mid) - users[i].Old) / 2
		sumDelta += users[i].delta
	}

	// first correction: pull the delta sum toward zero
	inc := int(math.Floor(float64(-sumDelta)/float64(n))) - 1
	for i := range users {
		users[i].delta += inc
	}

	// second correction: dampen inflation among the strongest prior
	// ratings
	byOld := make([]*User, n)
	for i := range users {
		byOld[i] = &users[i]
	}
	sort.SliceStable(byOld, func(i, j int) bool { return byOld[i].Old > byOld[j].Old })
	top := min(n, 4*int(math.Round(math.Sqrt(float64(n)))))
	sumTop := 0
	for i := 0; i < top; i++ {
		sumTop += byOld[i].delta
	}
	inc = int(math.Floor(float64(-sumTop) / float64(top)))
	inc = max(-10, min(0, inc))

	for i := range users {
		users[i].delta += inc
		users[i].New = users[i].Old + users[i].delta
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Rank < users[j].Rank })
	return users
}
