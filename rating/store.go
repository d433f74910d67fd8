package rating

import (
	"context"
)

// InitialRating is assumed for a contestant with no persisted rating
const InitialRating = 1500

// Store persists per-domain user ratings
type Store interface {
	// Get returns the persisted rating of each uid; absent users are
	// simply missing from the map
	Get(ctx context.Context, domainID string, uids []int64) (map[int64]int, error)

	// Set upserts ratings for a domain
	Set(ctx context.Context, domainID string, ratings map[int64]int) error
}

// RankedUser is one contestant of a finished rated contest. Rank is the
// dense competition rank from the final scoreboard.
type RankedUser struct {
	UID  int64
	Rank int
}

// ApplyContest recalibrates and persists ratings for a finished rated
// contest. Contestants without a stored rating enter at InitialRating.
func ApplyContest(ctx context.Context, store Store, domainID string, ranked []RankedUser) error {
	if len(ranked) == 0 {
		return nil
	}
	uids := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		uids = append(uids, r.UID)
	}
	old, err := store.Get(ctx, domainID, uids)
	if err != nil {
		return err
	}
	users := make([]User, 0, len(ranked))
	for _, r := range ranked {
		prior, ok := old[r.UID]
		if !ok {
			prior = InitialRating
		}
		users = append(users, User{UID: r.UID, Rank: r.Rank, Old: prior})
	}
	updated := make(map[int64]int, len(users))
	for _, u := range Calculate(users) {
		updated[u.UID] = u.New
	}
	return store.Set(ctx, domainID, updated)
}
