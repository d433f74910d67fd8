package rating

import (
	"context"
	"testing"
)

type mapStore struct {
	ratings map[int64]int
	sets    int
}

func (s *mapStore) Get(_ context.Context, _ string, uids []int64) (map[int64]int, error) {
	out := map[int64]int{}
	for _, uid := range uids {
		if r, ok := s.ratings[uid]; ok {
			out[uid] = r
		}
	}
	return out, nil
}

func (s *mapStore) Set(_ context.Context, _ string, ratings map[int64]int) error {
	s.sets++
	for uid, r := range ratings {
		s.ratings[uid] = r
	}
	return nil
}

func TestApplyContest(t *testing.T) {
	store := &mapStore{ratings: map[int64]int{1: 1800}}
	err := ApplyContest(context.Background(), store, "system", []RankedUser{
		{UID: 2, Rank: 1},
		{UID: 1, Rank: 2},
	})
	if err != nil {
		t.Fatalf("ApplyContest: %v", err)
	}
	// the unrated winner enters at the initial rating and gains
	if store.ratings[2] <= InitialRating {
		t.Errorf("winner rating %d, want above %d", store.ratings[2], InitialRating)
	}
	if store.ratings[1] >= 1800 {
		t.Errorf("beaten favorite rating %d, want below 1800", store.ratings[1])
	}
}

func TestApplyContestEmpty(t *testing.T) {
	store := &mapStore{ratings: map[int64]int{}}
	if err := ApplyContest(context.Background(), store, "system", nil); err != nil {
		t.Fatalf("ApplyContest: %v", err)
	}
	if store.sets != 0 {
		t.Error("empty contest must not write ratings")
	}
}
