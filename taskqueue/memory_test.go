package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueue_GetFirstSingleWinner(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	const n = 32
	for i := 0; i < n; i++ {
		if _, err := q.Add(ctx, &Task{Type: "judge"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.GetFirst(ctx, Filter{Type: "judge"})
				if err != nil {
					t.Errorf("GetFirst: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.ID.Hex()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("claimed %d distinct tasks, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("task %s delivered %d times", id, count)
		}
	}
}

func TestMemoryQueue_ExecuteAfterHidesTask(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	if _, err := q.Add(ctx, &Task{Type: "judge", ExecuteAfter: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	task, err := q.GetFirst(ctx, Filter{Type: "judge"})
	if err != nil {
		t.Fatalf("GetFirst: %v", err)
	}
	if task != nil {
		t.Errorf("claimed a task not yet due: %+v", task)
	}
}

func TestMemoryQueue_PriorityOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	low := &Task{Type: "judge", Priority: 0}
	high := &Task{Type: "judge", Priority: 50}
	if _, err := q.Add(ctx, low); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Add(ctx, high); err != nil {
		t.Fatalf("Add: %v", err)
	}
	task, err := q.GetFirst(ctx, Filter{Type: "judge"})
	if err != nil {
		t.Fatalf("GetFirst: %v", err)
	}
	if task == nil || task.ID != high.ID {
		t.Errorf("got %+v, want high priority task %s", task, high.ID.Hex())
	}
}

func TestMemoryQueue_IntervalReschedules(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	if _, err := q.Add(ctx, &Task{
		Type:     TypeSchedule,
		SubType:  "rank.recalc",
		Interval: time.Hour,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	task, err := q.GetFirst(ctx, Filter{Type: TypeSchedule})
	if err != nil {
		t.Fatalf("GetFirst: %v", err)
	}
	if task == nil {
		t.Fatal("expected a due task")
	}

	// exactly one successor, not yet visible
	n, err := q.Count(ctx, Filter{Type: TypeSchedule})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d live instances after dequeue, want 1", n)
	}
	next, err := q.GetFirst(ctx, Filter{Type: TypeSchedule})
	if err != nil {
		t.Fatalf("GetFirst: %v", err)
	}
	if next != nil {
		t.Errorf("successor visible immediately: %+v", next)
	}
}

func TestMemoryQueue_FilterSubTypes(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	if _, err := q.Add(ctx, &Task{Type: TypeSchedule, SubType: "other"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	task, err := q.GetFirst(ctx, Filter{Type: TypeSchedule, SubTypes: []string{"rating"}})
	if err != nil {
		t.Fatalf("GetFirst: %v", err)
	}
	if task != nil {
		t.Errorf("claimed task with unmatched subType: %+v", task)
	}
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	type payload struct {
		RecordID string `bson:"rid"`
		Lang     string `bson:"lang"`
	}
	raw, err := EncodePayload(payload{RecordID: "abc", Lang: "cc"})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	task := &Task{Type: "judge", Payload: raw}
	var got payload
	if err := task.Bind(&got); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got.RecordID != "abc" || got.Lang != "cc" {
		t.Errorf("unexpected payload: %+v", got)
	}
}
