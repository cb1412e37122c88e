package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage/memory"
)

func sampleEvent() Event {
	return Event{EventType: EventMealReminder, EntityID: "m1:2024-01-10", EntityType: EntityMealDay, RecipientID: "p1"}
}

func TestLedger_TryRecordOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New().GetNotificationsStorage())

	first, err := ledger.TryRecord(ctx, sampleEvent())
	if err != nil || !first {
		t.Fatalf("first TryRecord = %v, %v; want true", first, err)
	}
	second, err := ledger.TryRecord(ctx, sampleEvent())
	if err != nil || second {
		t.Fatalf("second TryRecord = %v, %v; want false", second, err)
	}

	other := sampleEvent()
	other.RecipientID = "p2"
	if ok, _ := ledger.TryRecord(ctx, other); !ok {
		t.Fatal("a different recipient is a different event")
	}
}

func TestLedger_TryRecordValidation(t *testing.T) {
	ledger := NewLedger(memory.New().GetNotificationsStorage())

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"no event type", func(e *Event) { e.EventType = "" }},
		{"no entity id", func(e *Event) { e.EntityID = " " }},
		{"no entity type", func(e *Event) { e.EntityType = "" }},
		{"no recipient", func(e *Event) { e.RecipientID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := sampleEvent()
			tt.mutate(&ev)
			if _, err := ledger.TryRecord(context.Background(), ev); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestLedger_ConcurrentTryRecord(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New().GetNotificationsStorage())

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.TryRecord(ctx, sampleEvent())
			if err != nil {
				t.Errorf("TryRecord: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestLedger_PurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New().GetNotificationsStorage())

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return base }
	ledger.TryRecord(ctx, sampleEvent())

	fresh := sampleEvent()
	fresh.EntityID = "m2:2024-03-20"
	ledger.now = func() time.Time { return base.AddDate(0, 0, 80) }
	ledger.TryRecord(ctx, fresh)

	ledger.now = func() time.Time { return base.AddDate(0, 0, 91) }
	deleted, err := ledger.PurgeOlderThan(ctx, 90)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 purged entry, got %d", deleted)
	}

	// the purged key can be recorded again, the fresh one cannot
	if ok, _ := ledger.TryRecord(ctx, sampleEvent()); !ok {
		t.Fatal("purged event should be recordable again")
	}
	if ok, _ := ledger.TryRecord(ctx, fresh); ok {
		t.Fatal("fresh event must still be deduplicated")
	}
}

func TestLedger_PurgeDefaultsRetention(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New().GetNotificationsStorage())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return base }
	ledger.TryRecord(ctx, sampleEvent())

	ledger.now = func() time.Time { return base.AddDate(0, 0, 30) }
	if n, _ := ledger.PurgeOlderThan(ctx, 0); n != 0 {
		t.Fatalf("retention 0 should fall back to %d days, purged %d", DefaultRetentionDays, n)
	}
}
