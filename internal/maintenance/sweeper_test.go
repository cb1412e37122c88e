package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/nutrition-engine/internal/notifications"
	"github.com/fdg312/nutrition-engine/internal/storage/memory"
)

type captureLogger struct {
	mu   sync.Mutex
	logs []string
}

func (l *captureLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, fmt.Sprintf(format, v...))
}

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

type flakyPurger struct {
	mu    sync.Mutex
	calls int
}

func (p *flakyPurger) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls%2 == 1 {
		return 0, errors.New("connection reset")
	}
	return 1, nil
}

func (p *flakyPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestSweeper_KeepsRunningAfterFailures(t *testing.T) {
	purger := &flakyPurger{}
	logger := &captureLogger{}
	s := NewSweeper(purger, 5*time.Millisecond, 90).WithLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for purger.count() < 4 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("sweeper stalled after %d calls", purger.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if logger.count() == 0 {
		t.Fatal("expected log output")
	}
}

func TestSweeper_PurgesLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := notifications.NewLedger(store.GetNotificationsStorage())
	ev := notifications.Event{EventType: "meal_reminder", EntityID: "m:2024-01-10", EntityType: "meal_day", RecipientID: "p"}
	ledger.TryRecord(ctx, ev)

	// retention 0 falls back to 90 days, so the fresh entry stays
	NewSweeper(ledger, time.Hour, 0).WithLogger(&captureLogger{}).SweepOnce(ctx)
	if ok, _ := ledger.TryRecord(ctx, ev); ok {
		t.Fatal("fresh entry must survive the sweep")
	}
}
