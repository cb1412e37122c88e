package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
)

var ErrInvalidArgument = errors.New("invalid argument")

// DefaultRetentionDays is how long ledger entries are kept when nothing is configured.
const DefaultRetentionDays = 90

// Event identifies a notification for deduplication.
type Event struct {
	EventType   string `json:"event_type"`
	EntityID    string `json:"entity_id"`
	EntityType  string `json:"entity_type"`
	RecipientID string `json:"recipient_id"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s:%s->%s", e.EventType, e.EntityType, e.EntityID, e.RecipientID)
}

func (e Event) validate() error {
	var missing []string
	if strings.TrimSpace(e.EventType) == "" {
		missing = append(missing, "event_type")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		missing = append(missing, "entity_id")
	}
	if strings.TrimSpace(e.EntityType) == "" {
		missing = append(missing, "entity_type")
	}
	if strings.TrimSpace(e.RecipientID) == "" {
		missing = append(missing, "recipient_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

// Ledger remembers which events were already sent.
type Ledger struct {
	store storage.NotificationsStorage
	now   func() time.Time
}

func NewLedger(store storage.NotificationsStorage) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// TryRecord returns true only for the first caller with a given event key;
// the insert is a single atomic operation in storage.
func (l *Ledger) TryRecord(ctx context.Context, e Event) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	return l.store.InsertIfAbsent(ctx, storage.NotificationEntry{
		EventType:   e.EventType,
		EntityID:    e.EntityID,
		EntityType:  e.EntityType,
		RecipientID: e.RecipientID,
		SentAt:      l.now().UTC(),
	})
}

// PurgeOlderThan deletes entries sent more than retentionDays ago.
func (l *Ledger) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := l.now().UTC().AddDate(0, 0, -retentionDays)
	return l.store.DeleteOlderThan(ctx, cutoff)
}
