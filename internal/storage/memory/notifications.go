package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
)

type NotificationsMemoryStorage struct {
	mu      sync.Mutex
	entries map[string]storage.NotificationEntry // unique key -> entry
}

func NewNotificationsMemoryStorage() *NotificationsMemoryStorage {
	return &NotificationsMemoryStorage{
		entries: make(map[string]storage.NotificationEntry),
	}
}

func makeUniqueKey(e storage.NotificationEntry) string {
	return e.EventType + "\x00" + e.EntityID + "\x00" + e.EntityType + "\x00" + e.RecipientID
}

func (s *NotificationsMemoryStorage) InsertIfAbsent(ctx context.Context, entry storage.NotificationEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := makeUniqueKey(entry)
	if _, exists := s.entries[key]; exists {
		return false, nil
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	s.entries[key] = entry
	return true, nil
}

func (s *NotificationsMemoryStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, e := range s.entries {
		if e.SentAt.Before(cutoff) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
