package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresNotificationsStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresNotificationsStorage(pool *pgxpool.Pool) *PostgresNotificationsStorage {
	return &PostgresNotificationsStorage{pool: pool}
}

// InsertIfAbsent relies on the 4-tuple primary key; rows affected decides the outcome.
func (s *PostgresNotificationsStorage) InsertIfAbsent(ctx context.Context, e storage.NotificationEntry) (bool, error) {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_tracking (event_type, entity_id, entity_type, recipient_id, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_type, entity_id, entity_type, recipient_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		e.EventType,
		e.EntityID,
		e.EntityType,
		e.RecipientID,
		e.SentAt,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record notification: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PostgresNotificationsStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notification_tracking WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
