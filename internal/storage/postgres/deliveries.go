package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type deliveriesStorage struct {
	pool *pgxpool.Pool
}

// CreateTasksIfAbsent inserts in one batch; ON CONFLICT keeps re-runs idempotent.
func (s *deliveriesStorage) CreateTasksIfAbsent(ctx context.Context, tasks []storage.DeliveryTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO delivery_tasks (id, calendar_id, address_id, meal_id, delivery_date, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (calendar_id, delivery_date, meal_id) DO NOTHING
	`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, t := range tasks {
		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query, id, t.CalendarID, t.AddressID, t.MealID, t.DeliveryDate, t.State, now)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range tasks {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("failed to create delivery task: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

const taskColumns = `id, calendar_id, address_id, meal_id, delivery_date, state, created_at, updated_at`

func scanTask(row rowScanner) (storage.DeliveryTask, error) {
	var t storage.DeliveryTask
	err := row.Scan(&t.ID, &t.CalendarID, &t.AddressID, &t.MealID, &t.DeliveryDate, &t.State, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *deliveriesStorage) GetTask(ctx context.Context, id uuid.UUID) (*storage.DeliveryTask, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM delivery_tasks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *deliveriesStorage) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]storage.DeliveryTask, error) {
	query := `SELECT ` + taskColumns + ` FROM delivery_tasks WHERE true`
	args := []interface{}{}

	if filter.CalendarID != nil {
		args = append(args, *filter.CalendarID)
		query += fmt.Sprintf(" AND calendar_id = $%d", len(args))
	}
	if len(filter.States) > 0 {
		args = append(args, filter.States)
		query += fmt.Sprintf(" AND state = ANY($%d)", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND delivery_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND delivery_date <= $%d", len(args))
	}

	query += " ORDER BY delivery_date, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery tasks: %w", err)
	}
	defer rows.Close()

	tasks := []storage.DeliveryTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskState is a conditional update; the row lock makes the state check atomic.
func (s *deliveriesStorage) UpdateTaskState(ctx context.Context, id uuid.UUID, from []string, to string, addressID *uuid.UUID) (*storage.DeliveryTask, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE delivery_tasks
		SET state = $3,
		    address_id = COALESCE($4, address_id),
		    updated_at = now()
		WHERE id = $1 AND state = ANY($2)
		RETURNING `+taskColumns,
		id, from, to, addressID,
	))
	if err == nil {
		return &t, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to update delivery task: %w", err)
	}

	// Distinguish a missing task from a state mismatch
	if _, getErr := s.GetTask(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, storage.ErrStateConflict
}
