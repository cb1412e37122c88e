package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIntakesStorage — записи приёма пищи.
// Уникальность подтверждения держит частичный индекс intake_records_confirmation_uniq.
type PostgresIntakesStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresIntakesStorage(pool *pgxpool.Pool) *PostgresIntakesStorage {
	return &PostgresIntakesStorage{pool: pool}
}

func (s *PostgresIntakesStorage) CreateIntake(ctx context.Context, rec *storage.IntakeRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	portions, err := json.Marshal(nonNilPortions(rec.Portions))
	if err != nil {
		return fmt.Errorf("failed to encode portions: %w", err)
	}

	query := `
		INSERT INTO intake_records (id, patient_id, taken_at, intake_day, origin, meal_id, option_index, portions, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.PatientID,
		rec.TakenAt,
		rec.IntakeDay,
		rec.Origin,
		rec.MealID,
		rec.OptionIndex,
		portions,
		rec.Notes,
		rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create intake: %w", err)
	}
	return nil
}

func (s *PostgresIntakesStorage) HasConfirmation(ctx context.Context, patientID, mealID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM intake_records
			WHERE patient_id = $1 AND meal_id = $2 AND intake_day = $3 AND origin = 'FROM_PLAN'
		)
	`, patientID, mealID, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check confirmation: %w", err)
	}
	return exists, nil
}

const intakeColumns = `id, patient_id, taken_at, intake_day, origin, meal_id, option_index, portions, notes, created_at`

func scanIntake(row rowScanner) (storage.IntakeRecord, error) {
	var rec storage.IntakeRecord
	var raw []byte
	err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&rec.TakenAt,
		&rec.IntakeDay,
		&rec.Origin,
		&rec.MealID,
		&rec.OptionIndex,
		&raw,
		&rec.Notes,
		&rec.CreatedAt,
	)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec.Portions); err != nil {
		return rec, fmt.Errorf("failed to decode portions: %w", err)
	}
	return rec, nil
}

func (s *PostgresIntakesStorage) GetIntake(ctx context.Context, id uuid.UUID) (*storage.IntakeRecord, error) {
	rec, err := scanIntake(s.pool.QueryRow(ctx, `SELECT `+intakeColumns+` FROM intake_records WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *PostgresIntakesStorage) ListIntakes(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]storage.IntakeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+intakeColumns+`
		FROM intake_records
		WHERE patient_id = $1 AND intake_day BETWEEN $2 AND $3
		ORDER BY taken_at, id
	`, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list intakes: %w", err)
	}
	defer rows.Close()

	result := []storage.IntakeRecord{}
	for rows.Next() {
		rec, err := scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intake: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *PostgresIntakesStorage) DeleteIntake(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM intake_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete intake: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
