package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type foodsStorage struct {
	pool *pgxpool.Pool
}

func (s *foodsStorage) CreateFood(ctx context.Context, food *storage.Food) error {
	if food.ID == uuid.Nil {
		food.ID = uuid.New()
	}
	if food.CreatedAt.IsZero() {
		food.CreatedAt = time.Now().UTC()
	}
	restrictions := food.Restrictions
	if restrictions == nil {
		restrictions = []string{}
	}

	query := `
		INSERT INTO foods (id, name, category, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, restrictions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		food.ID,
		food.Name,
		food.Category,
		food.CaloriesPer100g,
		food.ProteinPer100g,
		food.CarbsPer100g,
		food.FatPer100g,
		restrictions,
		food.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create food: %w", err)
	}
	return nil
}

const foodColumns = `id, name, category, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, restrictions, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFood(row rowScanner) (storage.Food, error) {
	var f storage.Food
	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.Category,
		&f.CaloriesPer100g,
		&f.ProteinPer100g,
		&f.CarbsPer100g,
		&f.FatPer100g,
		&f.Restrictions,
		&f.CreatedAt,
	)
	return f, err
}

func (s *foodsStorage) GetFood(ctx context.Context, id uuid.UUID) (*storage.Food, error) {
	f, err := scanFood(s.pool.QueryRow(ctx, `SELECT `+foodColumns+` FROM foods WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (s *foodsStorage) GetFoods(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]storage.Food, error) {
	result := make(map[uuid.UUID]storage.Food, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+foodColumns+` FROM foods WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get foods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		result[f.ID] = f
	}
	return result, rows.Err()
}

func (s *foodsStorage) ListFoods(ctx context.Context, limit, offset int) ([]storage.Food, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT `+foodColumns+` FROM foods ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	defer rows.Close()

	foods := []storage.Food{}
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, f)
	}
	return foods, rows.Err()
}

type patientsStorage struct {
	pool *pgxpool.Pool
}

func (s *patientsStorage) CreatePatient(ctx context.Context, p *storage.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO patients (id, name, email, time_zone, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Email, p.TimeZone, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (s *patientsStorage) GetPatient(ctx context.Context, id uuid.UUID) (*storage.Patient, error) {
	var p storage.Patient
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, time_zone, created_at FROM patients WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Email, &p.TimeZone, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *patientsStorage) CreateAddress(ctx context.Context, addr *storage.DeliveryAddress) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if addr.IsPrimary {
		_, err = tx.Exec(ctx,
			`UPDATE delivery_addresses SET is_primary = false WHERE patient_id = $1 AND is_primary`,
			addr.PatientID,
		)
		if err != nil {
			return fmt.Errorf("failed to reset primary address: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO delivery_addresses (id, patient_id, label, line1, city, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, addr.ID, addr.PatientID, addr.Label, addr.Line1, addr.City, addr.IsPrimary, addr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}

	return tx.Commit(ctx)
}

const addressColumns = `id, patient_id, label, line1, city, is_primary, created_at`

func scanAddress(row rowScanner) (storage.DeliveryAddress, error) {
	var a storage.DeliveryAddress
	err := row.Scan(&a.ID, &a.PatientID, &a.Label, &a.Line1, &a.City, &a.IsPrimary, &a.CreatedAt)
	return a, err
}

func (s *patientsStorage) GetAddress(ctx context.Context, id uuid.UUID) (*storage.DeliveryAddress, error) {
	a, err := scanAddress(s.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM delivery_addresses WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *patientsStorage) ListAddresses(ctx context.Context, patientID uuid.UUID) ([]storage.DeliveryAddress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+addressColumns+` FROM delivery_addresses WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	result := []storage.DeliveryAddress{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *patientsStorage) GetPrimaryAddress(ctx context.Context, patientID uuid.UUID) (*storage.DeliveryAddress, error) {
	a, err := scanAddress(s.pool.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM delivery_addresses WHERE patient_id = $1 AND is_primary`, patientID))
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

type contractsStorage struct {
	pool *pgxpool.Pool
}

func (s *contractsStorage) CreateContract(ctx context.Context, c *storage.Contract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO contracts (id, patient_id, service_type, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.PatientID, c.ServiceType, c.StartDate, c.EndDate, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

func (s *contractsStorage) GetContract(ctx context.Context, id uuid.UUID) (*storage.Contract, error) {
	var c storage.Contract
	err := s.pool.QueryRow(ctx,
		`SELECT id, patient_id, service_type, start_date, end_date, created_at FROM contracts WHERE id = $1`, id,
	).Scan(&c.ID, &c.PatientID, &c.ServiceType, &c.StartDate, &c.EndDate, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *contractsStorage) CreateCalendar(ctx context.Context, cal *storage.DeliveryCalendar) error {
	if cal.ID == uuid.Nil {
		cal.ID = uuid.New()
	}
	if cal.CreatedAt.IsZero() {
		cal.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_calendars (id, contract_id, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, cal.ID, cal.ContractID, cal.StartDate, cal.EndDate, cal.CreatedAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create calendar: %w", err)
	}
	return nil
}

func (s *contractsStorage) GetCalendar(ctx context.Context, id uuid.UUID) (*storage.DeliveryCalendar, error) {
	var cal storage.DeliveryCalendar
	err := s.pool.QueryRow(ctx,
		`SELECT id, contract_id, start_date, end_date, created_at FROM delivery_calendars WHERE id = $1`, id,
	).Scan(&cal.ID, &cal.ContractID, &cal.StartDate, &cal.EndDate, &cal.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &cal, nil
}

func (s *contractsStorage) UpsertAddressOverride(ctx context.Context, o storage.AddressOverride) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_address_overrides (calendar_id, delivery_date, address_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (calendar_id, delivery_date)
		DO UPDATE SET address_id = EXCLUDED.address_id
	`, o.CalendarID, o.Date, o.AddressID)
	if err != nil {
		return fmt.Errorf("failed to upsert address override: %w", err)
	}
	return nil
}

func (s *contractsStorage) ListAddressOverrides(ctx context.Context, calendarID uuid.UUID) ([]storage.AddressOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT calendar_id, delivery_date, address_id
		FROM delivery_address_overrides
		WHERE calendar_id = $1
		ORDER BY delivery_date
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to list address overrides: %w", err)
	}
	defer rows.Close()

	result := []storage.AddressOverride{}
	for rows.Next() {
		var o storage.AddressOverride
		if err := rows.Scan(&o.CalendarID, &o.Date, &o.AddressID); err != nil {
			return nil, fmt.Errorf("failed to scan address override: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
