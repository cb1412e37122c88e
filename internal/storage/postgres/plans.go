package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type plansStorage struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *plansStorage) CreatePlanTree(ctx context.Context, tree *storage.PlanTree) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	plan := &tree.Plan
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Status == "" {
		plan.Status = storage.PlanStatusDraft
	}
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO nutrition_plans (id, patient_id, author_kind, author_id, contract_id, name, objective,
		                             calorie_target, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		plan.ID,
		plan.PatientID,
		plan.Author.Kind,
		plan.Author.ID,
		plan.ContractID,
		plan.Name,
		plan.Objective,
		plan.CalorieTarget,
		plan.StartDate,
		plan.EndDate,
		plan.Status,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	for i := range tree.Days {
		day := &tree.Days[i]
		if day.ID == uuid.Nil {
			day.ID = uuid.New()
		}
		day.PlanID = plan.ID

		_, err = tx.Exec(ctx, `INSERT INTO plan_days (id, plan_id, day_index) VALUES ($1, $2, $3)`,
			day.ID, day.PlanID, day.DayIndex)
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to create plan day %d: %w", day.DayIndex, err)
		}

		for j := range day.Meals {
			meal := &day.Meals[j]
			if meal.ID == uuid.Nil {
				meal.ID = uuid.New()
			}
			meal.PlanDayID = day.ID

			_, err = tx.Exec(ctx, `
				INSERT INTO meals (id, plan_day_id, meal_type, recommended_time, instructions, sort_order)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, meal.ID, meal.PlanDayID, meal.MealType, meal.RecommendedTime, meal.Instructions, meal.SortOrder)
			if err != nil {
				return fmt.Errorf("failed to create meal: %w", err)
			}

			if err := insertOptions(ctx, tx, meal.ID, meal.Options); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func insertOptions(ctx context.Context, tx pgx.Tx, mealID uuid.UUID, options []storage.MealOption) error {
	for _, opt := range options {
		portions, err := json.Marshal(nonNilPortions(opt.Portions))
		if err != nil {
			return fmt.Errorf("failed to encode portions: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO meal_options (meal_id, option_index, is_alternative, label, portions)
			VALUES ($1, $2, $3, $4, $5)
		`, mealID, opt.Index, opt.IsAlternative, opt.Label, portions)
		if err != nil {
			return fmt.Errorf("failed to create meal option %d: %w", opt.Index, err)
		}
	}
	return nil
}

func nonNilPortions(p []storage.FoodPortion) []storage.FoodPortion {
	if p == nil {
		return []storage.FoodPortion{}
	}
	return p
}

const planColumns = `id, patient_id, author_kind, author_id, contract_id, name, objective,
	calorie_target, start_date, end_date, status, created_at, updated_at`

func scanPlan(row rowScanner) (storage.NutritionPlan, error) {
	var p storage.NutritionPlan
	err := row.Scan(
		&p.ID,
		&p.PatientID,
		&p.Author.Kind,
		&p.Author.ID,
		&p.ContractID,
		&p.Name,
		&p.Objective,
		&p.CalorieTarget,
		&p.StartDate,
		&p.EndDate,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *plansStorage) GetPlan(ctx context.Context, id uuid.UUID) (*storage.NutritionPlan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM nutrition_plans WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *plansStorage) GetPlanTree(ctx context.Context, id uuid.UUID) (*storage.PlanTree, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	tree := &storage.PlanTree{Plan: *plan}

	dayRows, err := s.pool.Query(ctx, `SELECT id, plan_id, day_index FROM plan_days WHERE plan_id = $1 ORDER BY day_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan days: %w", err)
	}
	dayPos := map[uuid.UUID]int{}
	for dayRows.Next() {
		var d storage.PlanDay
		if err := dayRows.Scan(&d.ID, &d.PlanID, &d.DayIndex); err != nil {
			dayRows.Close()
			return nil, fmt.Errorf("failed to scan plan day: %w", err)
		}
		dayPos[d.ID] = len(tree.Days)
		tree.Days = append(tree.Days, d)
	}
	dayRows.Close()
	if err := dayRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan days: %w", err)
	}

	meals, err := loadMeals(ctx, s.pool, `
		SELECT m.id, m.plan_day_id, m.meal_type, m.recommended_time, m.instructions, m.sort_order
		FROM meals m
		JOIN plan_days d ON d.id = m.plan_day_id
		WHERE d.plan_id = $1
		ORDER BY m.sort_order, m.id
	`, id)
	if err != nil {
		return nil, err
	}
	for _, m := range meals {
		pos, ok := dayPos[m.PlanDayID]
		if !ok {
			continue
		}
		tree.Days[pos].Meals = append(tree.Days[pos].Meals, m)
	}

	return tree, nil
}

// loadMeals runs a meal query and attaches options to each row.
func loadMeals(ctx context.Context, q querier, query string, args ...any) ([]storage.Meal, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get meals: %w", err)
	}
	var meals []storage.Meal
	index := map[uuid.UUID]int{}
	ids := []uuid.UUID{}
	for rows.Next() {
		var m storage.Meal
		if err := rows.Scan(&m.ID, &m.PlanDayID, &m.MealType, &m.RecommendedTime, &m.Instructions, &m.SortOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		index[m.ID] = len(meals)
		ids = append(ids, m.ID)
		meals = append(meals, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meals: %w", err)
	}
	if len(ids) == 0 {
		return meals, nil
	}

	optRows, err := q.Query(ctx, `
		SELECT meal_id, option_index, is_alternative, label, portions
		FROM meal_options
		WHERE meal_id = ANY($1)
		ORDER BY meal_id, option_index
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get meal options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var mealID uuid.UUID
		opt, err := scanOption(optRows, &mealID)
		if err != nil {
			return nil, err
		}
		pos := index[mealID]
		meals[pos].Options = append(meals[pos].Options, opt)
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meal options: %w", err)
	}

	return meals, nil
}

func scanOption(row rowScanner, mealID *uuid.UUID) (storage.MealOption, error) {
	var opt storage.MealOption
	var raw []byte
	if err := row.Scan(mealID, &opt.Index, &opt.IsAlternative, &opt.Label, &raw); err != nil {
		return opt, fmt.Errorf("failed to scan meal option: %w", err)
	}
	if err := json.Unmarshal(raw, &opt.Portions); err != nil {
		return opt, fmt.Errorf("failed to decode portions: %w", err)
	}
	return opt, nil
}

func (s *plansStorage) GetPlanByContract(ctx context.Context, contractID uuid.UUID) (*storage.NutritionPlan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM nutrition_plans
		WHERE contract_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, contractID))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *plansStorage) ListPlansByPatient(ctx context.Context, patientID uuid.UUID) ([]storage.NutritionPlan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+` FROM nutrition_plans WHERE patient_id = $1 ORDER BY start_date`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []storage.NutritionPlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s *plansStorage) UpdatePlanStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE nutrition_plans SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *plansStorage) GetMealContext(ctx context.Context, mealID uuid.UUID) (*storage.MealContext, error) {
	var planID uuid.UUID
	var dayIndex int
	err := s.pool.QueryRow(ctx, `
		SELECT d.plan_id, d.day_index
		FROM meals m
		JOIN plan_days d ON d.id = m.plan_day_id
		WHERE m.id = $1
	`, mealID).Scan(&planID, &dayIndex)
	if err != nil {
		return nil, notFound(err)
	}

	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	meals, err := loadMeals(ctx, s.pool, `
		SELECT id, plan_day_id, meal_type, recommended_time, instructions, sort_order
		FROM meals WHERE id = $1
	`, mealID)
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return nil, storage.ErrNotFound
	}

	return &storage.MealContext{Meal: meals[0], DayIndex: dayIndex, Plan: *plan}, nil
}

// UpdateMealOptions locks the meal row so concurrent authoring edits serialise.
func (s *plansStorage) UpdateMealOptions(ctx context.Context, mealID uuid.UUID, fn func([]storage.MealOption) ([]storage.MealOption, error)) ([]storage.MealOption, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM meals WHERE id = $1 FOR UPDATE`, mealID).Scan(&lockedID); err != nil {
		return nil, notFound(err)
	}

	rows, err := tx.Query(ctx, `
		SELECT meal_id, option_index, is_alternative, label, portions
		FROM meal_options
		WHERE meal_id = $1
		ORDER BY option_index
	`, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to get meal options: %w", err)
	}
	var current []storage.MealOption
	for rows.Next() {
		var id uuid.UUID
		opt, err := scanOption(rows, &id)
		if err != nil {
			rows.Close()
			return nil, err
		}
		current = append(current, opt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meal options: %w", err)
	}

	updated, err := fn(current)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM meal_options WHERE meal_id = $1`, mealID); err != nil {
		return nil, fmt.Errorf("failed to clear meal options: %w", err)
	}
	if err := insertOptions(ctx, tx, mealID, updated); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit meal options: %w", err)
	}
	return updated, nil
}
