package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type mealLocation struct {
	planID   uuid.UUID
	dayPos   int
	mealPos  int
	dayIndex int
}

type plansStorage struct {
	mu    sync.RWMutex
	trees map[uuid.UUID]*storage.PlanTree // key: plan_id
	// index: meal_id -> position inside its tree
	meals map[uuid.UUID]mealLocation
}

func newPlansStorage() *plansStorage {
	return &plansStorage{
		trees: make(map[uuid.UUID]*storage.PlanTree),
		meals: make(map[uuid.UUID]mealLocation),
	}
}

func (s *plansStorage) CreatePlanTree(ctx context.Context, tree *storage.PlanTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if tree.Plan.ID == uuid.Nil {
		tree.Plan.ID = uuid.New()
	}
	if tree.Plan.Status == "" {
		tree.Plan.Status = storage.PlanStatusDraft
	}
	tree.Plan.CreatedAt = now
	tree.Plan.UpdatedAt = now

	seen := make(map[int]struct{}, len(tree.Days))
	for i := range tree.Days {
		day := &tree.Days[i]
		if _, dup := seen[day.DayIndex]; dup {
			return storage.ErrDuplicate
		}
		seen[day.DayIndex] = struct{}{}

		if day.ID == uuid.Nil {
			day.ID = uuid.New()
		}
		day.PlanID = tree.Plan.ID
		for j := range day.Meals {
			meal := &day.Meals[j]
			if meal.ID == uuid.Nil {
				meal.ID = uuid.New()
			}
			meal.PlanDayID = day.ID
		}
	}

	clone := tree.Clone()
	s.trees[clone.Plan.ID] = &clone
	s.reindexLocked(&clone)
	return nil
}

func (s *plansStorage) reindexLocked(tree *storage.PlanTree) {
	for i, day := range tree.Days {
		for j, meal := range day.Meals {
			s.meals[meal.ID] = mealLocation{
				planID:   tree.Plan.ID,
				dayPos:   i,
				mealPos:  j,
				dayIndex: day.DayIndex,
			}
		}
	}
}

func (s *plansStorage) GetPlan(ctx context.Context, id uuid.UUID) (*storage.NutritionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.trees[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	plan := tree.Clone().Plan
	return &plan, nil
}

func (s *plansStorage) GetPlanTree(ctx context.Context, id uuid.UUID) (*storage.PlanTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.trees[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := tree.Clone()
	return &clone, nil
}

func (s *plansStorage) GetPlanByContract(ctx context.Context, contractID uuid.UUID) (*storage.NutritionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *storage.NutritionPlan
	for _, tree := range s.trees {
		p := tree.Plan
		if p.ContractID == nil || *p.ContractID != contractID {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			plan := tree.Clone().Plan
			found = &plan
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (s *plansStorage) ListPlansByPatient(ctx context.Context, patientID uuid.UUID) ([]storage.NutritionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []storage.NutritionPlan{}
	for _, tree := range s.trees {
		if tree.Plan.PatientID == patientID {
			result = append(result, tree.Clone().Plan)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result, nil
}

func (s *plansStorage) UpdatePlanStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.trees[id]
	if !ok {
		return storage.ErrNotFound
	}
	tree.Plan.Status = status
	tree.Plan.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *plansStorage) GetMealContext(ctx context.Context, mealID uuid.UUID) (*storage.MealContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meal, loc, ok := s.getMealLocked(mealID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	tree := s.trees[loc.planID].Clone()
	return &storage.MealContext{
		Meal:     meal.Clone(),
		DayIndex: loc.dayIndex,
		Plan:     tree.Plan,
	}, nil
}

// UpdateMealOptions holds the write lock for the whole read-modify-write.
func (s *plansStorage) UpdateMealOptions(ctx context.Context, mealID uuid.UUID, fn func([]storage.MealOption) ([]storage.MealOption, error)) ([]storage.MealOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meal, loc, ok := s.getMealLocked(mealID)
	if !ok {
		return nil, storage.ErrNotFound
	}

	updated, err := fn(storage.CloneOptions(meal.Options))
	if err != nil {
		return nil, err
	}

	tree := s.trees[loc.planID]
	tree.Days[loc.dayPos].Meals[loc.mealPos].Options = storage.CloneOptions(updated)
	tree.Plan.UpdatedAt = time.Now().UTC()

	return storage.CloneOptions(updated), nil
}

func (s *plansStorage) getMealLocked(mealID uuid.UUID) (storage.Meal, mealLocation, bool) {
	loc, ok := s.meals[mealID]
	if !ok {
		return storage.Meal{}, mealLocation{}, false
	}
	tree, ok := s.trees[loc.planID]
	if !ok {
		return storage.Meal{}, mealLocation{}, false
	}
	return tree.Days[loc.dayPos].Meals[loc.mealPos], loc, true
}
