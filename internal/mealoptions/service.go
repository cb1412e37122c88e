package mealoptions

import (
	"context"
	"fmt"

	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

// Service persists option mutations. The Set logic runs inside
// PlansStorage.UpdateMealOptions, so it sees the locked current options.
type Service struct {
	plans storage.PlansStorage
	foods storage.FoodsStorage
}

func NewService(plans storage.PlansStorage, foods storage.FoodsStorage) *Service {
	return &Service{plans: plans, foods: foods}
}

// AddOption appends an alternative to the meal.
func (s *Service) AddOption(ctx context.Context, mealID uuid.UUID, req AddOptionRequest) (storage.MealOption, error) {
	portions, err := req.toPortions()
	if err != nil {
		return storage.MealOption{}, err
	}
	if err := s.ensureFoods(ctx, portions); err != nil {
		return storage.MealOption{}, err
	}

	var added storage.MealOption
	_, err = s.plans.UpdateMealOptions(ctx, mealID, func(current []storage.MealOption) ([]storage.MealOption, error) {
		set, err := NewSet(current)
		if err != nil {
			return nil, err
		}
		added, err = set.Add(req.Label, portions)
		if err != nil {
			return nil, err
		}
		return set.Options(), nil
	})
	if err != nil {
		return storage.MealOption{}, err
	}
	return added, nil
}

func (s *Service) DuplicateOption(ctx context.Context, mealID uuid.UUID, index int) (storage.MealOption, error) {
	var dup storage.MealOption
	_, err := s.plans.UpdateMealOptions(ctx, mealID, func(current []storage.MealOption) ([]storage.MealOption, error) {
		set, err := NewSet(current)
		if err != nil {
			return nil, err
		}
		dup, err = set.Duplicate(index)
		if err != nil {
			return nil, err
		}
		return set.Options(), nil
	})
	if err != nil {
		return storage.MealOption{}, err
	}
	return dup, nil
}

// RemoveOption returns the renumbered options left on the meal.
func (s *Service) RemoveOption(ctx context.Context, mealID uuid.UUID, index int) ([]storage.MealOption, error) {
	return s.plans.UpdateMealOptions(ctx, mealID, func(current []storage.MealOption) ([]storage.MealOption, error) {
		set, err := NewSet(current)
		if err != nil {
			return nil, err
		}
		if err := set.Remove(index); err != nil {
			return nil, err
		}
		return set.Options(), nil
	})
}

// OptionTotals aggregates the nutrients of one option of the meal.
func (s *Service) OptionTotals(ctx context.Context, mealID uuid.UUID, index int) (nutrients.Totals, error) {
	mc, err := s.plans.GetMealContext(ctx, mealID)
	if err != nil {
		return nutrients.Totals{}, err
	}
	set, err := NewSet(mc.Meal.Options)
	if err != nil {
		return nutrients.Totals{}, err
	}
	opt, err := set.Get(index)
	if err != nil {
		return nutrients.Totals{}, err
	}
	foods, err := s.foods.GetFoods(ctx, nutrients.FoodIDs(opt.Portions))
	if err != nil {
		return nutrients.Totals{}, err
	}
	return set.Totals(index, foods)
}

func (s *Service) ensureFoods(ctx context.Context, portions []storage.FoodPortion) error {
	ids := nutrients.FoodIDs(portions)
	foods, err := s.foods.GetFoods(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := foods[id]; !ok {
			return fmt.Errorf("%w: unknown food %s", ErrInvalidArgument, id)
		}
	}
	return nil
}
