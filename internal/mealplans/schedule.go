package mealplans

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealoptions"
	"github.com/fdg312/nutrition-engine/internal/storage"
)

var (
	// ErrNoPlanDayForIndex — в плане нет дня для вычисленного индекса (нарушена целостность)
	ErrNoPlanDayForIndex = errors.New("no plan day for resolved day index")
	ErrInvalidAuthoring  = errors.New("invalid plan authoring")
	ErrPlanEnded         = errors.New("plan has ended")
	ErrInvalidArgument   = errors.New("invalid argument")
)

var mealTypeOrder = map[string]int{
	storage.MealTypeBreakfast: 0,
	storage.MealTypeLunch:     1,
	storage.MealTypeDinner:    2,
	storage.MealTypeSnack:     3,
}

// TodaysMeals returns the meals of the plan day active on today, ordered by
// SortOrder (ties: meal type, then id), together with the resolved day index.
func TodaysMeals(tree storage.PlanTree, today time.Time) ([]storage.Meal, int, error) {
	dayIndex, err := cycle.ResolveDayIndex(tree.Plan.StartDate, tree.CycleLength(), today)
	if err != nil {
		return nil, 0, err
	}

	for _, day := range tree.Days {
		if day.DayIndex != dayIndex {
			continue
		}
		meals := make([]storage.Meal, len(day.Meals))
		for i, m := range day.Meals {
			meals[i] = m.Clone()
		}
		SortMeals(meals)
		return meals, dayIndex, nil
	}

	return nil, dayIndex, fmt.Errorf("%w: plan %s day %d", ErrNoPlanDayForIndex, tree.Plan.ID, dayIndex)
}

func SortMeals(meals []storage.Meal) {
	sort.SliceStable(meals, func(i, j int) bool {
		a, b := meals[i], meals[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if mealTypeOrder[a.MealType] != mealTypeOrder[b.MealType] {
			return mealTypeOrder[a.MealType] < mealTypeOrder[b.MealType]
		}
		return a.ID.String() < b.ID.String()
	})
}

// AuthoringError lists every problem found in a plan tree.
type AuthoringError struct {
	Problems []string
}

func (e *AuthoringError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidAuthoring, strings.Join(e.Problems, "; "))
}

func (e *AuthoringError) Unwrap() error {
	return ErrInvalidAuthoring
}

// ValidateAuthoring checks the tree before publishing: day indices unique
// and contiguous from 1, every meal with a valid option set, start <= end.
func ValidateAuthoring(tree storage.PlanTree) error {
	var problems []string

	if tree.Plan.EndDate.Before(tree.Plan.StartDate) {
		problems = append(problems, "end_date is before start_date")
	}
	if len(tree.Days) == 0 {
		problems = append(problems, "plan has no days")
	}

	seen := make(map[int]bool, len(tree.Days))
	for _, day := range tree.Days {
		if seen[day.DayIndex] {
			problems = append(problems, fmt.Sprintf("day_index %d is duplicated", day.DayIndex))
		}
		seen[day.DayIndex] = true

		for _, meal := range day.Meals {
			if _, ok := mealTypeOrder[meal.MealType]; !ok {
				problems = append(problems, fmt.Sprintf("day %d: invalid meal_type %q", day.DayIndex, meal.MealType))
			}
			if err := mealoptions.Validate(meal.Options); err != nil {
				problems = append(problems, fmt.Sprintf("day %d %s: %v", day.DayIndex, meal.MealType, err))
			}
		}
	}

	for i := 1; i <= len(seen); i++ {
		if !seen[i] {
			problems = append(problems, fmt.Sprintf("day_index %d is missing (expected 1..%d)", i, len(seen)))
		}
	}

	if len(problems) > 0 {
		return &AuthoringError{Problems: problems}
	}
	return nil
}
