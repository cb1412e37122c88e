package mealplans

import (
	"errors"
	"testing"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func option(foodID uuid.UUID, grams float64) []storage.MealOption {
	return []storage.MealOption{{
		Index:    1,
		Label:    "Primary",
		Portions: []storage.FoodPortion{{FoodID: foodID, Grams: grams}},
	}}
}

// weekTree builds a 7-day plan; day N has a dinner (sort 2) and a breakfast (sort 1).
func weekTree(foodID uuid.UUID) storage.PlanTree {
	tree := storage.PlanTree{
		Plan: storage.NutritionPlan{
			ID:        uuid.New(),
			StartDate: date(2024, 1, 1),
			EndDate:   date(2024, 3, 31),
		},
	}
	for i := 1; i <= 7; i++ {
		tree.Days = append(tree.Days, storage.PlanDay{
			ID:       uuid.New(),
			DayIndex: i,
			Meals: []storage.Meal{
				{ID: uuid.New(), MealType: storage.MealTypeDinner, SortOrder: 2, Instructions: "dinner", Options: option(foodID, 100)},
				{ID: uuid.New(), MealType: storage.MealTypeBreakfast, SortOrder: 1, Instructions: "breakfast", Options: option(foodID, 150)},
			},
		})
	}
	return tree
}

func TestTodaysMeals_ResolvesDayAndOrders(t *testing.T) {
	tree := weekTree(uuid.New())

	meals, dayIndex, err := TodaysMeals(tree, date(2024, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dayIndex != 3 {
		t.Fatalf("expected day 3, got %d", dayIndex)
	}
	if len(meals) != 2 {
		t.Fatalf("expected 2 meals, got %d", len(meals))
	}
	if meals[0].MealType != storage.MealTypeBreakfast || meals[1].MealType != storage.MealTypeDinner {
		t.Fatalf("meals not ordered by sort key: %s, %s", meals[0].MealType, meals[1].MealType)
	}
	if meals[0].ID != tree.Days[2].Meals[1].ID {
		t.Fatalf("meal does not belong to day 3")
	}
}

func TestTodaysMeals_TieBreakByMealType(t *testing.T) {
	food := uuid.New()
	tree := storage.PlanTree{
		Plan: storage.NutritionPlan{StartDate: date(2024, 1, 1), EndDate: date(2024, 1, 31)},
		Days: []storage.PlanDay{{
			DayIndex: 1,
			Meals: []storage.Meal{
				{ID: uuid.New(), MealType: storage.MealTypeSnack, Options: option(food, 10)},
				{ID: uuid.New(), MealType: storage.MealTypeLunch, Options: option(food, 10)},
				{ID: uuid.New(), MealType: storage.MealTypeBreakfast, Options: option(food, 10)},
			},
		}},
	}

	meals, _, err := TodaysMeals(tree, date(2024, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{storage.MealTypeBreakfast, storage.MealTypeLunch, storage.MealTypeSnack}
	for i, m := range meals {
		if m.MealType != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, m.MealType, want[i])
		}
	}
}

func TestTodaysMeals_NotYetActive(t *testing.T) {
	tree := weekTree(uuid.New())
	_, _, err := TodaysMeals(tree, date(2023, 12, 31))
	if !errors.Is(err, cycle.ErrPlanNotYetActive) {
		t.Fatalf("expected ErrPlanNotYetActive, got %v", err)
	}
}

func TestTodaysMeals_MissingDay(t *testing.T) {
	tree := weekTree(uuid.New())
	// move day 3 to index 8: the cycle is still 7 long but has no day 3
	tree.Days[2].DayIndex = 8

	_, dayIndex, err := TodaysMeals(tree, date(2024, 1, 3))
	if !errors.Is(err, ErrNoPlanDayForIndex) {
		t.Fatalf("expected ErrNoPlanDayForIndex, got %v", err)
	}
	if dayIndex != 3 {
		t.Fatalf("expected resolved index 3, got %d", dayIndex)
	}
}

func TestTodaysMeals_ReturnsCopies(t *testing.T) {
	tree := weekTree(uuid.New())
	meals, _, _ := TodaysMeals(tree, date(2024, 1, 1))
	meals[0].Options[0].Portions[0].Grams = 1

	if tree.Days[0].Meals[1].Options[0].Portions[0].Grams != 150 {
		t.Fatal("TodaysMeals leaked the tree's slices")
	}
}

func TestValidateAuthoring(t *testing.T) {
	food := uuid.New()

	tests := []struct {
		name   string
		mutate func(*storage.PlanTree)
		ok     bool
	}{
		{"valid week", func(*storage.PlanTree) {}, true},
		{"rest day without meals", func(tr *storage.PlanTree) { tr.Days[6].Meals = nil }, true},
		{"gap in day indices", func(tr *storage.PlanTree) { tr.Days[6].DayIndex = 9 }, false},
		{"duplicate day index", func(tr *storage.PlanTree) { tr.Days[6].DayIndex = 1 }, false},
		{"meal without options", func(tr *storage.PlanTree) { tr.Days[0].Meals[0].Options = nil }, false},
		{"two primaries", func(tr *storage.PlanTree) {
			tr.Days[0].Meals[0].Options = append(tr.Days[0].Meals[0].Options, storage.MealOption{Index: 2})
		}, false},
		{"bad meal type", func(tr *storage.PlanTree) { tr.Days[0].Meals[0].MealType = "brunch" }, false},
		{"end before start", func(tr *storage.PlanTree) { tr.Plan.EndDate = date(2023, 1, 1) }, false},
		{"no days", func(tr *storage.PlanTree) { tr.Days = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := weekTree(food)
			tt.mutate(&tree)

			err := ValidateAuthoring(tree)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if !errors.Is(err, ErrInvalidAuthoring) {
					t.Fatalf("expected ErrInvalidAuthoring, got %v", err)
				}
				var ae *AuthoringError
				if !errors.As(err, &ae) || len(ae.Problems) == 0 {
					t.Fatalf("expected AuthoringError with problems, got %v", err)
				}
			}
		})
	}
}
