package mealplans

import (
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealoptions"
	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type ProfessionalRefInput struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type OptionInput struct {
	Label    string                     `json:"label"`
	Portions []mealoptions.PortionInput `json:"portions"`
}

type MealInput struct {
	MealType        string        `json:"meal_type"`
	RecommendedTime string        `json:"recommended_time"`
	Instructions    string        `json:"instructions"`
	SortOrder       int           `json:"sort_order"`
	Options         []OptionInput `json:"options"`
}

type DayInput struct {
	DayIndex int         `json:"day_index"`
	Meals    []MealInput `json:"meals"`
}

// CreatePlanRequest is the authoring input for a whole plan tree.
type CreatePlanRequest struct {
	PatientID     string               `json:"patient_id"`
	Author        ProfessionalRefInput `json:"author"`
	ContractID    *string              `json:"contract_id,omitempty"`
	Name          string               `json:"name"`
	Objective     string               `json:"objective"`
	CalorieTarget float64              `json:"calorie_target"`
	StartDate     string               `json:"start_date"`
	EndDate       string               `json:"end_date"`
	Days          []DayInput           `json:"days"`
}

// toTree validates the request shape and builds a draft tree. Contiguity of
// day indices is left to ValidateAuthoring at publish time.
func (r CreatePlanRequest) toTree() (*storage.PlanTree, error) {
	patientID, err := uuid.Parse(r.PatientID)
	if err != nil {
		return nil, fmt.Errorf("%w: patient_id must be a valid uuid", ErrInvalidArgument)
	}

	if r.Author.Kind != storage.ProfessionalNutritionist {
		return nil, &AuthoringError{Problems: []string{fmt.Sprintf("author must be a %s, got %q", storage.ProfessionalNutritionist, r.Author.Kind)}}
	}
	authorID, err := uuid.Parse(r.Author.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: author.id must be a valid uuid", ErrInvalidArgument)
	}

	var contractID *uuid.UUID
	if r.ContractID != nil && *r.ContractID != "" {
		id, err := uuid.Parse(*r.ContractID)
		if err != nil {
			return nil, fmt.Errorf("%w: contract_id must be a valid uuid", ErrInvalidArgument)
		}
		contractID = &id
	}

	if len(r.Name) < 1 || len(r.Name) > 200 {
		return nil, fmt.Errorf("%w: name must be between 1 and 200 characters", ErrInvalidArgument)
	}
	if r.CalorieTarget < 0 || r.CalorieTarget > 10000 {
		return nil, fmt.Errorf("%w: calorie_target must be 0-10000", ErrInvalidArgument)
	}

	start, err := cycle.ParseDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", ErrInvalidArgument, err)
	}
	end, err := cycle.ParseDate(r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end_date: %v", ErrInvalidArgument, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date is before start_date", ErrInvalidArgument)
	}

	if len(r.Days) == 0 {
		return nil, fmt.Errorf("%w: days is required and must not be empty", ErrInvalidArgument)
	}

	tree := &storage.PlanTree{
		Plan: storage.NutritionPlan{
			PatientID:     patientID,
			Author:        storage.ProfessionalRef{Kind: r.Author.Kind, ID: authorID},
			ContractID:    contractID,
			Name:          r.Name,
			Objective:     r.Objective,
			CalorieTarget: r.CalorieTarget,
			StartDate:     start,
			EndDate:       end,
			Status:        storage.PlanStatusDraft,
		},
	}

	seen := make(map[int]bool)
	for i, d := range r.Days {
		if d.DayIndex < 1 {
			return nil, fmt.Errorf("%w: days[%d].day_index must be >= 1", ErrInvalidArgument, i)
		}
		if seen[d.DayIndex] {
			return nil, fmt.Errorf("%w: duplicate day_index %d", ErrInvalidArgument, d.DayIndex)
		}
		seen[d.DayIndex] = true

		day := storage.PlanDay{DayIndex: d.DayIndex}
		for j, m := range d.Meals {
			meal, err := m.toMeal()
			if err != nil {
				return nil, fmt.Errorf("days[%d].meals[%d]: %w", i, j, err)
			}
			day.Meals = append(day.Meals, meal)
		}
		tree.Days = append(tree.Days, day)
	}

	return tree, nil
}

func (m MealInput) toMeal() (storage.Meal, error) {
	if _, ok := mealTypeOrder[m.MealType]; !ok {
		return storage.Meal{}, fmt.Errorf("%w: invalid meal_type %q", ErrInvalidArgument, m.MealType)
	}
	if m.RecommendedTime != "" {
		if _, err := time.Parse("15:04", m.RecommendedTime); err != nil {
			return storage.Meal{}, fmt.Errorf("%w: recommended_time must be HH:MM", ErrInvalidArgument)
		}
	}
	if len(m.Options) < 1 || len(m.Options) > mealoptions.MaxOptions {
		return storage.Meal{}, fmt.Errorf("%w: a meal needs 1..%d options", ErrInvalidArgument, mealoptions.MaxOptions)
	}

	meal := storage.Meal{
		MealType:        m.MealType,
		RecommendedTime: m.RecommendedTime,
		Instructions:    m.Instructions,
		SortOrder:       m.SortOrder,
	}
	for i, o := range m.Options {
		portions, err := mealoptions.ParsePortions(o.Portions)
		if err != nil {
			return storage.Meal{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		label := o.Label
		if label == "" {
			label = mealoptions.PrimaryLabel
			if i > 0 {
				label = mealoptions.AlternativeLabel
			}
		}
		meal.Options = append(meal.Options, storage.MealOption{
			Index:         i + 1,
			IsAlternative: i > 0,
			Label:         label,
			Portions:      portions,
		})
	}
	return meal, nil
}

type PlanDTO struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	AuthorKind    string    `json:"author_kind"`
	AuthorID      string    `json:"author_id"`
	ContractID    *string   `json:"contract_id,omitempty"`
	Name          string    `json:"name"`
	Objective     string    `json:"objective"`
	CalorieTarget float64   `json:"calorie_target"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	Status        string    `json:"status"`
	CycleLength   int       `json:"cycle_length"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OptionDTO struct {
	Index         int                   `json:"index"`
	IsAlternative bool                  `json:"is_alternative"`
	Label         string                `json:"label"`
	Portions      []storage.FoodPortion `json:"portions"`
	Totals        nutrients.Totals      `json:"totals"`
}

type MealDTO struct {
	ID              string      `json:"id"`
	MealType        string      `json:"meal_type"`
	RecommendedTime string      `json:"recommended_time,omitempty"`
	Instructions    string      `json:"instructions,omitempty"`
	SortOrder       int         `json:"sort_order"`
	Options         []OptionDTO `json:"options"`
}

type DayDTO struct {
	DayIndex int       `json:"day_index"`
	Meals    []MealDTO `json:"meals"`
}

type PlanTreeResponse struct {
	Plan PlanDTO  `json:"plan"`
	Days []DayDTO `json:"days"`
}

type TodayResponse struct {
	PlanID   string    `json:"plan_id"`
	Date     string    `json:"date"`
	DayIndex int       `json:"day_index"`
	Meals    []MealDTO `json:"meals"`
}

func toPlanDTO(tree storage.PlanTree) PlanDTO {
	p := tree.Plan
	dto := PlanDTO{
		ID:            p.ID.String(),
		PatientID:     p.PatientID.String(),
		AuthorKind:    p.Author.Kind,
		AuthorID:      p.Author.ID.String(),
		Name:          p.Name,
		Objective:     p.Objective,
		CalorieTarget: p.CalorieTarget,
		StartDate:     cycle.FormatDate(p.StartDate),
		EndDate:       cycle.FormatDate(p.EndDate),
		Status:        p.Status,
		CycleLength:   tree.CycleLength(),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.ContractID != nil {
		s := p.ContractID.String()
		dto.ContractID = &s
	}
	return dto
}
