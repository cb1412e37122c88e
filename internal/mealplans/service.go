package mealplans

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Service handles meal plans business logic.
type Service struct {
	plans     storage.PlansStorage
	patients  storage.PatientsStorage
	contracts storage.ContractsStorage
	foods     storage.FoodsStorage
	loc       *time.Location
	logger    Logger
	now       func() time.Time
}

// NewService creates a new meal plans service. loc is the zone used for
// patients without one of their own.
func NewService(store storage.Storage, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		plans:     store.GetPlansStorage(),
		patients:  store.GetPatientsStorage(),
		contracts: store.GetContractsStorage(),
		foods:     store.GetFoodsStorage(),
		loc:       loc,
		logger:    log.Default(),
		now:       time.Now,
	}
}

func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// CreatePlan stores the authored tree as a draft.
func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*PlanTreeResponse, error) {
	tree, err := req.toTree()
	if err != nil {
		return nil, err
	}

	if _, err := s.patients.GetPatient(ctx, tree.Plan.PatientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: patient %s not found", ErrInvalidArgument, tree.Plan.PatientID)
		}
		return nil, err
	}

	if tree.Plan.ContractID != nil {
		c, err := s.contracts.GetContract(ctx, *tree.Plan.ContractID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: contract %s not found", ErrInvalidArgument, *tree.Plan.ContractID)
			}
			return nil, err
		}
		if c.PatientID != tree.Plan.PatientID {
			return nil, fmt.Errorf("%w: contract belongs to another patient", ErrInvalidArgument)
		}
	}

	var all []storage.FoodPortion
	for _, d := range tree.Days {
		for _, m := range d.Meals {
			for _, o := range m.Options {
				all = append(all, o.Portions...)
			}
		}
	}
	ids := nutrients.FoodIDs(all)
	foods, err := s.foods.GetFoods(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := foods[id]; !ok {
			return nil, fmt.Errorf("%w: unknown food %s", ErrInvalidArgument, id)
		}
	}

	if err := s.plans.CreatePlanTree(ctx, tree); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, fmt.Errorf("%w: duplicate day_index", ErrInvalidArgument)
		}
		return nil, err
	}

	s.logger.Printf("INFO mealplans: created plan=%s patient=%s days=%d", tree.Plan.ID, tree.Plan.PatientID, len(tree.Days))
	return s.toTreeResponse(*tree, foods), nil
}

func (s *Service) GetPlan(ctx context.Context, planID uuid.UUID) (*PlanTreeResponse, error) {
	tree, err := s.plans.GetPlanTree(ctx, planID)
	if err != nil {
		return nil, err
	}
	foods, err := s.foodsFor(ctx, tree.Days...)
	if err != nil {
		return nil, err
	}
	return s.toTreeResponse(*tree, foods), nil
}

// Publish validates the tree and marks the plan published.
func (s *Service) Publish(ctx context.Context, planID uuid.UUID) (*PlanDTO, error) {
	tree, err := s.plans.GetPlanTree(ctx, planID)
	if err != nil {
		return nil, err
	}
	if tree.Plan.Status == storage.PlanStatusArchived {
		return nil, &AuthoringError{Problems: []string{"archived plans cannot be published"}}
	}
	if err := ValidateAuthoring(*tree); err != nil {
		return nil, err
	}
	if tree.Plan.Status != storage.PlanStatusPublished {
		if err := s.plans.UpdatePlanStatus(ctx, planID, storage.PlanStatusPublished); err != nil {
			return nil, err
		}
		tree.Plan.Status = storage.PlanStatusPublished
		s.logger.Printf("INFO mealplans: published plan=%s cycle_length=%d", planID, tree.CycleLength())
	}
	dto := toPlanDTO(*tree)
	return &dto, nil
}

// PatientLocation returns the zone used to cut the patient's calendar days.
func (s *Service) PatientLocation(ctx context.Context, patientID uuid.UUID) (*time.Location, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.loc, nil
		}
		return nil, err
	}
	return cycle.Location(p.TimeZone, s.loc), nil
}

// TodaysMeals resolves the meals of the plan for date. A nil date means
// "today" in the patient's zone.
func (s *Service) TodaysMeals(ctx context.Context, planID uuid.UUID, date *time.Time) (*TodayResponse, error) {
	tree, err := s.plans.GetPlanTree(ctx, planID)
	if err != nil {
		return nil, err
	}

	var day time.Time
	if date != nil {
		day = cycle.Date(*date)
	} else {
		loc, err := s.PatientLocation(ctx, tree.Plan.PatientID)
		if err != nil {
			return nil, err
		}
		day = cycle.DateOf(s.now(), loc)
	}

	if day.After(cycle.Date(tree.Plan.EndDate)) {
		return nil, fmt.Errorf("%w: ended %s", ErrPlanEnded, cycle.FormatDate(tree.Plan.EndDate))
	}

	meals, dayIndex, err := TodaysMeals(*tree, day)
	if err != nil {
		if errors.Is(err, ErrNoPlanDayForIndex) {
			s.logger.Printf("ERROR mealplans: data integrity: %v", err)
		}
		return nil, err
	}

	foods, err := s.foodsFor(ctx, storage.PlanDay{Meals: meals})
	if err != nil {
		return nil, err
	}

	resp := &TodayResponse{
		PlanID:   planID.String(),
		Date:     cycle.FormatDate(day),
		DayIndex: dayIndex,
		Meals:    make([]MealDTO, 0, len(meals)),
	}
	for _, m := range meals {
		resp.Meals = append(resp.Meals, toMealDTO(m, foods))
	}
	return resp, nil
}

func (s *Service) foodsFor(ctx context.Context, days ...storage.PlanDay) (map[uuid.UUID]storage.Food, error) {
	var all []storage.FoodPortion
	for _, d := range days {
		for _, m := range d.Meals {
			for _, o := range m.Options {
				all = append(all, o.Portions...)
			}
		}
	}
	return s.foods.GetFoods(ctx, nutrients.FoodIDs(all))
}

func (s *Service) toTreeResponse(tree storage.PlanTree, foods map[uuid.UUID]storage.Food) *PlanTreeResponse {
	resp := &PlanTreeResponse{
		Plan: toPlanDTO(tree),
		Days: make([]DayDTO, 0, len(tree.Days)),
	}
	for _, d := range tree.Days {
		meals := make([]storage.Meal, len(d.Meals))
		copy(meals, d.Meals)
		SortMeals(meals)

		day := DayDTO{DayIndex: d.DayIndex, Meals: make([]MealDTO, 0, len(meals))}
		for _, m := range meals {
			day.Meals = append(day.Meals, toMealDTO(m, foods))
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

// toMealDTO attaches totals per option; a food missing from the map leaves
// that option's totals at zero.
func toMealDTO(m storage.Meal, foods map[uuid.UUID]storage.Food) MealDTO {
	dto := MealDTO{
		ID:              m.ID.String(),
		MealType:        m.MealType,
		RecommendedTime: m.RecommendedTime,
		Instructions:    m.Instructions,
		SortOrder:       m.SortOrder,
		Options:         make([]OptionDTO, 0, len(m.Options)),
	}
	for _, o := range m.Options {
		opt := OptionDTO{
			Index:         o.Index,
			IsAlternative: o.IsAlternative,
			Label:         o.Label,
			Portions:      o.Portions,
		}
		if portions, err := nutrients.FromFoodPortions(o.Portions, foods); err == nil {
			opt.Totals, _ = nutrients.Aggregate(portions)
		}
		dto.Options = append(dto.Options, opt)
	}
	return dto
}
