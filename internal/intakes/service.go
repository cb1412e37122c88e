package intakes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealoptions"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrMealNotFound          = errors.New("meal not found")
	ErrOptionNotFound        = errors.New("option not found")
	ErrDuplicateConfirmation = errors.New("meal already confirmed for this day")
	ErrMealNotScheduled      = errors.New("meal is not scheduled on this day")
)

const maxNotesLength = 1000

type Logger interface {
	Printf(format string, v ...any)
}

type Service struct {
	intakes  storage.IntakesStorage
	plans    storage.PlansStorage
	patients storage.PatientsStorage
	foods    storage.FoodsStorage
	loc      *time.Location
	logger   Logger
	now      func() time.Time
}

// NewService builds the reconciler. loc is the zone for patients without one.
func NewService(store storage.Storage, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		intakes:  store.GetIntakesStorage(),
		plans:    store.GetPlansStorage(),
		patients: store.GetPatientsStorage(),
		foods:    store.GetFoodsStorage(),
		loc:      loc,
		logger:   log.Default(),
		now:      time.Now,
	}
}

func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Service) location(ctx context.Context, patientID uuid.UUID) (*time.Location, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: patient %s not found", ErrInvalidArgument, patientID)
		}
		return nil, err
	}
	return cycle.Location(p.TimeZone, s.loc), nil
}

func (s *Service) takenAt(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return s.now().UTC()
	}
	return t.UTC()
}

// ConfirmMeal records that the patient ate one option of a scheduled meal.
// At most one confirmation per (patient, meal, calendar day) is accepted; the
// storage unique key decides races, HasConfirmation is only a fast path.
func (s *Service) ConfirmMeal(ctx context.Context, req ConfirmMealRequest) (*IntakeDTO, error) {
	if req.PatientID == uuid.Nil || req.MealID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id and meal_id are required", ErrInvalidArgument)
	}
	if req.OptionIndex < 0 {
		return nil, fmt.Errorf("%w: option_index must be >= 0", ErrInvalidArgument)
	}
	if len(req.Notes) > maxNotesLength {
		return nil, fmt.Errorf("%w: notes must be at most %d characters", ErrInvalidArgument, maxNotesLength)
	}

	mc, err := s.plans.GetMealContext(ctx, req.MealID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	if mc.Plan.PatientID != req.PatientID {
		return nil, ErrMealNotFound
	}

	index := req.OptionIndex
	if index == 0 {
		index = 1
	}
	set, err := mealoptions.NewSet(mc.Meal.Options)
	if err != nil {
		return nil, err
	}
	opt, err := set.Get(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrOptionNotFound, index)
	}

	loc, err := s.location(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	takenAt := s.takenAt(req.TakenAt)
	day := cycle.DateOf(takenAt, loc)
	if err := s.checkScheduled(ctx, mc.Plan, req.MealID, day); err != nil {
		return nil, err
	}

	exists, err := s.intakes.HasConfirmation(ctx, req.PatientID, req.MealID, day)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateConfirmation
	}

	mealID := req.MealID
	rec := &storage.IntakeRecord{
		PatientID:   req.PatientID,
		TakenAt:     takenAt,
		IntakeDay:   day,
		Origin:      storage.OriginFromPlan,
		MealID:      &mealID,
		OptionIndex: &index,
		Portions:    opt.Portions,
		Notes:       req.Notes,
	}
	if err := s.intakes.CreateIntake(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrDuplicateConfirmation
		}
		return nil, err
	}

	s.logger.Printf("INFO intakes: confirmed meal=%s patient=%s day=%s option=%d", mealID, req.PatientID, cycle.FormatDate(day), index)
	return s.toDTO(ctx, *rec)
}

// checkScheduled accepts the meal only if it belongs to the plan day active on day.
func (s *Service) checkScheduled(ctx context.Context, plan storage.NutritionPlan, mealID uuid.UUID, day time.Time) error {
	if day.After(cycle.Date(plan.EndDate)) {
		return fmt.Errorf("%w: ended %s", mealplans.ErrPlanEnded, cycle.FormatDate(plan.EndDate))
	}
	tree, err := s.plans.GetPlanTree(ctx, plan.ID)
	if err != nil {
		return err
	}
	meals, dayIndex, err := mealplans.TodaysMeals(*tree, day)
	if err != nil {
		if errors.Is(err, mealplans.ErrNoPlanDayForIndex) {
			return fmt.Errorf("%w: %s has no plan day %d", ErrMealNotScheduled, cycle.FormatDate(day), dayIndex)
		}
		return err
	}
	for _, m := range meals {
		if m.ID == mealID {
			return nil
		}
	}
	return fmt.Errorf("%w: meal %s is not on day %d (%s)", ErrMealNotScheduled, mealID, dayIndex, cycle.FormatDate(day))
}

// LogFreeform records an arbitrary list of foods. No duplicate check applies.
func (s *Service) LogFreeform(ctx context.Context, req FreeformRequest) (*IntakeDTO, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidArgument)
	}
	if len(req.Portions) == 0 {
		return nil, fmt.Errorf("%w: portions must not be empty", ErrInvalidArgument)
	}
	if len(req.Notes) > maxNotesLength {
		return nil, fmt.Errorf("%w: notes must be at most %d characters", ErrInvalidArgument, maxNotesLength)
	}
	portions, err := mealoptions.ParsePortions(req.Portions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	ids := nutrients.FoodIDs(portions)
	foods, err := s.foods.GetFoods(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := foods[id]; !ok {
			return nil, fmt.Errorf("%w: unknown food %s", ErrInvalidArgument, id)
		}
	}

	loc, err := s.location(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	takenAt := s.takenAt(req.TakenAt)

	rec := &storage.IntakeRecord{
		PatientID: req.PatientID,
		TakenAt:   takenAt,
		IntakeDay: cycle.DateOf(takenAt, loc),
		Origin:    storage.OriginFreeform,
		Portions:  portions,
		Notes:     req.Notes,
	}
	if err := s.intakes.CreateIntake(ctx, rec); err != nil {
		return nil, err
	}
	return s.toDTO(ctx, *rec)
}

// Totals aggregates the nutrients of one record.
func (s *Service) Totals(ctx context.Context, intakeID uuid.UUID) (*IntakeTotalsResponse, error) {
	rec, err := s.intakes.GetIntake(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	totals, err := s.aggregate(ctx, rec.Portions)
	if err != nil {
		return nil, err
	}
	return &IntakeTotalsResponse{IntakeID: rec.ID, Totals: totals}, nil
}

// DailyTotals sums every record of the patient on date, both origins, each once.
func (s *Service) DailyTotals(ctx context.Context, patientID uuid.UUID, date time.Time) (*DailyTotalsResponse, error) {
	day := cycle.Date(date)
	records, err := s.intakes.ListIntakes(ctx, patientID, day, day)
	if err != nil {
		return nil, err
	}

	var all []storage.FoodPortion
	byOrigin := map[string][]storage.FoodPortion{
		storage.OriginFromPlan: nil,
		storage.OriginFreeform: nil,
	}
	for _, rec := range records {
		all = append(all, rec.Portions...)
		byOrigin[rec.Origin] = append(byOrigin[rec.Origin], rec.Portions...)
	}

	foods, err := s.foods.GetFoods(ctx, nutrients.FoodIDs(all))
	if err != nil {
		return nil, err
	}

	resp := &DailyTotalsResponse{
		PatientID: patientID,
		Date:      cycle.FormatDate(day),
		Records:   len(records),
		ByOrigin:  make(map[string]nutrients.Totals, len(byOrigin)),
	}
	if resp.Totals, err = aggregateWith(all, foods); err != nil {
		return nil, err
	}
	for origin, portions := range byOrigin {
		t, err := aggregateWith(portions, foods)
		if err != nil {
			return nil, err
		}
		resp.ByOrigin[origin] = t
	}
	return resp, nil
}

func (s *Service) ListIntakes(ctx context.Context, patientID uuid.UUID, date time.Time) (*IntakesResponse, error) {
	day := cycle.Date(date)
	records, err := s.intakes.ListIntakes(ctx, patientID, day, day)
	if err != nil {
		return nil, err
	}

	var all []storage.FoodPortion
	for _, rec := range records {
		all = append(all, rec.Portions...)
	}
	foods, err := s.foods.GetFoods(ctx, nutrients.FoodIDs(all))
	if err != nil {
		return nil, err
	}

	resp := &IntakesResponse{Date: cycle.FormatDate(day), Intakes: make([]IntakeDTO, 0, len(records))}
	for _, rec := range records {
		dto := newDTO(rec)
		if dto.Totals, err = aggregateWith(rec.Portions, foods); err != nil {
			return nil, err
		}
		resp.Intakes = append(resp.Intakes, dto)
	}
	return resp, nil
}

// DeleteIntake removes a record of the patient; a deleted confirmation frees
// its (meal, day) slot.
func (s *Service) DeleteIntake(ctx context.Context, patientID, intakeID uuid.UUID) error {
	rec, err := s.intakes.GetIntake(ctx, intakeID)
	if err != nil {
		return err
	}
	if rec.PatientID != patientID {
		return storage.ErrNotFound
	}
	return s.intakes.DeleteIntake(ctx, intakeID)
}

func (s *Service) aggregate(ctx context.Context, portions []storage.FoodPortion) (nutrients.Totals, error) {
	foods, err := s.foods.GetFoods(ctx, nutrients.FoodIDs(portions))
	if err != nil {
		return nutrients.Totals{}, err
	}
	return aggregateWith(portions, foods)
}

func aggregateWith(portions []storage.FoodPortion, foods map[uuid.UUID]storage.Food) (nutrients.Totals, error) {
	resolved, err := nutrients.FromFoodPortions(portions, foods)
	if err != nil {
		return nutrients.Totals{}, err
	}
	return nutrients.Aggregate(resolved)
}

func (s *Service) toDTO(ctx context.Context, rec storage.IntakeRecord) (*IntakeDTO, error) {
	dto := newDTO(rec)
	totals, err := s.aggregate(ctx, rec.Portions)
	if err != nil {
		return nil, err
	}
	dto.Totals = totals
	return &dto, nil
}

func newDTO(rec storage.IntakeRecord) IntakeDTO {
	portions := rec.Portions
	if portions == nil {
		portions = []storage.FoodPortion{}
	}
	return IntakeDTO{
		ID:          rec.ID,
		PatientID:   rec.PatientID,
		TakenAt:     rec.TakenAt,
		IntakeDay:   cycle.FormatDate(rec.IntakeDay),
		Origin:      rec.Origin,
		MealID:      rec.MealID,
		OptionIndex: rec.OptionIndex,
		Portions:    portions,
		Notes:       rec.Notes,
		CreatedAt:   rec.CreatedAt,
	}
}
