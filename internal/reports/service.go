package reports

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fdg312/nutrition-engine/internal/blob"
	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/intakes"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Service builds adherence reports: what the plan scheduled per day against
// what the patient confirmed and ate.
type Service struct {
	plans        storage.PlansStorage
	intakeStore  storage.IntakesStorage
	intakes      *intakes.Service
	blobStore    blob.Store
	presignTTL   time.Duration
	maxRangeDays int
	logger       Logger
	now          func() time.Time
}

func NewService(store storage.Storage, intakesService *intakes.Service, maxRangeDays int) *Service {
	if maxRangeDays <= 0 {
		maxRangeDays = 90
	}
	return &Service{
		plans:        store.GetPlansStorage(),
		intakeStore:  store.GetIntakesStorage(),
		intakes:      intakesService,
		maxRangeDays: maxRangeDays,
		presignTTL:   15 * time.Minute,
		logger:       log.Default(),
		now:          time.Now,
	}
}

// WithBlobStore uploads exports and returns presigned links instead of bytes.
func (s *Service) WithBlobStore(store blob.Store, ttl time.Duration) *Service {
	s.blobStore = store
	if ttl > 0 {
		s.presignTTL = ttl
	}
	return s
}

func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Build computes the report rows for [req.From, req.To].
func (s *Service) Build(ctx context.Context, req AdherenceRequest) (*Adherence, error) {
	if req.PatientID == uuid.Nil || req.PlanID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id and plan_id are required", ErrInvalidArgument)
	}
	from, to := cycle.Date(req.From), cycle.Date(req.To)
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}
	if cycle.DaysBetween(from, to)+1 > s.maxRangeDays {
		return nil, fmt.Errorf("%w: max %d days", ErrRangeTooLarge, s.maxRangeDays)
	}

	tree, err := s.plans.GetPlanTree(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if tree.Plan.PatientID != req.PatientID {
		return nil, ErrPlanNotFound
	}

	records, err := s.intakeStore.ListIntakes(ctx, req.PatientID, from, to)
	if err != nil {
		return nil, err
	}
	// day -> meal ids confirmed that day
	confirmed := make(map[string]map[uuid.UUID]bool)
	freeform := make(map[string]int)
	for _, rec := range records {
		key := cycle.FormatDate(rec.IntakeDay)
		switch {
		case rec.Origin == storage.OriginFromPlan && rec.MealID != nil:
			if confirmed[key] == nil {
				confirmed[key] = make(map[uuid.UUID]bool)
			}
			confirmed[key][*rec.MealID] = true
		case rec.Origin == storage.OriginFreeform:
			freeform[key]++
		}
	}

	report := &Adherence{
		PatientID: req.PatientID,
		PlanID:    tree.Plan.ID,
		PlanName:  tree.Plan.Name,
		From:      cycle.FormatDate(from),
		To:        cycle.FormatDate(to),
		Rows:      make([]DayRow, 0, cycle.DaysBetween(from, to)+1),
	}

	calories := decimal.Zero
	for day := from; !day.After(to); day = cycle.AddDays(day, 1) {
		key := cycle.FormatDate(day)
		row := DayRow{Date: key, Freeform: freeform[key]}

		if cycle.IsActive(tree.Plan.StartDate, tree.Plan.EndDate, day) {
			meals, dayIndex, err := mealplans.TodaysMeals(*tree, day)
			if err != nil {
				if errors.Is(err, mealplans.ErrNoPlanDayForIndex) {
					s.logger.Printf("ERROR reports: data integrity: %v", err)
				}
				return nil, err
			}
			row.DayIndex = dayIndex
			row.Planned = len(meals)
			row.CalorieTarget = tree.Plan.CalorieTarget
			for _, m := range meals {
				if confirmed[key][m.ID] {
					row.Confirmed++
				}
			}
		}

		daily, err := s.intakes.DailyTotals(ctx, req.PatientID, day)
		if err != nil {
			return nil, err
		}
		row.Consumed = daily.Totals
		calories = calories.Add(decimal.NewFromFloat(daily.Totals.Calories))

		report.Summary.Planned += row.Planned
		report.Summary.Confirmed += row.Confirmed
		report.Rows = append(report.Rows, row)
	}

	report.Summary.Days = len(report.Rows)
	if report.Summary.Planned > 0 {
		report.Summary.AdherencePct = decimal.NewFromInt(int64(report.Summary.Confirmed)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(report.Summary.Planned))).
			Round(1).InexactFloat64()
	}
	if report.Summary.Days > 0 {
		report.Summary.AvgCaloriesPerD = calories.Div(decimal.NewFromInt(int64(report.Summary.Days))).Round(2).InexactFloat64()
	}
	return report, nil
}

// Export renders the report and, with a blob store configured, uploads it.
func (s *Service) Export(ctx context.Context, req AdherenceRequest) (*Export, error) {
	var contentType string
	switch req.Format {
	case FormatCSV:
		contentType = "text/csv; charset=utf-8"
	case FormatPDF:
		contentType = "application/pdf"
	default:
		return nil, ErrInvalidFormat
	}

	report, err := s.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	var data []byte
	if req.Format == FormatCSV {
		data, err = RenderCSV(report)
	} else {
		data, err = RenderPDF(report)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate report: %w", err)
	}

	out := &Export{
		Format:      req.Format,
		Filename:    fmt.Sprintf("adherence_%s_%s.%s", report.From, report.To, req.Format),
		ContentType: contentType,
		SizeBytes:   len(data),
	}
	if s.blobStore == nil {
		out.Data = data
		return out, nil
	}

	key := fmt.Sprintf("reports/%s/%s/%s_%s_%s.%s", req.PatientID, req.PlanID, report.From, report.To, uuid.NewString(), req.Format)
	if err := s.blobStore.PutObject(ctx, key, data, contentType); err != nil {
		return nil, err
	}
	url, err := s.blobStore.PresignGet(ctx, key, s.presignTTL)
	if err != nil {
		return nil, err
	}
	expires := s.now().UTC().Add(s.presignTTL)
	out.URL = url
	out.ExpiresAt = &expires

	s.logger.Printf("INFO reports: uploaded key=%s size=%d", key, len(data))
	return out, nil
}
