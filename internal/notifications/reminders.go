package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

const EntityMealDay = "meal_day"

// ReminderResult — итог одного прохода напоминаний по плану.
type ReminderResult struct {
	PlanID   uuid.UUID `json:"plan_id"`
	Date     string    `json:"date"`
	DayIndex int       `json:"day_index"`
	Due      int       `json:"due"`
	Sent     int       `json:"sent"`
}

// Reminders nudges patients about meals whose time has passed unconfirmed.
type Reminders struct {
	plans      storage.PlansStorage
	intakes    storage.IntakesStorage
	patients   storage.PatientsStorage
	dispatcher *Dispatcher
	loc        *time.Location
	grace      time.Duration
	logger     Logger
}

func NewReminders(store storage.Storage, dispatcher *Dispatcher, loc *time.Location, grace time.Duration) *Reminders {
	if loc == nil {
		loc = time.UTC
	}
	return &Reminders{
		plans:      store.GetPlansStorage(),
		intakes:    store.GetIntakesStorage(),
		patients:   store.GetPatientsStorage(),
		dispatcher: dispatcher,
		loc:        loc,
		grace:      grace,
		logger:     log.Default(),
	}
}

func (r *Reminders) WithLogger(l Logger) *Reminders {
	if l != nil {
		r.logger = l
	}
	return r
}

// MealDayEntityID keys a reminder by meal and calendar day.
func MealDayEntityID(mealID uuid.UUID, day time.Time) string {
	return mealID.String() + ":" + cycle.FormatDate(day)
}

// RemindPendingMeals dispatches a meal_reminder for every meal of today whose
// recommended time plus grace has passed and which is not confirmed yet.
// Meals without a recommended time are never reminded. Repeated calls send
// nothing new.
func (r *Reminders) RemindPendingMeals(ctx context.Context, planID uuid.UUID, now time.Time) (*ReminderResult, error) {
	tree, err := r.plans.GetPlanTree(ctx, planID)
	if err != nil {
		return nil, err
	}

	loc := r.loc
	if p, err := r.patients.GetPatient(ctx, tree.Plan.PatientID); err == nil {
		loc = cycle.Location(p.TimeZone, r.loc)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	today := cycle.DateOf(now, loc)
	result := &ReminderResult{PlanID: planID, Date: cycle.FormatDate(today)}
	if tree.Plan.Status != storage.PlanStatusPublished || !cycle.IsActive(tree.Plan.StartDate, tree.Plan.EndDate, today) {
		return result, nil
	}

	meals, dayIndex, err := mealplans.TodaysMeals(*tree, today)
	if err != nil {
		if errors.Is(err, mealplans.ErrNoPlanDayForIndex) {
			r.logger.Printf("ERROR notifications: data integrity: %v", err)
		}
		return nil, err
	}
	result.DayIndex = dayIndex

	for _, m := range meals {
		due, ok := dueAt(m.RecommendedTime, today, loc)
		if !ok || now.Before(due.Add(r.grace)) {
			continue
		}
		confirmed, err := r.intakes.HasConfirmation(ctx, tree.Plan.PatientID, m.ID, today)
		if err != nil {
			return nil, err
		}
		if confirmed {
			continue
		}
		result.Due++

		sent, err := r.dispatcher.Dispatch(ctx, Message{
			Event: Event{
				EventType:   EventMealReminder,
				EntityID:    MealDayEntityID(m.ID, today),
				EntityType:  EntityMealDay,
				RecipientID: tree.Plan.PatientID.String(),
			},
			Subject: fmt.Sprintf("Time for your %s", m.MealType),
			Body:    fmt.Sprintf("Your %s was planned for %s. Confirm it once you have eaten.", m.MealType, m.RecommendedTime),
			Data: map[string]string{
				"plan_id": planID.String(),
				"meal_id": m.ID.String(),
				"date":    result.Date,
			},
		})
		if err != nil {
			return nil, err
		}
		if sent {
			result.Sent++
		}
	}

	r.logger.Printf("INFO notifications: reminders plan=%s date=%s due=%d sent=%d", planID, result.Date, result.Due, result.Sent)
	return result, nil
}

// dueAt places "HH:MM" on day in loc.
func dueAt(hhmm string, day time.Time, loc *time.Location) (time.Time, bool) {
	if hhmm == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), true
}
