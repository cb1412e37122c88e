package intakes

import (
	"time"

	"github.com/fdg312/nutrition-engine/internal/mealoptions"
	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

// ConfirmMealRequest confirms a scheduled meal. OptionIndex 0 means the primary option.
type ConfirmMealRequest struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	MealID      uuid.UUID  `json:"meal_id"`
	OptionIndex int        `json:"option_index"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
	Notes       string     `json:"notes"`
}

type FreeformRequest struct {
	PatientID uuid.UUID                  `json:"patient_id"`
	Portions  []mealoptions.PortionInput `json:"portions"`
	TakenAt   *time.Time                 `json:"taken_at,omitempty"`
	Notes     string                     `json:"notes"`
}

type IntakeDTO struct {
	ID          uuid.UUID             `json:"id"`
	PatientID   uuid.UUID             `json:"patient_id"`
	TakenAt     time.Time             `json:"taken_at"`
	IntakeDay   string                `json:"intake_day"`
	Origin      string                `json:"origin"`
	MealID      *uuid.UUID            `json:"meal_id,omitempty"`
	OptionIndex *int                  `json:"option_index,omitempty"`
	Portions    []storage.FoodPortion `json:"portions"`
	Notes       string                `json:"notes,omitempty"`
	Totals      nutrients.Totals      `json:"totals"`
	CreatedAt   time.Time             `json:"created_at"`
}

type IntakesResponse struct {
	Date    string      `json:"date"`
	Intakes []IntakeDTO `json:"intakes"`
}

type IntakeTotalsResponse struct {
	IntakeID uuid.UUID        `json:"intake_id"`
	Totals   nutrients.Totals `json:"totals"`
}

// DailyTotalsResponse sums every record of the day once; ByOrigin splits the
// same records by origin.
type DailyTotalsResponse struct {
	PatientID uuid.UUID                   `json:"patient_id"`
	Date      string                      `json:"date"`
	Records   int                         `json:"records"`
	Totals    nutrients.Totals            `json:"totals"`
	ByOrigin  map[string]nutrients.Totals `json:"by_origin"`
}
