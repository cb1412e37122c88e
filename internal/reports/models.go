package reports

import (
	"errors"
	"time"

	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/google/uuid"
)

const (
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
	FormatJSON = "json"
)

var (
	ErrInvalidFormat    = errors.New("invalid format")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrRangeTooLarge    = errors.New("date range too large")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// AdherenceRequest asks for a plan's adherence over [From, To].
type AdherenceRequest struct {
	PatientID uuid.UUID
	PlanID    uuid.UUID
	From      time.Time
	To        time.Time
	Format    string
}

// DayRow is one calendar day of the report. DayIndex is 0 outside the plan range.
type DayRow struct {
	Date          string           `json:"date"`
	DayIndex      int              `json:"day_index"`
	Planned       int              `json:"planned_meals"`
	Confirmed     int              `json:"confirmed_meals"`
	Freeform      int              `json:"freeform_records"`
	Consumed      nutrients.Totals `json:"consumed"`
	CalorieTarget float64          `json:"calorie_target"`
}

type Summary struct {
	Days            int     `json:"days"`
	Planned         int     `json:"planned_meals"`
	Confirmed       int     `json:"confirmed_meals"`
	AdherencePct    float64 `json:"adherence_pct"`
	AvgCaloriesPerD float64 `json:"avg_calories_per_day"`
}

// Adherence is the report body shared by every output format.
type Adherence struct {
	PatientID uuid.UUID `json:"patient_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	PlanName  string    `json:"plan_name"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Rows      []DayRow  `json:"rows"`
	Summary   Summary   `json:"summary"`
}

// Export is a rendered report: either the bytes or a link to them.
type Export struct {
	Format      string     `json:"format"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int        `json:"size_bytes"`
	URL         string     `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Data        []byte     `json:"-"`
}
