package deliveries

import (
	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

// GenerateResult summarises one expansion of a calendar. Pending counts the
// expanded tasks that had no address to bind.
type GenerateResult struct {
	CalendarID uuid.UUID `json:"calendar_id"`
	PlanID     uuid.UUID `json:"plan_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Days       int       `json:"days"`
	Created    int       `json:"created"`
	Existing   int       `json:"existing"`
	Pending    int       `json:"pending"`
}

type ConfirmRequest struct {
	AddressID *uuid.UUID `json:"address_id,omitempty"`
}

type TaskDTO struct {
	ID           uuid.UUID  `json:"id"`
	CalendarID   uuid.UUID  `json:"calendar_id"`
	AddressID    *uuid.UUID `json:"address_id,omitempty"`
	MealID       uuid.UUID  `json:"meal_id"`
	DeliveryDate string     `json:"delivery_date"`
	State        string     `json:"state"`
}

type TasksResponse struct {
	Tasks []TaskDTO `json:"tasks"`
}

func toDTO(t storage.DeliveryTask) TaskDTO {
	return TaskDTO{
		ID:           t.ID,
		CalendarID:   t.CalendarID,
		AddressID:    t.AddressID,
		MealID:       t.MealID,
		DeliveryDate: cycle.FormatDate(t.DeliveryDate),
		State:        t.State,
	}
}
