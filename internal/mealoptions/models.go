package mealoptions

import (
	"fmt"

	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type PortionInput struct {
	FoodID string  `json:"food_id"`
	Grams  float64 `json:"grams"`
}

type AddOptionRequest struct {
	Label    string         `json:"label"`
	Portions []PortionInput `json:"portions"`
}

func (r AddOptionRequest) toPortions() ([]storage.FoodPortion, error) {
	if len(r.Label) > 100 {
		return nil, fmt.Errorf("%w: label must be at most 100 characters", ErrInvalidArgument)
	}
	return ParsePortions(r.Portions)
}

// ParsePortions converts request portions into storage portions.
func ParsePortions(in []PortionInput) ([]storage.FoodPortion, error) {
	out := make([]storage.FoodPortion, 0, len(in))
	for i, p := range in {
		id, err := uuid.Parse(p.FoodID)
		if err != nil {
			return nil, fmt.Errorf("%w: portions[%d].food_id is not a valid uuid", ErrInvalidArgument, i)
		}
		if p.Grams < 0 {
			return nil, fmt.Errorf("%w: portions[%d].grams must be >= 0", ErrInvalidArgument, i)
		}
		out = append(out, storage.FoodPortion{FoodID: id, Grams: p.Grams})
	}
	return out, nil
}

type OptionsResponse struct {
	MealID  string               `json:"meal_id"`
	Options []storage.MealOption `json:"options"`
}

type OptionTotalsResponse struct {
	MealID      string           `json:"meal_id"`
	OptionIndex int              `json:"option_index"`
	Totals      nutrients.Totals `json:"totals"`
}
