// Package nutrients scales per-100g macro profiles and sums them.
//
// All arithmetic goes through decimal values and is rounded once, at the end,
// to two places (half-up), so the order of portions never changes a total.
package nutrients

import (
	"errors"
	"fmt"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownFood     = errors.New("unknown food")
)

const places = 2

var hundred = decimal.NewFromInt(100)

// Per100g — макросы продукта на 100 г
type Per100g struct {
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
}

// Portion is a macro profile together with the grams consumed.
type Portion struct {
	Per100g Per100g
	Grams   float64
}

type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// exact is the unrounded accumulator.
type exact struct {
	calories decimal.Decimal
	protein  decimal.Decimal
	carbs    decimal.Decimal
	fat      decimal.Decimal
}

func (e *exact) addPortion(p Portion) {
	g := decimal.NewFromFloat(p.Grams)
	e.calories = e.calories.Add(decimal.NewFromFloat(p.Per100g.Calories).Mul(g).Div(hundred))
	e.protein = e.protein.Add(decimal.NewFromFloat(p.Per100g.Protein).Mul(g).Div(hundred))
	e.carbs = e.carbs.Add(decimal.NewFromFloat(p.Per100g.Carbs).Mul(g).Div(hundred))
	e.fat = e.fat.Add(decimal.NewFromFloat(p.Per100g.Fat).Mul(g).Div(hundred))
}

func (e exact) round() Totals {
	return Totals{
		Calories: roundHalfUp(e.calories),
		Protein:  roundHalfUp(e.protein),
		Carbs:    roundHalfUp(e.carbs),
		Fat:      roundHalfUp(e.fat),
	}
}

// roundHalfUp: decimal.Round rounds half away from zero, which is half-up
// for the non-negative values produced here.
func roundHalfUp(d decimal.Decimal) float64 {
	return d.Round(places).InexactFloat64()
}

// Scale computes per100g * grams / 100 for every macro.
func Scale(per Per100g, grams float64) (Totals, error) {
	if grams < 0 {
		return Totals{}, fmt.Errorf("%w: grams must be >= 0, got %v", ErrInvalidArgument, grams)
	}
	var e exact
	e.addPortion(Portion{Per100g: per, Grams: grams})
	return e.round(), nil
}

// Aggregate sums Scale over the portions. An empty list yields zero totals.
func Aggregate(portions []Portion) (Totals, error) {
	var e exact
	for i, p := range portions {
		if p.Grams < 0 {
			return Totals{}, fmt.Errorf("%w: portion %d has negative grams", ErrInvalidArgument, i)
		}
		e.addPortion(p)
	}
	return e.round(), nil
}

// Add sums two already-rounded totals componentwise.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Calories: addRounded(t.Calories, o.Calories),
		Protein:  addRounded(t.Protein, o.Protein),
		Carbs:    addRounded(t.Carbs, o.Carbs),
		Fat:      addRounded(t.Fat, o.Fat),
	}
}

func addRounded(a, b float64) float64 {
	return roundHalfUp(decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)))
}

// IsZero reports whether every macro is zero.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// ProfileOf extracts the macro profile of a catalog food.
func ProfileOf(f storage.Food) Per100g {
	return Per100g{
		Calories: f.CaloriesPer100g,
		Protein:  f.ProteinPer100g,
		Carbs:    f.CarbsPer100g,
		Fat:      f.FatPer100g,
	}
}

// FromFoodPortions resolves stored portions against a food map.
func FromFoodPortions(portions []storage.FoodPortion, foods map[uuid.UUID]storage.Food) ([]Portion, error) {
	out := make([]Portion, 0, len(portions))
	for _, p := range portions {
		f, ok := foods[p.FoodID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFood, p.FoodID)
		}
		out = append(out, Portion{Per100g: ProfileOf(f), Grams: p.Grams})
	}
	return out, nil
}

// FoodIDs returns the distinct food ids referenced by the portion lists.
func FoodIDs(lists ...[]storage.FoodPortion) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	ids := []uuid.UUID{}
	for _, list := range lists {
		for _, p := range list {
			if _, ok := seen[p.FoodID]; ok {
				continue
			}
			seen[p.FoodID] = struct{}{}
			ids = append(ids, p.FoodID)
		}
	}
	return ids
}
