// Package mealoptions manages the one or two food alternatives of a meal slot.
package mealoptions

import (
	"errors"
	"fmt"

	"github.com/fdg312/nutrition-engine/internal/nutrients"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

const (
	MaxOptions       = 2
	PrimaryLabel     = "Primary"
	AlternativeLabel = "Alternative"
)

var (
	ErrOptionLimitExceeded = errors.New("meal already has the maximum number of options")
	ErrLastOption          = errors.New("cannot remove the only option of a meal")
	ErrOptionNotFound      = errors.New("option not found")
	ErrInvalidOptions      = errors.New("invalid meal options")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// Set holds the options of one meal. Every mutation builds the next state on a
// copy and swaps it in only when it is valid.
type Set struct {
	options []storage.MealOption
}

// NewSet validates opts and takes a copy of them.
func NewSet(opts []storage.MealOption) (*Set, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}
	return &Set{options: storage.CloneOptions(opts)}, nil
}

// Validate checks: 1..2 options, indices 1..n in order, option 1 primary and
// the rest alternatives, no negative grams.
func Validate(opts []storage.MealOption) error {
	if len(opts) == 0 || len(opts) > MaxOptions {
		return fmt.Errorf("%w: expected 1..%d options, got %d", ErrInvalidOptions, MaxOptions, len(opts))
	}
	for i, o := range opts {
		if o.Index != i+1 {
			return fmt.Errorf("%w: option at position %d has index %d", ErrInvalidOptions, i+1, o.Index)
		}
		if o.IsAlternative != (i > 0) {
			return fmt.Errorf("%w: option %d has wrong alternative flag", ErrInvalidOptions, o.Index)
		}
		if err := validatePortions(o.Portions); err != nil {
			return fmt.Errorf("%w: option %d: %v", ErrInvalidOptions, o.Index, err)
		}
	}
	return nil
}

func validatePortions(portions []storage.FoodPortion) error {
	for i, p := range portions {
		if p.FoodID == uuid.Nil {
			return fmt.Errorf("portion %d: food_id is required", i)
		}
		if p.Grams < 0 {
			return fmt.Errorf("portion %d: grams must be >= 0", i)
		}
	}
	return nil
}

// Options returns a copy of the current options.
func (s *Set) Options() []storage.MealOption {
	return storage.CloneOptions(s.options)
}

func (s *Set) Len() int {
	return len(s.options)
}

func (s *Set) Get(index int) (storage.MealOption, error) {
	pos, err := s.position(index)
	if err != nil {
		return storage.MealOption{}, err
	}
	return s.options[pos].Clone(), nil
}

func (s *Set) position(index int) (int, error) {
	for i, o := range s.options {
		if o.Index == index {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d", ErrOptionNotFound, index)
}

// Add appends a new alternative built from portions.
func (s *Set) Add(label string, portions []storage.FoodPortion) (storage.MealOption, error) {
	if len(s.options) >= MaxOptions {
		return storage.MealOption{}, ErrOptionLimitExceeded
	}
	if err := validatePortions(portions); err != nil {
		return storage.MealOption{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if label == "" {
		label = AlternativeLabel
	}

	opt := storage.MealOption{
		Index:         len(s.options) + 1,
		IsAlternative: len(s.options) > 0,
		Label:         label,
		Portions:      append([]storage.FoodPortion(nil), portions...),
	}
	if !opt.IsAlternative && label == AlternativeLabel {
		opt.Label = PrimaryLabel
	}

	next := append(s.Options(), opt)
	if err := s.swap(next); err != nil {
		return storage.MealOption{}, err
	}
	return opt.Clone(), nil
}

// Duplicate copies an existing option as a new alternative.
func (s *Set) Duplicate(index int) (storage.MealOption, error) {
	src, err := s.Get(index)
	if err != nil {
		return storage.MealOption{}, err
	}
	if len(s.options) >= MaxOptions {
		return storage.MealOption{}, ErrOptionLimitExceeded
	}
	return s.Add(AlternativeLabel, src.Portions)
}

// Remove drops an option and renumbers the rest from 1; the first remaining
// option becomes the primary.
func (s *Set) Remove(index int) error {
	pos, err := s.position(index)
	if err != nil {
		return err
	}
	if len(s.options) == 1 {
		return ErrLastOption
	}

	next := make([]storage.MealOption, 0, len(s.options)-1)
	for i, o := range s.options {
		if i == pos {
			continue
		}
		next = append(next, o.Clone())
	}
	for i := range next {
		next[i].Index = i + 1
		next[i].IsAlternative = i > 0
	}
	next[0].Label = PrimaryLabel

	return s.swap(next)
}

func (s *Set) swap(next []storage.MealOption) error {
	if err := Validate(next); err != nil {
		return err
	}
	s.options = next
	return nil
}

// Totals aggregates the nutrients of one option.
func (s *Set) Totals(index int, foods map[uuid.UUID]storage.Food) (nutrients.Totals, error) {
	opt, err := s.Get(index)
	if err != nil {
		return nutrients.Totals{}, err
	}
	portions, err := nutrients.FromFoodPortions(opt.Portions, foods)
	if err != nil {
		return nutrients.Totals{}, err
	}
	return nutrients.Aggregate(portions)
}
