package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

// IntakesMemoryStorage — in-memory записи приёма пищи.
// Ключ подтверждения (patient, meal, day) проверяется и вставляется под одним мьютексом.
type IntakesMemoryStorage struct {
	mu            sync.RWMutex
	records       map[uuid.UUID]storage.IntakeRecord
	confirmations map[string]uuid.UUID // "patient|meal|day" -> record id
}

func NewIntakesMemoryStorage() *IntakesMemoryStorage {
	return &IntakesMemoryStorage{
		records:       make(map[uuid.UUID]storage.IntakeRecord),
		confirmations: make(map[string]uuid.UUID),
	}
}

func confirmationKey(patientID, mealID uuid.UUID, day time.Time) string {
	return patientID.String() + "|" + mealID.String() + "|" + dateKey(day)
}

func (s *IntakesMemoryStorage) CreateIntake(ctx context.Context, rec *storage.IntakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	if rec.Origin == storage.OriginFromPlan && rec.MealID != nil {
		key = confirmationKey(rec.PatientID, *rec.MealID, rec.IntakeDay)
		if _, exists := s.confirmations[key]; exists {
			return storage.ErrDuplicate
		}
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.records[rec.ID] = cloneIntake(*rec)
	if key != "" {
		s.confirmations[key] = rec.ID
	}
	return nil
}

func (s *IntakesMemoryStorage) HasConfirmation(ctx context.Context, patientID, mealID uuid.UUID, day time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.confirmations[confirmationKey(patientID, mealID, day)]
	return exists, nil
}

func (s *IntakesMemoryStorage) GetIntake(ctx context.Context, id uuid.UUID) (*storage.IntakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := cloneIntake(rec)
	return &clone, nil
}

// ListIntakes returns records whose intake day is in [from, to], oldest first.
func (s *IntakesMemoryStorage) ListIntakes(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]storage.IntakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromKey, toKey := dateKey(from), dateKey(to)
	result := []storage.IntakeRecord{}
	for _, rec := range s.records {
		if rec.PatientID != patientID {
			continue
		}
		day := dateKey(rec.IntakeDay)
		if day < fromKey || day > toKey {
			continue
		}
		result = append(result, cloneIntake(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].TakenAt.Equal(result[j].TakenAt) {
			return result[i].TakenAt.Before(result[j].TakenAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *IntakesMemoryStorage) DeleteIntake(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.Origin == storage.OriginFromPlan && rec.MealID != nil {
		delete(s.confirmations, confirmationKey(rec.PatientID, *rec.MealID, rec.IntakeDay))
	}
	delete(s.records, id)
	return nil
}

func cloneIntake(rec storage.IntakeRecord) storage.IntakeRecord {
	rec.Portions = append([]storage.FoodPortion(nil), rec.Portions...)
	if rec.MealID != nil {
		id := *rec.MealID
		rec.MealID = &id
	}
	if rec.OptionIndex != nil {
		idx := *rec.OptionIndex
		rec.OptionIndex = &idx
	}
	return rec
}
