package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type deliveriesStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]storage.DeliveryTask
	keys  map[string]uuid.UUID // "calendar|date|meal" -> task id
}

func newDeliveriesStorage() *deliveriesStorage {
	return &deliveriesStorage{
		tasks: make(map[uuid.UUID]storage.DeliveryTask),
		keys:  make(map[string]uuid.UUID),
	}
}

func taskKey(calendarID uuid.UUID, date time.Time, mealID uuid.UUID) string {
	return calendarID.String() + "|" + dateKey(date) + "|" + mealID.String()
}

func (s *deliveriesStorage) CreateTasksIfAbsent(ctx context.Context, tasks []storage.DeliveryTask) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	created := 0
	for _, t := range tasks {
		key := taskKey(t.CalendarID, t.DeliveryDate, t.MealID)
		if _, exists := s.keys[key]; exists {
			continue
		}
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		s.tasks[t.ID] = cloneTask(t)
		s.keys[key] = t.ID
		created++
	}
	return created, nil
}

func (s *deliveriesStorage) GetTask(ctx context.Context, id uuid.UUID) (*storage.DeliveryTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := cloneTask(t)
	return &clone, nil
}

func (s *deliveriesStorage) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]storage.DeliveryTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make(map[string]bool, len(filter.States))
	for _, st := range filter.States {
		states[st] = true
	}

	result := []storage.DeliveryTask{}
	for _, t := range s.tasks {
		if filter.CalendarID != nil && t.CalendarID != *filter.CalendarID {
			continue
		}
		if len(states) > 0 && !states[t.State] {
			continue
		}
		if filter.From != nil && dateKey(t.DeliveryDate) < dateKey(*filter.From) {
			continue
		}
		if filter.To != nil && dateKey(t.DeliveryDate) > dateKey(*filter.To) {
			continue
		}
		result = append(result, cloneTask(t))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].DeliveryDate.Equal(result[j].DeliveryDate) {
			return result[i].DeliveryDate.Before(result[j].DeliveryDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *deliveriesStorage) UpdateTaskState(ctx context.Context, id uuid.UUID, from []string, to string, addressID *uuid.UUID) (*storage.DeliveryTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	allowed := false
	for _, f := range from {
		if t.State == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, storage.ErrStateConflict
	}

	t.State = to
	if addressID != nil {
		addr := *addressID
		t.AddressID = &addr
	}
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t

	clone := cloneTask(t)
	return &clone, nil
}

func cloneTask(t storage.DeliveryTask) storage.DeliveryTask {
	if t.AddressID != nil {
		addr := *t.AddressID
		t.AddressID = &addr
	}
	return t
}
