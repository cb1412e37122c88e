package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type foodsStorage struct {
	mu    sync.RWMutex
	foods map[uuid.UUID]storage.Food
}

func newFoodsStorage() *foodsStorage {
	return &foodsStorage{foods: make(map[uuid.UUID]storage.Food)}
}

func (s *foodsStorage) CreateFood(ctx context.Context, food *storage.Food) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if food.ID == uuid.Nil {
		food.ID = uuid.New()
	}
	if food.CreatedAt.IsZero() {
		food.CreatedAt = time.Now().UTC()
	}

	clone := *food
	clone.Restrictions = append([]string(nil), food.Restrictions...)
	s.foods[clone.ID] = clone
	return nil
}

func (s *foodsStorage) GetFood(ctx context.Context, id uuid.UUID) (*storage.Food, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.foods[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &f, nil
}

func (s *foodsStorage) GetFoods(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]storage.Food, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]storage.Food, len(ids))
	for _, id := range ids {
		if f, ok := s.foods[id]; ok {
			result[id] = f
		}
	}
	return result, nil
}

func (s *foodsStorage) ListFoods(ctx context.Context, limit, offset int) ([]storage.Food, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]storage.Food, 0, len(s.foods))
	for _, f := range s.foods {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	return paginate(all, limit, offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
