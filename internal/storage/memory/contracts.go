package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type contractsStorage struct {
	mu                 sync.RWMutex
	contracts          map[uuid.UUID]storage.Contract
	calendars          map[uuid.UUID]storage.DeliveryCalendar
	calendarByContract map[uuid.UUID]uuid.UUID
	overrides          map[uuid.UUID]map[string]storage.AddressOverride // calendar_id -> date -> override
}

func newContractsStorage() *contractsStorage {
	return &contractsStorage{
		contracts:          make(map[uuid.UUID]storage.Contract),
		calendars:          make(map[uuid.UUID]storage.DeliveryCalendar),
		calendarByContract: make(map[uuid.UUID]uuid.UUID),
		overrides:          make(map[uuid.UUID]map[string]storage.AddressOverride),
	}
}

func (s *contractsStorage) CreateContract(ctx context.Context, c *storage.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.contracts[c.ID] = *c
	return nil
}

func (s *contractsStorage) GetContract(ctx context.Context, id uuid.UUID) (*storage.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *contractsStorage) CreateCalendar(ctx context.Context, cal *storage.DeliveryCalendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[cal.ContractID]; !ok {
		return storage.ErrNotFound
	}
	if _, exists := s.calendarByContract[cal.ContractID]; exists {
		return storage.ErrDuplicate
	}
	if cal.ID == uuid.Nil {
		cal.ID = uuid.New()
	}
	if cal.CreatedAt.IsZero() {
		cal.CreatedAt = time.Now().UTC()
	}

	s.calendars[cal.ID] = *cal
	s.calendarByContract[cal.ContractID] = cal.ID
	return nil
}

func (s *contractsStorage) GetCalendar(ctx context.Context, id uuid.UUID) (*storage.DeliveryCalendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cal, nil
}

func (s *contractsStorage) UpsertAddressOverride(ctx context.Context, o storage.AddressOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[o.CalendarID]; !ok {
		return storage.ErrNotFound
	}
	byDate, ok := s.overrides[o.CalendarID]
	if !ok {
		byDate = make(map[string]storage.AddressOverride)
		s.overrides[o.CalendarID] = byDate
	}
	byDate[dateKey(o.Date)] = o
	return nil
}

func (s *contractsStorage) ListAddressOverrides(ctx context.Context, calendarID uuid.UUID) ([]storage.AddressOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []storage.AddressOverride{}
	for _, o := range s.overrides[calendarID] {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}
