package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

type patientsStorage struct {
	mu        sync.RWMutex
	patients  map[uuid.UUID]storage.Patient
	addresses map[uuid.UUID]storage.DeliveryAddress
}

func newPatientsStorage() *patientsStorage {
	return &patientsStorage{
		patients:  make(map[uuid.UUID]storage.Patient),
		addresses: make(map[uuid.UUID]storage.DeliveryAddress),
	}
}

func (s *patientsStorage) CreatePatient(ctx context.Context, p *storage.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.patients[p.ID] = *p
	return nil
}

func (s *patientsStorage) GetPatient(ctx context.Context, id uuid.UUID) (*storage.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (s *patientsStorage) CreateAddress(ctx context.Context, addr *storage.DeliveryAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[addr.PatientID]; !ok {
		return storage.ErrNotFound
	}
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now().UTC()
	}

	// Only one primary address per patient
	if addr.IsPrimary {
		for id, existing := range s.addresses {
			if existing.PatientID == addr.PatientID && existing.IsPrimary {
				existing.IsPrimary = false
				s.addresses[id] = existing
			}
		}
	}

	s.addresses[addr.ID] = *addr
	return nil
}

func (s *patientsStorage) GetAddress(ctx context.Context, id uuid.UUID) (*storage.DeliveryAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addresses[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

func (s *patientsStorage) ListAddresses(ctx context.Context, patientID uuid.UUID) ([]storage.DeliveryAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []storage.DeliveryAddress{}
	for _, a := range s.addresses {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *patientsStorage) GetPrimaryAddress(ctx context.Context, patientID uuid.UUID) (*storage.DeliveryAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.addresses {
		if a.PatientID == patientID && a.IsPrimary {
			return &a, nil
		}
	}
	return nil, storage.ErrNotFound
}
