package memory

import (
	"time"

	"github.com/fdg312/nutrition-engine/internal/storage"
)

// MemoryStorage — in-memory реализация storage.Storage.
// Каждое подхранилище защищено собственным мьютексом.
type MemoryStorage struct {
	foods         *foodsStorage
	patients      *patientsStorage
	contracts     *contractsStorage
	plans         *plansStorage
	intakes       *IntakesMemoryStorage
	deliveries    *deliveriesStorage
	notifications *NotificationsMemoryStorage
}

// New создаёт пустой MemoryStorage
func New() *MemoryStorage {
	return &MemoryStorage{
		foods:         newFoodsStorage(),
		patients:      newPatientsStorage(),
		contracts:     newContractsStorage(),
		plans:         newPlansStorage(),
		intakes:       NewIntakesMemoryStorage(),
		deliveries:    newDeliveriesStorage(),
		notifications: NewNotificationsMemoryStorage(),
	}
}

func (m *MemoryStorage) GetFoodsStorage() storage.FoodsStorage {
	return m.foods
}

func (m *MemoryStorage) GetPatientsStorage() storage.PatientsStorage {
	return m.patients
}

func (m *MemoryStorage) GetContractsStorage() storage.ContractsStorage {
	return m.contracts
}

func (m *MemoryStorage) GetPlansStorage() storage.PlansStorage {
	return m.plans
}

func (m *MemoryStorage) GetIntakesStorage() storage.IntakesStorage {
	return m.intakes
}

func (m *MemoryStorage) GetDeliveriesStorage() storage.DeliveriesStorage {
	return m.deliveries
}

func (m *MemoryStorage) GetNotificationsStorage() storage.NotificationsStorage {
	return m.notifications
}

// Close — no-op для memory storage
func (m *MemoryStorage) Close() error {
	return nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
