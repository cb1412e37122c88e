package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound возвращается, когда запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrDuplicate сигнализирует о нарушении уникального ключа (проигранная гонка на вставке)
	ErrDuplicate = errors.New("duplicate key")
	// ErrStateConflict возвращается условным UPDATE, когда текущее состояние не совпало
	ErrStateConflict = errors.New("state conflict")
)

// Storage — корневой интерфейс хранилища (memory или postgres)
type Storage interface {
	GetFoodsStorage() FoodsStorage
	GetPatientsStorage() PatientsStorage
	GetContractsStorage() ContractsStorage
	GetPlansStorage() PlansStorage
	GetIntakesStorage() IntakesStorage
	GetDeliveriesStorage() DeliveriesStorage
	GetNotificationsStorage() NotificationsStorage

	// Close закрывает соединение (для Postgres)
	Close() error
}

// Food — справочник продуктов, макросы на 100 г
type Food struct {
	ID              uuid.UUID
	Name            string
	Category        string
	CaloriesPer100g float64
	ProteinPer100g  float64
	CarbsPer100g    float64
	FatPer100g      float64
	Restrictions    []string
	CreatedAt       time.Time
}

// FoodPortion is owned by a meal option or an intake record; stored as JSON.
type FoodPortion struct {
	FoodID uuid.UUID `json:"food_id"`
	Grams  float64   `json:"grams"`
}

// MealOption — вариант блюда для слота приёма пищи (1 основной, 2 альтернативный)
type MealOption struct {
	Index         int           `json:"index"`
	IsAlternative bool          `json:"is_alternative"`
	Label         string        `json:"label"`
	Portions      []FoodPortion `json:"portions"`
}

// Clone returns a deep copy of the option.
func (o MealOption) Clone() MealOption {
	o.Portions = append([]FoodPortion(nil), o.Portions...)
	return o
}

// CloneOptions deep-copies a list of options.
func CloneOptions(opts []MealOption) []MealOption {
	if opts == nil {
		return nil
	}
	out := make([]MealOption, len(opts))
	for i, o := range opts {
		out[i] = o.Clone()
	}
	return out
}

// Meal types
const (
	MealTypeBreakfast = "breakfast"
	MealTypeLunch     = "lunch"
	MealTypeDinner    = "dinner"
	MealTypeSnack     = "snack"
)

type Meal struct {
	ID              uuid.UUID
	PlanDayID       uuid.UUID
	MealType        string
	RecommendedTime string // HH:MM
	Instructions    string
	SortOrder       int
	Options         []MealOption
}

// Clone returns a deep copy of the meal.
func (m Meal) Clone() Meal {
	m.Options = CloneOptions(m.Options)
	return m
}

type PlanDay struct {
	ID       uuid.UUID
	PlanID   uuid.UUID
	DayIndex int
	Meals    []Meal
}

// Plan statuses
const (
	PlanStatusDraft     = "draft"
	PlanStatusPublished = "published"
	PlanStatusArchived  = "archived"
)

// Professional kinds
const (
	ProfessionalNutritionist = "nutritionist"
	ProfessionalPsychologist = "psychologist"
)

// ProfessionalRef is a tagged reference to a nutritionist or a psychologist.
type ProfessionalRef struct {
	Kind string
	ID   uuid.UUID
}

type NutritionPlan struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	Author        ProfessionalRef
	ContractID    *uuid.UUID
	Name          string
	Objective     string
	CalorieTarget float64
	StartDate     time.Time
	EndDate       time.Time
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PlanTree — план целиком: дни, приёмы пищи и варианты
type PlanTree struct {
	Plan NutritionPlan
	Days []PlanDay
}

// Clone returns a deep copy of the whole tree.
func (t PlanTree) Clone() PlanTree {
	out := PlanTree{Plan: t.Plan}
	if t.Plan.ContractID != nil {
		id := *t.Plan.ContractID
		out.Plan.ContractID = &id
	}
	out.Days = make([]PlanDay, len(t.Days))
	for i, d := range t.Days {
		day := d
		day.Meals = make([]Meal, len(d.Meals))
		for j, m := range d.Meals {
			day.Meals[j] = m.Clone()
		}
		out.Days[i] = day
	}
	return out
}

// CycleLength is the number of distinct authored day indices.
func (t PlanTree) CycleLength() int {
	seen := make(map[int]struct{}, len(t.Days))
	for _, d := range t.Days {
		seen[d.DayIndex] = struct{}{}
	}
	return len(seen)
}

// MealContext locates a meal inside its plan.
type MealContext struct {
	Meal     Meal
	DayIndex int
	Plan     NutritionPlan
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	TimeZone  string // IANA, empty means service default
	CreatedAt time.Time
}

type DeliveryAddress struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Label     string
	Line1     string
	City      string
	IsPrimary bool
	CreatedAt time.Time
}

type Contract struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	ServiceType string
	StartDate   time.Time
	EndDate     time.Time
	CreatedAt   time.Time
}

type DeliveryCalendar struct {
	ID         uuid.UUID
	ContractID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	CreatedAt  time.Time
}

type AddressOverride struct {
	CalendarID uuid.UUID
	Date       time.Time
	AddressID  uuid.UUID
}

// Intake origins
const (
	OriginFromPlan = "FROM_PLAN"
	OriginFreeform = "FREEFORM"
)

// IntakeRecord — факт приёма пищи пациентом
type IntakeRecord struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	TakenAt     time.Time
	IntakeDay   time.Time // calendar day of TakenAt in patient's zone
	Origin      string
	MealID      *uuid.UUID
	OptionIndex *int
	Portions    []FoodPortion
	Notes       string
	CreatedAt   time.Time
}

// DeliveryTask — одна доставка на дату по адресу
type DeliveryTask struct {
	ID           uuid.UUID
	CalendarID   uuid.UUID
	AddressID    *uuid.UUID
	MealID       uuid.UUID
	DeliveryDate time.Time
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type TaskFilter struct {
	CalendarID *uuid.UUID
	States     []string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// NotificationEntry — запись журнала отправленных уведомлений
type NotificationEntry struct {
	EventType   string
	EntityID    string
	EntityType  string
	RecipientID string
	SentAt      time.Time
}

// FoodsStorage — справочник продуктов
type FoodsStorage interface {
	CreateFood(ctx context.Context, food *Food) error
	GetFood(ctx context.Context, id uuid.UUID) (*Food, error)
	// GetFoods returns the subset of ids that exist.
	GetFoods(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Food, error)
	ListFoods(ctx context.Context, limit, offset int) ([]Food, error)
}

// PatientsStorage — пациенты и адреса доставки
type PatientsStorage interface {
	CreatePatient(ctx context.Context, patient *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	// CreateAddress сохраняет адрес; IsPrimary снимает флаг с остальных адресов пациента
	CreateAddress(ctx context.Context, addr *DeliveryAddress) error
	GetAddress(ctx context.Context, id uuid.UUID) (*DeliveryAddress, error)
	ListAddresses(ctx context.Context, patientID uuid.UUID) ([]DeliveryAddress, error)
	// GetPrimaryAddress returns ErrNotFound when the patient has no primary address.
	GetPrimaryAddress(ctx context.Context, patientID uuid.UUID) (*DeliveryAddress, error)
}

// ContractsStorage — контракты и календари доставки
type ContractsStorage interface {
	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id uuid.UUID) (*Contract, error)

	// CreateCalendar возвращает ErrDuplicate, если у контракта уже есть календарь
	CreateCalendar(ctx context.Context, cal *DeliveryCalendar) error
	GetCalendar(ctx context.Context, id uuid.UUID) (*DeliveryCalendar, error)

	UpsertAddressOverride(ctx context.Context, o AddressOverride) error
	ListAddressOverrides(ctx context.Context, calendarID uuid.UUID) ([]AddressOverride, error)
}

// PlansStorage — планы питания целиком (дерево план → дни → приёмы → варианты)
type PlansStorage interface {
	// CreatePlanTree сохраняет план и всё дерево в одной транзакции, проставляя ID
	CreatePlanTree(ctx context.Context, tree *PlanTree) error
	GetPlan(ctx context.Context, id uuid.UUID) (*NutritionPlan, error)
	GetPlanTree(ctx context.Context, id uuid.UUID) (*PlanTree, error)
	// GetPlanByContract returns the most recent plan bound to the contract.
	GetPlanByContract(ctx context.Context, contractID uuid.UUID) (*NutritionPlan, error)
	ListPlansByPatient(ctx context.Context, patientID uuid.UUID) ([]NutritionPlan, error)
	UpdatePlanStatus(ctx context.Context, id uuid.UUID, status string) error

	GetMealContext(ctx context.Context, mealID uuid.UUID) (*MealContext, error)
	// UpdateMealOptions runs fn against the current options of the meal and
	// persists its result atomically. If fn fails nothing is written.
	UpdateMealOptions(ctx context.Context, mealID uuid.UUID, fn func([]MealOption) ([]MealOption, error)) ([]MealOption, error)
}

// IntakesStorage — записи приёма пищи
type IntakesStorage interface {
	// CreateIntake returns ErrDuplicate when a FROM_PLAN record for the same
	// (patient, meal, intake day) already exists.
	CreateIntake(ctx context.Context, rec *IntakeRecord) error
	HasConfirmation(ctx context.Context, patientID, mealID uuid.UUID, day time.Time) (bool, error)
	GetIntake(ctx context.Context, id uuid.UUID) (*IntakeRecord, error)
	ListIntakes(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]IntakeRecord, error)
	DeleteIntake(ctx context.Context, id uuid.UUID) error
}

// DeliveriesStorage — задачи доставки
type DeliveriesStorage interface {
	// CreateTasksIfAbsent inserts tasks keyed by (calendar, date, meal) and
	// skips keys that already exist. Returns the number actually inserted.
	CreateTasksIfAbsent(ctx context.Context, tasks []DeliveryTask) (int, error)
	GetTask(ctx context.Context, id uuid.UUID) (*DeliveryTask, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]DeliveryTask, error)
	// UpdateTaskState moves the task to `to` only while its state is one of
	// `from`. Returns ErrStateConflict otherwise, ErrNotFound if absent.
	// A non-nil addressID replaces the bound address in the same update.
	UpdateTaskState(ctx context.Context, id uuid.UUID, from []string, to string, addressID *uuid.UUID) (*DeliveryTask, error)
}

// NotificationsStorage — журнал дедупликации уведомлений
type NotificationsStorage interface {
	// InsertIfAbsent atomically records the entry; false when the 4-tuple exists.
	InsertIfAbsent(ctx context.Context, entry NotificationEntry) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
