package deliveries

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fdg312/nutrition-engine/internal/cycle"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/notifications"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoPlanForContract = errors.New("no nutrition plan for contract")
)

const (
	defaultMaxRangeDays = 366
	generateBatchSize   = 500
	defaultListLimit    = 500
)

type Logger interface {
	Printf(format string, v ...any)
}

// Notifier sends a message once per event key.
type Notifier interface {
	Dispatch(ctx context.Context, msg notifications.Message) (bool, error)
}

// Service expands delivery calendars into tasks and moves tasks through
// their states.
type Service struct {
	deliveries   storage.DeliveriesStorage
	contracts    storage.ContractsStorage
	plans        storage.PlansStorage
	patients     storage.PatientsStorage
	notifier     Notifier
	maxRangeDays int
	logger       Logger
}

func NewService(store storage.Storage, maxRangeDays int) *Service {
	if maxRangeDays <= 0 {
		maxRangeDays = defaultMaxRangeDays
	}
	return &Service{
		deliveries:   store.GetDeliveriesStorage(),
		contracts:    store.GetContractsStorage(),
		plans:        store.GetPlansStorage(),
		patients:     store.GetPatientsStorage(),
		maxRangeDays: maxRangeDays,
		logger:       log.Default(),
	}
}

// WithNotifier enables delivery_completed notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithLogger(l Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Generate creates one task per (date, meal) over the calendar range
// intersected with the plan range. Existing keys are left untouched, so
// repeated or concurrent runs converge on the same set of tasks.
func (s *Service) Generate(ctx context.Context, calendarID uuid.UUID) (*GenerateResult, error) {
	cal, err := s.contracts.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contracts.GetContract(ctx, cal.ContractID)
	if err != nil {
		return nil, err
	}

	calStart, calEnd := cycle.Date(cal.StartDate), cycle.Date(cal.EndDate)
	if calEnd.Before(calStart) {
		return nil, fmt.Errorf("%w: calendar ends before it starts", ErrInvalidArgument)
	}
	if calStart.Before(cycle.Date(contract.StartDate)) || calEnd.After(cycle.Date(contract.EndDate)) {
		return nil, fmt.Errorf("%w: calendar %s..%s is wider than contract %s..%s", ErrInvalidArgument,
			cycle.FormatDate(calStart), cycle.FormatDate(calEnd),
			cycle.FormatDate(contract.StartDate), cycle.FormatDate(contract.EndDate))
	}
	if days := cycle.DaysBetween(calStart, calEnd) + 1; days > s.maxRangeDays {
		return nil, fmt.Errorf("%w: calendar spans %d days, max %d", ErrInvalidArgument, days, s.maxRangeDays)
	}

	plan, err := s.plans.GetPlanByContract(ctx, contract.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoPlanForContract
		}
		return nil, err
	}
	// only published plans have passed ValidateAuthoring
	if plan.Status != storage.PlanStatusPublished {
		return nil, fmt.Errorf("%w: plan %s is %s, not published", ErrInvalidArgument, plan.ID, plan.Status)
	}
	tree, err := s.plans.GetPlanTree(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{CalendarID: cal.ID, PlanID: plan.ID}
	from, to, ok := cycle.Overlap(calStart, calEnd, tree.Plan.StartDate, tree.Plan.EndDate)
	if !ok {
		s.logger.Printf("WARN deliveries: calendar=%s does not overlap plan=%s", cal.ID, plan.ID)
		return result, nil
	}
	result.From, result.To = cycle.FormatDate(from), cycle.FormatDate(to)

	overrides, err := s.overridesByDate(ctx, cal.ID)
	if err != nil {
		return nil, err
	}
	primary, err := s.primaryAddress(ctx, contract.PatientID)
	if err != nil {
		return nil, err
	}

	var tasks []storage.DeliveryTask
	for day := from; !day.After(to); day = cycle.AddDays(day, 1) {
		meals, _, err := mealplans.TodaysMeals(*tree, day)
		if err != nil {
			if errors.Is(err, mealplans.ErrNoPlanDayForIndex) {
				s.logger.Printf("ERROR deliveries: data integrity: %v", err)
			}
			return nil, err
		}
		result.Days++

		addr := primary
		if o, ok := overrides[cycle.FormatDate(day)]; ok {
			addr = &o
		}
		for _, m := range meals {
			t := storage.DeliveryTask{
				CalendarID:   cal.ID,
				MealID:       m.ID,
				DeliveryDate: day,
				State:        StateScheduled,
			}
			if addr == nil {
				t.State = StatePending
				result.Pending++
			} else {
				id := *addr
				t.AddressID = &id
			}
			tasks = append(tasks, t)
		}
	}

	for start := 0; start < len(tasks); start += generateBatchSize {
		end := start + generateBatchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		n, err := s.deliveries.CreateTasksIfAbsent(ctx, tasks[start:end])
		if err != nil {
			return nil, err
		}
		result.Created += n
	}
	result.Existing = len(tasks) - result.Created

	s.logger.Printf("INFO deliveries: generated calendar=%s plan=%s from=%s to=%s created=%d existing=%d",
		cal.ID, plan.ID, result.From, result.To, result.Created, result.Existing)
	return result, nil
}

func (s *Service) overridesByDate(ctx context.Context, calendarID uuid.UUID) (map[string]uuid.UUID, error) {
	list, err := s.contracts.ListAddressOverrides(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uuid.UUID, len(list))
	for _, o := range list {
		out[cycle.FormatDate(o.Date)] = o.AddressID
	}
	return out, nil
}

// primaryAddress returns nil when the patient has none.
func (s *Service) primaryAddress(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, error) {
	addr, err := s.patients.GetPrimaryAddress(ctx, patientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &addr.ID, nil
}

// MarkDelivered moves PROGRAMADA to ENTREGADA and notifies the patient.
func (s *Service) MarkDelivered(ctx context.Context, taskID uuid.UUID) (*TaskDTO, error) {
	task, err := s.transition(ctx, taskID, StateDelivered, nil)
	if err != nil {
		return nil, err
	}
	s.notifyDelivered(ctx, *task)
	dto := toDTO(*task)
	return &dto, nil
}

// MarkSkipped moves PROGRAMADA to OMITIDA.
func (s *Service) MarkSkipped(ctx context.Context, taskID uuid.UUID) (*TaskDTO, error) {
	task, err := s.transition(ctx, taskID, StateSkipped, nil)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*task)
	return &dto, nil
}

// Confirm moves PENDIENTE to PROGRAMADA. The task needs an address: the one
// given, the one it already has, or the patient's primary address.
func (s *Service) Confirm(ctx context.Context, taskID uuid.UUID, addressID *uuid.UUID) (*TaskDTO, error) {
	current, err := s.deliveries.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.State, StateScheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.State, StateScheduled)
	}

	patientID, err := s.patientOf(ctx, current.CalendarID)
	if err != nil {
		return nil, err
	}

	switch {
	case addressID != nil:
		addr, err := s.patients.GetAddress(ctx, *addressID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: address %s not found", ErrInvalidArgument, *addressID)
			}
			return nil, err
		}
		if addr.PatientID != patientID {
			return nil, fmt.Errorf("%w: address belongs to another patient", ErrInvalidArgument)
		}
	case current.AddressID == nil:
		addressID, err = s.primaryAddress(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if addressID == nil {
			return nil, fmt.Errorf("%w: address_id is required, patient has no primary address", ErrInvalidArgument)
		}
	}

	task, err := s.transition(ctx, taskID, StateScheduled, addressID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*task)
	return &dto, nil
}

// transition relies on the conditional update in storage; the state read
// before it is only used for the error message.
func (s *Service) transition(ctx context.Context, taskID uuid.UUID, to string, addressID *uuid.UUID) (*storage.DeliveryTask, error) {
	task, err := s.deliveries.UpdateTaskState(ctx, taskID, sourcesOf(to), to, addressID)
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return nil, fmt.Errorf("%w: cannot move task %s to %s", ErrInvalidTransition, taskID, to)
		}
		return nil, err
	}
	s.logger.Printf("INFO deliveries: task=%s state=%s", task.ID, task.State)
	return task, nil
}

func (s *Service) patientOf(ctx context.Context, calendarID uuid.UUID) (uuid.UUID, error) {
	cal, err := s.contracts.GetCalendar(ctx, calendarID)
	if err != nil {
		return uuid.Nil, err
	}
	c, err := s.contracts.GetContract(ctx, cal.ContractID)
	if err != nil {
		return uuid.Nil, err
	}
	return c.PatientID, nil
}

// notifyDelivered never fails the transition; it only logs.
func (s *Service) notifyDelivered(ctx context.Context, task storage.DeliveryTask) {
	if s.notifier == nil {
		return
	}
	patientID, err := s.patientOf(ctx, task.CalendarID)
	if err != nil {
		s.logger.Printf("WARN deliveries: cannot resolve patient for task=%s: %v", task.ID, err)
		return
	}
	date := cycle.FormatDate(task.DeliveryDate)
	_, err = s.notifier.Dispatch(ctx, notifications.Message{
		Event: notifications.Event{
			EventType:   notifications.EventDeliveryCompleted,
			EntityID:    task.ID.String(),
			EntityType:  "delivery_task",
			RecipientID: patientID.String(),
		},
		Subject: "Your meal was delivered",
		Body:    fmt.Sprintf("The delivery planned for %s has arrived.", date),
		Data: map[string]string{
			"task_id": task.ID.String(),
			"meal_id": task.MealID.String(),
			"date":    date,
		},
	})
	if err != nil {
		s.logger.Printf("WARN deliveries: notify task=%s: %v", task.ID, err)
	}
}

// TaskQuery is ListTasks' input; zero values mean no filter.
type TaskQuery struct {
	CalendarID *uuid.UUID
	State      string
	From       *time.Time
	To         *time.Time
	Limit      int
}

func (s *Service) ListTasks(ctx context.Context, q TaskQuery) (*TasksResponse, error) {
	filter := storage.TaskFilter{CalendarID: q.CalendarID, From: q.From, To: q.To, Limit: q.Limit}
	if q.State != "" {
		if !ValidState(q.State) {
			return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, q.State)
		}
		filter.States = []string{q.State}
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidArgument)
	}
	if filter.Limit <= 0 || filter.Limit > defaultListLimit {
		filter.Limit = defaultListLimit
	}

	tasks, err := s.deliveries.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &TasksResponse{Tasks: make([]TaskDTO, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, toDTO(t))
	}
	return resp, nil
}
