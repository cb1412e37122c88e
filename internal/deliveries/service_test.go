package deliveries

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/nutrition-engine/internal/notifications"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/fdg312/nutrition-engine/internal/storage/memory"
	"github.com/google/uuid"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifications.Message
}

func (n *recordingNotifier) Dispatch(ctx context.Context, msg notifications.Message) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true, nil
}

type env struct {
	store    *memory.MemoryStorage
	service  *Service
	patient  storage.Patient
	home     storage.DeliveryAddress
	office   storage.DeliveryAddress
	contract storage.Contract
	calendar storage.DeliveryCalendar
	tree     *storage.PlanTree
}

type envOptions struct {
	noPrimary bool
	planEnd   time.Time
	calStart  time.Time
	calEnd    time.Time
}

// newEnv: contract for January 2024, calendar 2024-01-08..14, 7-day plan
// from 2024-01-01 with lunch and dinner every day.
func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	e := &env{store: store}

	e.patient = storage.Patient{Name: "Ana"}
	store.GetPatientsStorage().CreatePatient(ctx, &e.patient)

	e.home = storage.DeliveryAddress{PatientID: e.patient.ID, Label: "home", Line1: "Calle 1", City: "Bogota", IsPrimary: !opts.noPrimary}
	e.office = storage.DeliveryAddress{PatientID: e.patient.ID, Label: "office", Line1: "Carrera 7", City: "Bogota"}
	for _, a := range []*storage.DeliveryAddress{&e.home, &e.office} {
		if err := store.GetPatientsStorage().CreateAddress(ctx, a); err != nil {
			t.Fatalf("create address: %v", err)
		}
	}

	e.contract = storage.Contract{PatientID: e.patient.ID, ServiceType: "catering", StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 31)}
	store.GetContractsStorage().CreateContract(ctx, &e.contract)

	e.calendar = storage.DeliveryCalendar{ContractID: e.contract.ID, StartDate: day(2024, 1, 8), EndDate: day(2024, 1, 14)}
	if !opts.calStart.IsZero() {
		e.calendar.StartDate = opts.calStart
	}
	if !opts.calEnd.IsZero() {
		e.calendar.EndDate = opts.calEnd
	}
	if err := store.GetContractsStorage().CreateCalendar(ctx, &e.calendar); err != nil {
		t.Fatalf("create calendar: %v", err)
	}

	food := storage.Food{Name: "Rice", CaloriesPer100g: 130}
	store.GetFoodsStorage().CreateFood(ctx, &food)
	opt := []storage.MealOption{{Index: 1, Label: "Primary", Portions: []storage.FoodPortion{{FoodID: food.ID, Grams: 200}}}}

	contractID := e.contract.ID
	planEnd := day(2024, 3, 31)
	if !opts.planEnd.IsZero() {
		planEnd = opts.planEnd
	}
	e.tree = &storage.PlanTree{Plan: storage.NutritionPlan{
		PatientID:  e.patient.ID,
		Author:     storage.ProfessionalRef{Kind: storage.ProfessionalNutritionist, ID: uuid.New()},
		ContractID: &contractID,
		Name:       "Catering",
		StartDate:  day(2024, 1, 1),
		EndDate:    planEnd,
		Status:     storage.PlanStatusPublished,
	}}
	for i := 1; i <= 7; i++ {
		e.tree.Days = append(e.tree.Days, storage.PlanDay{DayIndex: i, Meals: []storage.Meal{
			{MealType: storage.MealTypeLunch, SortOrder: 1, Options: opt},
			{MealType: storage.MealTypeDinner, SortOrder: 2, Options: opt},
		}})
	}
	if err := store.GetPlansStorage().CreatePlanTree(ctx, e.tree); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	e.service = NewService(store, 366).WithLogger(log.New(io.Discard, "", 0))
	return e
}

func (e *env) tasks(t *testing.T, state string) []TaskDTO {
	t.Helper()
	resp, err := e.service.ListTasks(context.Background(), TaskQuery{CalendarID: &e.calendar.ID, State: state})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	return resp.Tasks
}

func TestGenerate_ExpandsCalendar(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()
	if err := e.store.GetContractsStorage().UpsertAddressOverride(ctx, storage.AddressOverride{
		CalendarID: e.calendar.ID, Date: day(2024, 1, 10), AddressID: e.office.ID,
	}); err != nil {
		t.Fatalf("override: %v", err)
	}

	res, err := e.service.Generate(ctx, e.calendar.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Days != 7 || res.Created != 14 || res.Existing != 0 || res.Pending != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.From != "2024-01-08" || res.To != "2024-01-14" {
		t.Fatalf("unexpected range %s..%s", res.From, res.To)
	}

	tasks := e.tasks(t, "")
	if len(tasks) != 14 {
		t.Fatalf("expected 14 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.State != StateScheduled {
			t.Fatalf("fresh task in state %s", task.State)
		}
		want := e.home.ID
		if task.DeliveryDate == "2024-01-10" {
			want = e.office.ID
		}
		if task.AddressID == nil || *task.AddressID != want {
			t.Fatalf("task on %s bound to %v, want %s", task.DeliveryDate, task.AddressID, want)
		}
	}

	// 2024-01-10 is plan day 3; its tasks carry day 3's meals
	day3 := map[uuid.UUID]bool{}
	for _, m := range e.tree.Days[2].Meals {
		day3[m.ID] = true
	}
	for _, task := range tasks {
		if task.DeliveryDate == "2024-01-10" && !day3[task.MealID] {
			t.Fatalf("task on 2024-01-10 has meal %s outside day 3", task.MealID)
		}
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()

	if _, err := e.service.Generate(ctx, e.calendar.ID); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	first := e.tasks(t, "")

	res, err := e.service.Generate(ctx, e.calendar.ID)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if res.Created != 0 || res.Existing != 14 {
		t.Fatalf("second run created %d, existing %d", res.Created, res.Existing)
	}

	second := e.tasks(t, "")
	if len(second) != len(first) {
		t.Fatalf("task count changed: %d -> %d", len(first), len(second))
	}
	ids := map[uuid.UUID]bool{}
	for _, task := range first {
		ids[task.ID] = true
	}
	for _, task := range second {
		if !ids[task.ID] {
			t.Fatalf("second run produced new task %s", task.ID)
		}
	}
}

func TestGenerate_ConcurrentRuns(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.service.Generate(ctx, e.calendar.ID)
			if err != nil {
				t.Errorf("Generate: %v", err)
				return
			}
			mu.Lock()
			created += res.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	if created != 14 {
		t.Fatalf("runs created %d tasks in total, want 14", created)
	}
	if n := len(e.tasks(t, "")); n != 14 {
		t.Fatalf("expected 14 stored tasks, got %d", n)
	}
}

func TestGenerate_ClipsToPlanRange(t *testing.T) {
	e := newEnv(t, envOptions{planEnd: day(2024, 1, 10)})

	res, err := e.service.Generate(context.Background(), e.calendar.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Days != 3 || res.Created != 6 || res.To != "2024-01-10" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerate_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("calendar wider than contract", func(t *testing.T) {
		e := newEnv(t, envOptions{calStart: day(2023, 12, 30)})
		if _, err := e.service.Generate(ctx, e.calendar.ID); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("range over max", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.service.maxRangeDays = 5
		if _, err := e.service.Generate(ctx, e.calendar.ID); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("unknown calendar", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		if _, err := e.service.Generate(ctx, uuid.New()); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	for _, status := range []string{storage.PlanStatusDraft, storage.PlanStatusArchived} {
		t.Run(status+" plan", func(t *testing.T) {
			e := newEnv(t, envOptions{})
			if err := e.store.GetPlansStorage().UpdatePlanStatus(ctx, e.tree.Plan.ID, status); err != nil {
				t.Fatalf("UpdatePlanStatus: %v", err)
			}
			if _, err := e.service.Generate(ctx, e.calendar.ID); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if got := e.tasks(t, ""); len(got) != 0 {
				t.Fatalf("expected no tasks, got %d", len(got))
			}
		})
	}

	t.Run("no plan for contract", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		other := storage.Contract{PatientID: e.patient.ID, StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 31)}
		e.store.GetContractsStorage().CreateContract(ctx, &other)
		cal := storage.DeliveryCalendar{ContractID: other.ID, StartDate: day(2024, 1, 1), EndDate: day(2024, 1, 2)}
		e.store.GetContractsStorage().CreateCalendar(ctx, &cal)

		if _, err := e.service.Generate(ctx, cal.ID); !errors.Is(err, ErrNoPlanForContract) {
			t.Fatalf("expected ErrNoPlanForContract, got %v", err)
		}
	})
}

func TestStateMachineExample(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()
	e.service.Generate(ctx, e.calendar.ID)

	task := e.tasks(t, StateScheduled)[0]

	skipped, err := e.service.MarkSkipped(ctx, task.ID)
	if err != nil {
		t.Fatalf("MarkSkipped: %v", err)
	}
	if skipped.State != StateSkipped {
		t.Fatalf("expected OMITIDA, got %s", skipped.State)
	}

	if _, err := e.service.MarkDelivered(ctx, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := e.service.MarkSkipped(ctx, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on repeat, got %v", err)
	}
	if _, err := e.service.MarkDelivered(ctx, uuid.New()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkDelivered_ConcurrentAndNotifies(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()
	notifier := &recordingNotifier{}
	e.service.WithNotifier(notifier)
	e.service.Generate(ctx, e.calendar.ID)
	task := e.tasks(t, StateScheduled)[0]

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.service.MarkDelivered(ctx, task.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful delivery, got %d", ok)
	}

	if len(notifier.msgs) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.msgs))
	}
	ev := notifier.msgs[0].Event
	if ev.EventType != notifications.EventDeliveryCompleted || ev.EntityID != task.ID.String() || ev.RecipientID != e.patient.ID.String() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPendingTasksAndConfirm(t *testing.T) {
	e := newEnv(t, envOptions{noPrimary: true})
	ctx := context.Background()

	res, err := e.service.Generate(ctx, e.calendar.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Pending != 14 {
		t.Fatalf("expected all 14 tasks pending, got %+v", res)
	}

	task := e.tasks(t, StatePending)[0]
	if task.AddressID != nil {
		t.Fatal("pending task must not have an address")
	}

	if _, err := e.service.MarkDelivered(ctx, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("PENDIENTE cannot be delivered, got %v", err)
	}
	if _, err := e.service.Confirm(ctx, task.ID, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("confirm without any address: expected ErrInvalidArgument, got %v", err)
	}

	stranger := storage.Patient{Name: "Bob"}
	e.store.GetPatientsStorage().CreatePatient(ctx, &stranger)
	foreign := storage.DeliveryAddress{PatientID: stranger.ID, Line1: "x"}
	e.store.GetPatientsStorage().CreateAddress(ctx, &foreign)
	if _, err := e.service.Confirm(ctx, task.ID, &foreign.ID); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("foreign address: expected ErrInvalidArgument, got %v", err)
	}

	confirmed, err := e.service.Confirm(ctx, task.ID, &e.office.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.State != StateScheduled || confirmed.AddressID == nil || *confirmed.AddressID != e.office.ID {
		t.Fatalf("unexpected confirmed task %+v", confirmed)
	}
	if _, err := e.service.Confirm(ctx, task.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second confirm: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := e.service.MarkDelivered(ctx, task.ID); err != nil {
		t.Fatalf("MarkDelivered after confirm: %v", err)
	}
}

func TestListTasks_Filters(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()
	e.service.Generate(ctx, e.calendar.ID)

	from, to := day(2024, 1, 9), day(2024, 1, 10)
	resp, err := e.service.ListTasks(ctx, TaskQuery{CalendarID: &e.calendar.ID, From: &from, To: &to})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(resp.Tasks) != 4 {
		t.Fatalf("expected 4 tasks in two days, got %d", len(resp.Tasks))
	}

	if _, err := e.service.ListTasks(ctx, TaskQuery{State: "LOST"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown state, got %v", err)
	}
	if _, err := e.service.ListTasks(ctx, TaskQuery{From: &to, To: &from}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for inverted range, got %v", err)
	}
}
