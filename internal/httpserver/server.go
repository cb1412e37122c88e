package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fdg312/nutrition-engine/internal/auth"
	"github.com/fdg312/nutrition-engine/internal/blob"
	"github.com/fdg312/nutrition-engine/internal/config"
	"github.com/fdg312/nutrition-engine/internal/deliveries"
	"github.com/fdg312/nutrition-engine/internal/intakes"
	"github.com/fdg312/nutrition-engine/internal/mailer"
	"github.com/fdg312/nutrition-engine/internal/mealoptions"
	"github.com/fdg312/nutrition-engine/internal/mealplans"
	"github.com/fdg312/nutrition-engine/internal/notifications"
	"github.com/fdg312/nutrition-engine/internal/push"
	"github.com/fdg312/nutrition-engine/internal/reports"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/fdg312/nutrition-engine/internal/storage/memory"
	"github.com/fdg312/nutrition-engine/internal/storage/postgres"
)

// Server представляет HTTP сервер
type Server struct {
	config         *config.Config
	mux            *http.ServeMux
	storage        storage.Storage
	authMiddleware *auth.Middleware

	ledger *notifications.Ledger
	mailer mailer.Sender
	push   push.Publisher
	blob   blob.Store
}

// New создаёт новый HTTP сервер
func New(cfg *config.Config) *Server {
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
	}

	// Инициализируем storage
	s.initStorage()

	s.initOutbound()
	s.routes()
	return s
}

// NewWithStorage builds the server over an existing store. Outbound channels
// are the in-process ones; used by tests and the smoke runner.
func NewWithStorage(cfg *config.Config, store storage.Storage) *Server {
	s := &Server{
		config:  cfg,
		mux:     http.NewServeMux(),
		storage: store,
		mailer:  mailer.NewLocalSender(log.Default()),
		push:    push.NewLocalPublisher(log.Default()),
	}
	s.routes()
	return s
}

// initStorage инициализирует storage (Memory или Postgres)
func (s *Server) initStorage() {
	if s.config.DatabaseURL == "" {
		log.Println("INFO storage: mode=memory")
		s.storage = memory.New()
		return
	}

	log.Println("INFO storage: connecting to PostgreSQL")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pgStorage, err := postgres.New(ctx, s.config.DatabaseURL)
	if err != nil {
		log.Printf("WARN storage: postgres unavailable: %v, fallback=memory", err)
		s.storage = memory.New()
		return
	}
	log.Println("INFO storage: mode=postgres")
	s.storage = pgStorage
}

// initOutbound настраивает email, push и blob store для отчётов.
func (s *Server) initOutbound() {
	ctx := context.Background()

	sender, err := mailer.NewSenderFromConfig(s.config, log.Default())
	if err != nil {
		log.Printf("WARN mailer: %v, fallback=local", err)
		sender = mailer.NewLocalSender(log.Default())
	}
	s.mailer = sender

	publisher, err := push.NewPublisherFromConfig(ctx, s.config.Push, log.Default())
	if err != nil {
		log.Printf("WARN push: %v, fallback=local", err)
		publisher = push.NewLocalPublisher(log.Default())
	}
	s.push = publisher

	store, mode, err := blob.NewBlobStore(ctx, s.config.Blob, log.Default())
	if err != nil {
		log.Fatalf("FATAL blob: %v", err)
	}
	log.Printf("INFO blob: reports mode=%s", mode)
	s.blob = store
}

// routes регистрирует маршруты
func (s *Server) routes() {
	loc := s.config.Location()

	// Health check (no auth required)
	s.mux.HandleFunc("/healthz", s.handleHealthz)

	// Auth API (no auth required)
	authService := auth.NewService(s.config, s.storage)
	authHandler := auth.NewHandlers(authService)
	s.authMiddleware = auth.NewMiddleware(s.config, authService)

	// POST /v1/auth/dev - local dev token
	s.mux.HandleFunc("POST /v1/auth/dev", authHandler.HandleDevAuth)

	// Notifications: ledger + dispatcher shared by reminders and deliveries
	s.ledger = notifications.NewLedger(s.storage.GetNotificationsStorage())
	dispatcher := notifications.NewDispatcher(s.ledger, s.storage.GetPatientsStorage(), s.config.NotificationChannels).
		WithMailer(s.mailer).
		WithPush(s.push)

	// Plans API
	plansService := mealplans.NewService(s.storage, loc)
	plansHandler := mealplans.NewHandler(plansService)

	// POST /v1/plans - authoring input, stored as draft
	s.mux.HandleFunc("POST /v1/plans", s.professionalOnly(plansHandler.HandleCreate))

	// GET /v1/plans/{id} - full plan tree
	s.mux.HandleFunc("GET /v1/plans/{id}", s.patientScoped(s.patientOfPlan, plansHandler.HandleGet))

	// POST /v1/plans/{id}/publish
	s.mux.HandleFunc("POST /v1/plans/{id}/publish", s.professionalOnly(plansHandler.HandlePublish))

	// GET /v1/plans/{id}/today?date=YYYY-MM-DD - meals scheduled for the day
	s.mux.HandleFunc("GET /v1/plans/{id}/today", s.patientScoped(s.patientOfPlan, plansHandler.HandleToday))

	// Meal options API
	optionsService := mealoptions.NewService(s.storage.GetPlansStorage(), s.storage.GetFoodsStorage())
	optionsHandler := mealoptions.NewHandler(optionsService)
	s.mux.HandleFunc("POST /v1/meals/{id}/options", s.professionalOnly(optionsHandler.HandleAdd))
	s.mux.HandleFunc("POST /v1/meals/{id}/options/{index}/duplicate", s.professionalOnly(optionsHandler.HandleDuplicate))
	s.mux.HandleFunc("DELETE /v1/meals/{id}/options/{index}", s.professionalOnly(optionsHandler.HandleRemove))
	s.mux.HandleFunc("GET /v1/meals/{id}/options/{index}/totals", optionsHandler.HandleTotals)

	// Intakes API
	intakesService := intakes.NewService(s.storage, loc)
	intakesHandler := intakes.NewHandlers(intakesService)

	// POST /v1/intakes/confirm - confirm a scheduled meal, once per day
	s.mux.HandleFunc("POST /v1/intakes/confirm", s.patientScoped(patientFromBody, intakesHandler.HandleConfirm))

	// POST /v1/intakes/freeform - arbitrary foods
	s.mux.HandleFunc("POST /v1/intakes/freeform", s.patientScoped(patientFromBody, intakesHandler.HandleFreeform))

	// GET /v1/intakes?patient_id=&date=
	s.mux.HandleFunc("GET /v1/intakes", s.patientScoped(patientFromQuery, intakesHandler.HandleList))

	// GET /v1/intakes/daily-totals?patient_id=&date=
	s.mux.HandleFunc("GET /v1/intakes/daily-totals", s.patientScoped(patientFromQuery, intakesHandler.HandleDailyTotals))

	// GET /v1/intakes/{id}/totals
	s.mux.HandleFunc("GET /v1/intakes/{id}/totals", s.patientScoped(s.patientOfIntake, intakesHandler.HandleTotals))

	// DELETE /v1/intakes/{id}?patient_id=
	s.mux.HandleFunc("DELETE /v1/intakes/{id}", s.patientScoped(patientFromQuery, intakesHandler.HandleDelete))

	// Deliveries API
	deliveriesService := deliveries.NewService(s.storage, s.config.DeliveryMaxRangeDays)
	if s.config.NotifyOnDeliveryCompleted {
		deliveriesService.WithNotifier(dispatcher)
	}
	deliveriesHandler := deliveries.NewHandler(deliveriesService)
	s.mux.HandleFunc("POST /v1/calendars/{id}/generate", s.professionalOnly(deliveriesHandler.HandleGenerate))
	s.mux.HandleFunc("POST /v1/deliveries/{id}/delivered", s.professionalOnly(deliveriesHandler.HandleDelivered))
	s.mux.HandleFunc("POST /v1/deliveries/{id}/skipped", s.professionalOnly(deliveriesHandler.HandleSkipped))
	s.mux.HandleFunc("POST /v1/deliveries/{id}/confirm", s.professionalOnly(deliveriesHandler.HandleConfirm))
	s.mux.HandleFunc("GET /v1/deliveries", s.professionalOnly(deliveriesHandler.HandleList))

	// Notifications API
	grace := time.Duration(s.config.MealReminderGraceMins) * time.Minute
	reminders := notifications.NewReminders(s.storage, dispatcher, loc, grace)
	notificationsHandler := notifications.NewHandler(s.ledger, reminders)
	s.mux.HandleFunc("POST /v1/notifications/try-record", s.professionalOnly(notificationsHandler.HandleTryRecord))
	s.mux.HandleFunc("POST /v1/plans/{id}/reminders", s.professionalOnly(notificationsHandler.HandleRemind))

	// Reports API
	reportsService := reports.NewService(s.storage, intakesService, s.config.ReportsMaxRangeDays)
	if s.blob != nil {
		reportsService.WithBlobStore(s.blob, time.Duration(s.config.Blob.S3.PresignTTLSeconds)*time.Second)
	}
	reportsHandler := reports.NewHandler(reportsService)

	// GET /v1/reports/adherence?patient_id=&plan_id=&from=&to=&format=json|csv|pdf
	s.mux.HandleFunc("GET /v1/reports/adherence", s.patientScoped(patientFromQuery, reportsHandler.HandleAdherence))
}

// Ledger exposes the notification ledger for the retention sweeper.
func (s *Server) Ledger() *notifications.Ledger {
	return s.ledger
}

// Handler returns the router wrapped in the middleware chain (outermost
// first): CORS → Rate Limit → Auth → Router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = s.authMiddleware.RequireAuth(handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	return handler
}

// handleHealthz возвращает статус сервера
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Start запускает HTTP сервер и останавливает его при отмене ctx.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("INFO http: listening addr=http://localhost%s auth_mode=%s auth_required=%t", addr, s.config.AuthMode, s.config.AuthRequired)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Println("INFO http: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close закрывает storage и освобождает ресурсы
func (s *Server) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
