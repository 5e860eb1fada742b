package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"servicebay/pkg/ai"
	"servicebay/pkg/domain"
	"servicebay/pkg/events"
	"servicebay/pkg/queue"
	"servicebay/pkg/storage"
	"servicebay/pkg/store"
)

// ReportQueue accepts asynchronous report-generation jobs.
type ReportQueue interface {
	Enqueue(ctx context.Context, userID, appointmentID string) (queue.Job, error)
	GetJob(ctx context.Context, jobID string) (queue.Job, bool, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	// StoreDriver selects the backend when Store is nil: "postgres"
	// (default), "mongo" or "memory".
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	Store         store.Store

	// Generator is nil when no provider credential is configured; AI
	// reports then fail with ErrConfiguration.
	Generator         ai.TextGenerator
	GenerationTimeout time.Duration

	Queue           ReportQueue
	Objects         storage.ObjectStore
	ExportURLExpiry time.Duration
	Publisher       events.Publisher

	Policy       domain.TransitionPolicy
	StaffUserIDs []string
	Clock        func() time.Time
}

// App is the core application service wiring together storage, the
// generation provider, and the async integrations.
type App struct {
	store             store.Store
	closeStore        func(context.Context) error
	generator         ai.TextGenerator
	generationTimeout time.Duration
	queue             ReportQueue
	objects           storage.ObjectStore
	exportExpiry      time.Duration
	publisher         events.Publisher
	policy            domain.TransitionPolicy
	staff             map[string]struct{}
	now               func() time.Time
}

// New constructs the application, opening the configured store if none is
// injected.
func New(cfg Config) (*App, error) {
	a := &App{
		store:             cfg.Store,
		closeStore:        func(context.Context) error { return nil },
		generator:         cfg.Generator,
		generationTimeout: cfg.GenerationTimeout,
		queue:             cfg.Queue,
		objects:           cfg.Objects,
		exportExpiry:      cfg.ExportURLExpiry,
		publisher:         cfg.Publisher,
		policy:            cfg.Policy,
		now:               cfg.Clock,
	}
	if a.store == nil {
		if err := a.openStore(cfg); err != nil {
			return nil, err
		}
	}
	if a.generationTimeout <= 0 {
		a.generationTimeout = 60 * time.Second
	}
	if a.exportExpiry <= 0 {
		a.exportExpiry = 15 * time.Minute
	}
	if a.policy == nil {
		a.policy = domain.PermissivePolicy{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.staff = lo.SliceToMap(cfg.StaffUserIDs, func(id string) (string, struct{}) {
		return strings.TrimSpace(id), struct{}{}
	})
	return a, nil
}

func (a *App) openStore(cfg Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("database URL required")
		}
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = s
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return fmt.Errorf("init mongo store: %w", err)
		}
		a.store = s
		a.closeStore = s.Close
	case "memory":
		a.store = store.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
	return nil
}

// Close releases the store connection when the app opened it.
func (a *App) Close(ctx context.Context) error {
	return a.closeStore(ctx)
}

func (a *App) isStaff(userID string) bool {
	_, ok := a.staff[userID]
	return ok
}

// ownedAppointment loads an appointment the caller may act on. Missing and
// foreign appointments are indistinguishable.
func (a *App) ownedAppointment(callerID, appointmentID string, allowStaff bool) (domain.Appointment, error) {
	appt, ok, err := a.store.GetAppointment(appointmentID)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	if !ok {
		return domain.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	if appt.UserID != callerID && !(allowStaff && a.isStaff(callerID)) {
		return domain.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	return appt, nil
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrReportExists):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
