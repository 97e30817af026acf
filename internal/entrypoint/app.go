package entrypoint

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/database"
	dbaudit "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/lending"
	"github.com/mrlokans/lending/internal/notify"
	"github.com/mrlokans/lending/internal/pool"
	"github.com/mrlokans/lending/internal/scheduler"
	"github.com/mrlokans/lending/internal/tasks"
)

// App holds the wired lending components shared by the server and the CLI.
type App struct {
	Config       *config.Config
	Database     *database.Database
	Pool         *pool.Pool
	Audit        *audit.Service
	Notifier     *notify.Notifier
	Tasks        *tasks.Client // nil when the task queue is disabled
	Dispatcher   *tasks.Dispatcher
	Borrows      *lending.BorrowService
	Reservations *lending.ReservationService
	Scans        *scheduler.ScanScheduler
}

// NewApp opens the database, the pool, the task queue and the notifier, and
// builds the lending services on top. Nothing is started.
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	app.Database = db

	app.Pool, err = pool.New(db.DB, pool.Config{
		Size:               cfg.Pool.Size,
		AcquireTimeout:     cfg.Pool.AcquireTimeout,
		HealthCheckTimeout: cfg.Pool.HealthCheckTimeout,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	app.Audit = audit.NewService(dbaudit.NewRepository(db.DB))

	var publisher notify.Publisher = notify.Discard{}
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := notify.NewRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, notifications disabled")
		} else {
			publisher = rabbit
			log.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("Notifications enabled")
		}
	}
	app.Notifier = notify.New(publisher)

	if cfg.Tasks.Enabled {
		app.Tasks, err = tasks.NewClient(tasks.FromAppConfig(cfg.Tasks))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
	}

	policy := lending.Policy{
		MaxBorrow:      cfg.Lending.MaxBorrow,
		BorrowPeriod:   cfg.Lending.BorrowPeriod(),
		ReservationTTL: cfg.Lending.ReservationTTL,
	}
	app.Dispatcher = tasks.NewDispatcher(app.Tasks, nil)
	opts := []lending.Option{
		lending.WithNotifier(app.Notifier),
		lending.WithQueueTrigger(app.Dispatcher),
	}
	app.Reservations = lending.NewReservationService(app.Pool, policy, opts...)
	app.Borrows = lending.NewBorrowService(app.Pool, policy, opts...)
	app.Dispatcher.SetProcessor(app.Reservations)

	if app.Tasks != nil {
		app.Tasks.Register(
			tasks.NewProcessReservationQueueQueue(app.Reservations),
			tasks.NewCleanupAuditEventsQueue(app.Audit),
		)
	}

	app.Scans = scheduler.NewScanScheduler(app.Borrows, app.Reservations, app.cleanupAudit, scheduler.Schedules{
		Overdue:      cfg.Scan.OverdueSchedule,
		Expired:      cfg.Scan.ExpiredSchedule,
		AuditCleanup: cfg.Scan.AuditSchedule,
	})

	return app, nil
}

// cleanupAudit hands audit pruning to the task queue when it runs, and prunes
// inline otherwise.
func (a *App) cleanupAudit(ctx context.Context) (int64, error) {
	days := a.Config.Audit.RetentionDays
	if a.Tasks != nil && a.Tasks.Running() {
		if _, err := a.Tasks.Add(tasks.CleanupAuditEventsTask{RetentionDays: days}).Ctx(ctx).Save(); err != nil {
			return 0, fmt.Errorf("enqueue audit cleanup: %w", err)
		}
		return -1, nil
	}
	return tasks.CleanupAuditEvents(a.Audit, days)
}

// Close releases everything NewApp opened. Background workers must be stopped first.
func (a *App) Close() {
	if a.Notifier != nil {
		if err := a.Notifier.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing notifier")
		}
	}
	if a.Tasks != nil {
		if err := a.Tasks.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing task client")
		}
	}
	if a.Pool != nil {
		if err := a.Pool.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing connection pool")
		}
	}
	if a.Database != nil {
		if err := a.Database.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}
}
