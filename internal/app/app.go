package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"UsageSync/internal/config"
	"UsageSync/internal/domain"
	"UsageSync/internal/infrastructure/parser"
	"UsageSync/internal/infrastructure/portal"
	"UsageSync/internal/infrastructure/scheduler"
	"UsageSync/internal/infrastructure/storage"
	"UsageSync/internal/infrastructure/telegram"
	"UsageSync/internal/infrastructure/telemetry"
	"UsageSync/internal/logging"
	"UsageSync/internal/ports"
	"UsageSync/internal/usecase"
)

// SyncOverrides replaces configured sync settings for a single run. Zero values keep the config.
type SyncOverrides struct {
	Mode        string
	Concurrency string
	Workers     int
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	syncer    *usecase.Syncer
	harvester *usecase.Harvester
	notifier  ports.Notifier
	metrics   ports.RunMetrics
}

// New opens the database and builds every adapter the commands need.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	var placeholders sq.PlaceholderFormat = sq.Dollar
	if cfg.Database.Driver == "sqlite" {
		placeholders = sq.Question
	}
	repo := storage.NewPostgresRepository(db, storage.WithPlaceholders(placeholders))
	client := portal.NewClient(cfg.Portal, nil)

	syncer := usecase.NewSyncer(usecase.SyncDeps{
		Targets: repo,
		Tokens:  client,
		Portal:  client,
		Gaps:    repo,
		Fetcher: client,
		Store:   repo,
		Logger:  baseLogger.With("component", "sync"),
	})

	harvester := usecase.NewHarvester(usecase.HarvestDeps{
		Tokens:     client,
		Portal:     client,
		Source:     client,
		Repository: repo,
		Sanitize:   parser.StripHTML,
		Logger:     baseLogger.With("component", "harvest"),
	})

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Configured() {
		notifier = tg
	}

	var metrics ports.RunMetrics = telemetry.NewNoOpExporter()
	if cfg.Telemetry.Enabled {
		exp, err := telemetry.NewExporter(ctx, cfg.Telemetry)
		if err != nil {
			baseLogger.Warn("telemetry disabled", "error", err)
		} else {
			metrics = exp
		}
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		syncer:    syncer,
		harvester: harvester,
		notifier:  notifier,
		metrics:   metrics,
	}, nil
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// Single connection keeps writers serialized and in-memory databases shared.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates the catalog and usage tables.
func (a *Application) Migrate(ctx context.Context) error {
	return storage.Migrate(ctx, a.db)
}

// RunSync performs one sync pass and reports it to metrics and notifications.
// A returned error means the run could not start; per-asset failures live in the report.
func (a *Application) RunSync(ctx context.Context, overrides SyncOverrides) (domain.RunReport, error) {
	report, err := a.syncer.Run(ctx, a.syncOptions(overrides))
	if err != nil {
		a.notify(ctx, FormatSyncFailure(a.cfg.Sync.Source, err))
		return report, fmt.Errorf("sync: %w", err)
	}

	if err := a.metrics.RecordSync(ctx, report); err != nil {
		a.logger.Warn("record sync metrics", "error", err)
	}
	a.notify(ctx, FormatSyncSummary(report))

	return report, nil
}

// RunHarvest refreshes the catalog of tracked assets.
func (a *Application) RunHarvest(ctx context.Context) (domain.HarvestReport, error) {
	report, err := a.harvester.Harvest(ctx, usecase.HarvestOptions{
		Source:      a.cfg.Sync.Source,
		MaxItems:    a.cfg.Harvest.MaxItems,
		Credentials: a.cfg.Portal.Credentials(),
	})
	if err != nil {
		return report, fmt.Errorf("harvest: %w", err)
	}

	if err := a.metrics.RecordHarvest(ctx, report); err != nil {
		a.logger.Warn("record harvest metrics", "error", err)
	}

	return report, nil
}

// Schedule runs a harvest followed by an incremental sync on every interval tick
// until ctx is cancelled.
func (a *Application) Schedule(ctx context.Context) error {
	job := func(ctx context.Context, trigger time.Time) error {
		a.logger.Info("scheduled run", "trigger", trigger.In(a.cfg.Scheduler.Location()))
		if _, err := a.RunHarvest(ctx); err != nil {
			a.logger.Warn("harvest failed, syncing known targets", "error", err)
		}
		_, err := a.RunSync(ctx, SyncOverrides{Mode: string(domain.ModeIncremental)})
		return err
	}

	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval), job, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// Close flushes metrics and releases the database.
func (a *Application) Close(ctx context.Context) error {
	return errors.Join(a.metrics.Close(ctx), a.db.Close())
}

func (a *Application) syncOptions(overrides SyncOverrides) usecase.SyncOptions {
	sc := a.cfg.Sync
	if overrides.Mode != "" {
		sc.Mode = overrides.Mode
	}
	if overrides.Concurrency != "" {
		sc.Concurrency = overrides.Concurrency
	}
	if overrides.Workers > 0 {
		sc.Workers = overrides.Workers
	}

	return usecase.SyncOptions{
		Source:              sc.Source,
		Mode:                domain.RunMode(sc.Mode),
		Concurrency:         domain.Concurrency(sc.Concurrency),
		Workers:             sc.Workers,
		StopOffsetDays:      sc.StopOffsetDays,
		FullLookbackDays:    sc.FullLookbackDays,
		IncrementalLookback: sc.IncrementalLookbackDays,
		ThrottleDelay:       sc.ThrottleDelay,
		Credentials:         a.cfg.Portal.Credentials(),
		Location:            a.cfg.Scheduler.Location(),
	}
}

func (a *Application) notify(ctx context.Context, message string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.PublishSummary(ctx, message); err != nil {
		a.logger.Warn("publish summary", "error", err)
	}
}
