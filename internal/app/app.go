package app

import (
	"context"
	"fmt"
	"log/slog"

	"BillWatch/internal/candidates"
	"BillWatch/internal/config"
	"BillWatch/internal/domain"
	"BillWatch/internal/infrastructure/metrics"
	"BillWatch/internal/infrastructure/scheduler"
	"BillWatch/internal/infrastructure/storage"
	"BillWatch/internal/infrastructure/telegram"
	"BillWatch/internal/infrastructure/upstream"
	"BillWatch/internal/invoke"
	"BillWatch/internal/logging"
	"BillWatch/internal/ports"
	"BillWatch/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    ports.Store
	recorder *metrics.Recorder
	service  *invoke.Service
}

// New opens the store and builds the invocation service.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return build(cfg, store, baseLogger)
}

// build wires every component around an already opened store.
func build(cfg config.Config, store ports.Store, baseLogger *slog.Logger) (*Application, error) {
	recorder, err := metrics.NewRecorder()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := upstream.NewClient(cfg.Upstream, baseLogger)

	registry := candidates.NewRegistry(
		candidates.NewSearch(client, cfg.Cache, baseLogger),
		candidates.NewRange(cfg.Cache),
	)
	strategy, err := registry.Resolve(cfg.Cache.Strategy)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var notifier ports.Notifier = telegram.NewLogNotifier(baseLogger)
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	driver := usecase.NewDriver(usecase.DriverConfig{
		Scope:      cfg.Cache.Scope,
		BatchSize:  cfg.Cache.BatchSize,
		FetchDelay: cfg.Cache.FetchDelay,
		SkipDelay:  cfg.Cache.SkipDelay,
	}, usecase.DriverDeps{
		Upstream: client,
		Cursors:  store,
		Records:  store,
		Strategy: strategy,
		Logger:   baseLogger,
	})

	priorities := make([]domain.Priority, 0, len(cfg.Detector.NotifyPriorities))
	for _, raw := range cfg.Detector.NotifyPriorities {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("detector.notifyPriorities: %w", err)
		}
		priorities = append(priorities, p)
	}

	detector := usecase.NewDetector(usecase.DetectorConfig{
		Scope:            cfg.Detector.Scope,
		SearchLimit:      cfg.Detector.SearchLimit,
		FetchDelay:       cfg.Detector.FetchDelay,
		NotifyPriorities: priorities,
	}, usecase.DetectorDeps{
		Upstream: client,
		Records:  store,
		Tracking: store,
		Notifier: notifier,
		Logger:   baseLogger,
	})

	ticker := scheduler.NewTickerScheduler(cfg.Scheduler.Interval, nil, baseLogger).
		WithLocation(cfg.Scheduler.Location())

	service := invoke.NewService(invoke.Deps{
		Auth:     invoke.NewAuthorizer(cfg.Auth),
		Driver:   driver,
		Loop:     usecase.NewScheduler(ticker, driver),
		Detector: detector,
		Upstream: client,
		Tracking: store,
		Metrics:  recorder,
		Logger:   baseLogger,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		recorder: recorder,
		service:  service,
	}, nil
}

// Service exposes the guarded invocation surface.
func (a *Application) Service() *invoke.Service {
	return a.service
}

// Close flushes metrics and releases the store.
func (a *Application) Close() error {
	if err := a.recorder.Flush(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("metrics flush failed", "error", err)
	}
	return a.store.Close()
}
