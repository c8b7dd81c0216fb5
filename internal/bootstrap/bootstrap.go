package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/loansphere/internal/config"
	"github.com/kirillkom/loansphere/internal/core/ports"
	"github.com/kirillkom/loansphere/internal/core/usecase"
	"github.com/kirillkom/loansphere/internal/infrastructure/dataset"
	"github.com/kirillkom/loansphere/internal/infrastructure/model"
	"github.com/kirillkom/loansphere/internal/infrastructure/queue/nats"
	"github.com/kirillkom/loansphere/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/loansphere/internal/infrastructure/resilience"
	"github.com/kirillkom/loansphere/internal/infrastructure/session"
	"github.com/kirillkom/loansphere/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/loansphere/internal/infrastructure/tabular"
	"github.com/kirillkom/loansphere/internal/observability/metrics"
)

// App is the dependency graph shared by the API and MCP processes.
type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	PredictUC *usecase.PredictLoanUseCase
	BulkUC    *usecase.BulkPredictionUseCase
	SampleUC  *usecase.SampleUseCase
	SummaryUC *usecase.SummaryUseCase
	RunsUC    *usecase.ListRunsUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewHTTPServerMetrics(service),
	}
	ready := false
	defer func() {
		if !ready {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(
		resilienceConfig(cfg),
		resilience.WithObserver(app.Metrics.Resilience(service)),
	)

	classifier, err := model.Load(cfg.ModelPath, cfg.ONNXRuntimeLibPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if closer, ok := classifier.(io.Closer); ok {
		app.closers = append(app.closers, func() { _ = closer.Close() })
	}

	codec := tabular.NewCodec(cfg.SQLUploadTable,
		tabular.WithSQLTimeout(cfg.SQLScriptTimeout),
		tabular.WithSQLMaxPages(cfg.SQLMaxPages),
	)
	stats, err := dataset.LoadStats(ctx, codec, cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("load dataset summary: %w", err)
	}

	sessions, err := app.sessionStore(ctx)
	if err != nil {
		return nil, err
	}

	var archive ports.ObjectStorage
	if cfg.ArchivePath != "" {
		storage, err := localfs.New(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("init upload archive: %w", err)
		}
		archive = storage
	}

	var (
		recorder ports.RunRecorder
		history  ports.RunReader
	)
	if cfg.HistoryEnabled() {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		repo := postgres.NewRunRepository(db).WithExecutor(executor)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		recorder, history = repo, repo
	}
	if cfg.NATSURL != "" {
		events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Name:               "loansphere-" + service,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init run events: %w", err)
		}
		app.closers = append(app.closers, events.Close)
		// the worker persists published runs
		recorder = events
	}
	if recorder == nil {
		slog.Info("prediction_run_history_disabled")
	}

	app.PredictUC = usecase.NewPredictLoanUseCase(classifier, recorder)
	app.BulkUC = usecase.NewBulkPredictionUseCase(codec, classifier, sessions, archive, recorder, usecase.BulkOptions{
		PreviewRows:  cfg.BulkPreviewRows,
		ResultsTable: cfg.ResultsTableName,
	})
	app.SampleUC = usecase.NewSampleUseCase(codec, cfg.SampleTableName)
	app.SummaryUC = usecase.NewSummaryUseCase(stats.TotalRecords, stats.ApprovedLoans, classifier)
	app.RunsUC = usecase.NewListRunsUseCase(history, cfg.RunsDefaultLimit)

	slog.Info("bootstrap_complete",
		"model", classifier.Name(),
		"features", len(classifier.FeatureNames()),
		"dataset_records", stats.TotalRecords,
		"history", cfg.HistoryEnabled(),
		"run_events", cfg.NATSURL != "",
		"redis_sessions", cfg.RedisAddr != "",
	)
	ready = true
	return app, nil
}

func (a *App) sessionStore(ctx context.Context) (ports.SessionStore, error) {
	if a.Config.RedisAddr == "" {
		return session.NewMemoryStore(a.Config.SessionTTL), nil
	}
	client, err := session.Connect(a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	store := session.NewRedisStore(client, a.Config.SessionTTL)
	a.closers = append(a.closers, func() { _ = store.Close() })
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, nil
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Worker persists run events published by API instances.
type Worker struct {
	Config  config.Config
	Metrics *metrics.WorkerMetrics
	Events  *nats.RunEvents
	Repo    *postgres.RunRepository

	closers []func()
}

func NewWorker(ctx context.Context, cfg config.Config, service string) (*Worker, error) {
	if cfg.NATSURL == "" || !cfg.HistoryEnabled() {
		return nil, errors.New("worker requires NATS_URL and POSTGRES_DSN")
	}
	w := &Worker{
		Config:  cfg,
		Metrics: metrics.NewWorkerMetrics(service),
	}
	ready := false
	defer func() {
		if !ready {
			w.Close()
		}
	}()

	executor := resilience.NewExecutor(
		resilienceConfig(cfg),
		resilience.WithObserver(w.Metrics.Resilience(service)),
	)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	w.closers = append(w.closers, func() { _ = db.Close() })
	w.Repo = postgres.NewRunRepository(db).WithExecutor(executor)
	if err := w.Repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name: "loansphere-" + service,
	})
	if err != nil {
		return nil, fmt.Errorf("init run events: %w", err)
	}
	w.Events = events
	w.closers = append(w.closers, events.Close)
	ready = true
	return w, nil
}

func (w *Worker) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}
