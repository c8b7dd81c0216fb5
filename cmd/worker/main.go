package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/loansphere/internal/bootstrap"
	"github.com/kirillkom/loansphere/internal/config"
	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/observability/logging"
)

const service = "worker"

func main() {
	cfg := config.Load()
	logging.NewJSONLogger(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg, service)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", worker.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = worker.Events.SubscribeRuns(ctx, func(handlerCtx context.Context, run domain.PredictionRun) error {
		worker.Metrics.ObserveEventLag(service, time.Since(run.CreatedAt))
		worker.Metrics.StartRun()
		started := time.Now()

		persistCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		err := worker.Repo.RecordRun(persistCtx, run)
		worker.Metrics.FinishRun(service, time.Since(started), err)
		if err == nil {
			slog.Debug("prediction_run_persisted", "run_id", run.ID, "source", string(run.Source))
		}
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
