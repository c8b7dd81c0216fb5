package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/loansphere/internal/adapters/mcp"
	"github.com/kirillkom/loansphere/internal/bootstrap"
	"github.com/kirillkom/loansphere/internal/config"
	"github.com/kirillkom/loansphere/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// stdout carries the protocol
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, "mcp")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.PredictUC, app.SummaryUC, version)
	if err := server.ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
