// Command scheduler runs the engine without the operator API: the messaging
// channel and the daily jobs only.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segyhp/collections-engine/internal/app"
	"github.com/segyhp/collections-engine/internal/config"
	"github.com/segyhp/collections-engine/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.NewStdout(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting collections scheduler...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize engine", slog.Any("error", err))
		os.Exit(1)
	}

	sched, err := engine.Start(ctx)
	if err != nil {
		logger.Error("Failed to schedule jobs", slog.Any("error", err))
		engine.Close()
		os.Exit(1)
	}
	logger.Info("Scheduler started successfully", "sweepAt", cfg.Scheduler.SweepAt, "reminderAt", cfg.Scheduler.ReminderAt, "timezone", cfg.Scheduler.Timezone)

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	logger.Info("Shutting down scheduler...")
	if err := engine.Shutdown(sched, 30*time.Second); err != nil {
		logger.Error("Scheduler shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("Scheduler stopped")
}
