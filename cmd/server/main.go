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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize engine", slog.Any("error", err))
		os.Exit(1)
	}

	sched, err := engine.Start(ctx)
	if err != nil {
		logger.Error("Failed to start scheduler", slog.Any("error", err))
		engine.Close()
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           engine.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Trigger runs synchronously and may take a while.
		WriteTimeout: cfg.GetJobTimeout() + 10*time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.Any("error", err))
	}
	if err := engine.Shutdown(sched, 30*time.Second); err != nil {
		logger.Error("Engine shutdown incomplete", slog.Any("error", err))
	}

	logger.Info("Server exited")
}
