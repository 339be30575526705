// Package main implements the localBrowser task queue worker: it accepts
// browser-automation jobs over HTTP, executes them against the browser
// service under a concurrency cap, and delivers signed results to the
// configured consumer.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/api"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/browser"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/config"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/lighthouse"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/platform/logger"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/platform/postgres"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/platform/sqlite"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/task"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

// run wires the application together and blocks until shutdown.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("worker configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"max_concurrent", cfg.Worker.MaxConcurrent,
		"poll_interval", cfg.Worker.PollInterval)

	db, taskStore, err := openStore(cfg.Database, appLogger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	queue := task.NewQueueService(taskStore, appLogger)

	workerID := cfg.Worker.WorkerID
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = "worker-" + hostname
	}
	processingBy := fmt.Sprintf("%s:%d", workerID, os.Getpid())

	automation := browser.NewClient(cfg.Browser.ServiceURL, cfg.Browser.NavigationTimeout, appLogger)
	lhRunner := lighthouse.Detect(cfg.Lighthouse.Binary, appLogger)
	executor := task.NewExecutor(automation, lhRunner, cfg.Browser.NavigationTimeout, appLogger)

	// Submission is optional: without a callback base URL, results are only
	// persisted and queryable through the API.
	var submitter task.ResultSubmitter
	if cfg.Callback.BaseURL != "" {
		submitter = task.NewSubmitter(task.SubmitterConfig{
			BaseURL:    cfg.Callback.BaseURL,
			Secret:     cfg.Callback.Secret,
			Timeout:    cfg.Callback.Timeout,
			MaxRetries: cfg.Callback.MaxRetries,
			RetryDelay: cfg.Callback.RetryDelay,
		}, appLogger)
	} else {
		slog.Info("no callback base URL configured, result submission disabled")
	}

	processor := task.NewProcessor(queue, executor, submitter, task.ProcessorConfig{
		Interval:      cfg.Worker.PollInterval,
		MaxConcurrent: cfg.Worker.MaxConcurrent,
		WorkerID:      workerID,
		ProcessingBy:  processingBy,
	}, appLogger)

	maintenance := task.NewMaintenanceWorker(queue, task.MaintenanceConfig{
		StuckCheckInterval:    cfg.Maintenance.StuckCheckInterval,
		StuckThresholdMinutes: cfg.Maintenance.StuckThresholdMin,
		CleanupInterval:       cfg.Maintenance.CleanupInterval,
		RetentionDays:         cfg.Maintenance.RetentionDays,
	}, appLogger)

	processor.Start()
	defer processor.Stop()
	maintenance.Start()
	defer maintenance.Stop()

	handler := api.NewTaskHandler(queue, appLogger)
	router := chi.NewRouter()
	router.Mount("/api", handler.Routes(cfg.Server.APIKey))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}

	// The deferred processor/maintenance stops run after this returns,
	// letting dispatched tasks finish their bookkeeping first.
	return nil
}

// openStore opens the configured database backend and returns the task store
// over it.
func openStore(cfg config.DatabaseConfig, appLogger *slog.Logger) (*sql.DB, task.Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.DSN, appLogger)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.NewTaskStore(db), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN, appLogger)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewTaskStore(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
