// Package cli provides common initialization shared by cmd/fintrack,
// cmd/recurring-worker and cmd/fintrackctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
	gsheet "fintrack/internal/sheets/google"
	memexport "fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

// Backend is an opened ledger store.
type Backend struct {
	Store ports.LedgerStore
	// Ready pings the store; nil for in-process stores.
	Ready func(ctx context.Context) error
	Close func() error
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	level, err := applog.ParseLevel(cfg.LogLevel)
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", cfg.LogLevel)
	}
	return logger
}

// LoadAndValidateConfig loads .env and the environment, sets up logging and
// validates the result. It exits the process on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitStore opens the configured ledger store.
func InitStore(cfg *config.Config) (*Backend, error) {
	switch cfg.DataBackend {
	case config.BackendMemory:
		return &Backend{
			Store: memory.New(),
			Close: func() error { return nil },
		}, nil
	case config.BackendSQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite repository at %s: %w", cfg.SQLiteDBPath, err)
		}
		return &Backend{Store: repo, Ready: repo.Ping, Close: repo.Close}, nil
	}
	return nil, fmt.Errorf("unsupported data backend %q", cfg.DataBackend)
}

// InitAMQP connects to the broker when one is configured. A nil client means
// messaging is disabled or unavailable; callers continue without it.
func InitAMQP(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP disabled, notifications stay local and async materialize is unavailable")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPMaterializeQueue, cfg.AMQPNotificationQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without messaging", "error", err)
		return nil
	}
	logger.Info("AMQP client initialized",
		"exchange", cfg.AMQPExchange,
		"materialize_queue", cfg.AMQPMaterializeQueue,
		"notification_queue", cfg.AMQPNotificationQueue)
	return client
}

// InitExporter returns the Google Sheets exporter when a spreadsheet is
// configured and the bounded in-memory exporter otherwise.
func InitExporter(ctx context.Context, logger *applog.Logger, cfg *config.Config) (ports.TransactionExporter, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("No spreadsheet configured, keeping exported rows in memory")
		return memexport.New(), nil
	}
	exp, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize sheets exporter: %w", err)
	}
	logger.Info("Google Sheets export enabled", "sheet", cfg.GoogleSheetName)
	return exp, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, cancel
}
