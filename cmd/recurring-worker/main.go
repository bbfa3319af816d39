package main

import (
	"os"

	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)

	backend, err := cli.InitStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer backend.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	exporter, err := cli.InitExporter(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err)
		os.Exit(1)
	}

	opts := []services.MaterializerOption{services.WithExporter(exporter)}
	var (
		publisher ports.NotificationPublisher
		source    worker.RequestSource
	)
	if client := cli.InitAMQP(logger, cfg); client != nil {
		defer client.Close()
		publisher, source = client, client
		opts = append(opts, services.WithPublisher(client))
	}

	w := worker.New(worker.Config{
		ProcessInterval: cfg.RecurringProcessorInterval,
		PurgeInterval:   cfg.TrashPurgeInterval,
	},
		services.NewRecurringMaterializer(backend.Store, opts...),
		services.NewReminderScanner(backend.Store, publisher),
		services.NewTrashRetention(backend.Store, cfg.TrashRetention),
		source,
	)

	logger.Info("Starting recurring-worker",
		"backend", cfg.DataBackend,
		"interval", cfg.RecurringProcessorInterval)
	if err := w.Run(ctx); err != nil {
		logger.Error("Recurring worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}
