package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
	"fintrack/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	backend, err := cli.InitStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer backend.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	var (
		requester ports.MaterializeRequester
		publisher ports.NotificationPublisher
	)
	if client := cli.InitAMQP(logger, cfg); client != nil {
		defer client.Close()
		requester, publisher = client, client
	}

	exporter, err := cli.InitExporter(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err)
		os.Exit(1)
	}

	opts := []services.MaterializerOption{services.WithExporter(exporter)}
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Ledger:             services.NewLedgerService(backend.Store, requester),
		Materializer:       services.NewRecurringMaterializer(backend.Store, opts...),
		Trash:              services.NewTrashRetention(backend.Store, cfg.TrashRetention),
		Analytics:          services.NewAnalytics(backend.Store),
		Ready:              backend.Ready,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"async_materialize", requester != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
