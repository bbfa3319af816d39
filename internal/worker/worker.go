// Package worker runs the background passes of the recurring worker: the
// periodic materialize and reminder pass, the trash purge and the consumer
// for on-demand materialize requests.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

type Materializer interface {
	Materialize(ctx context.Context, userID string, now time.Time) (services.MaterializeResult, error)
	MaterializeAll(ctx context.Context, now time.Time) (services.BatchResult, error)
}

type ReminderScanner interface {
	ScanAll(ctx context.Context, now time.Time) (int, error)
}

type TrashPurger interface {
	Purge(ctx context.Context, now time.Time) (int, error)
}

// RequestSource delivers on-demand materialize requests.
type RequestSource interface {
	ConsumeMaterializeRequests(ctx context.Context, handler func(context.Context, *amqp.MaterializeRequest) error) error
}

// Config holds the worker intervals.
type Config struct {
	// ProcessInterval is how often every user is materialized and scanned for reminders.
	ProcessInterval time.Duration
	// PurgeInterval is how often expired trash is removed.
	PurgeInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ProcessInterval: time.Hour,
		PurgeInterval:   6 * time.Hour,
	}
}

type Worker struct {
	config       Config
	materializer Materializer
	reminders    ReminderScanner
	trash        TrashPurger
	source       RequestSource
	clock        func() time.Time

	// mu serializes passes so an on-demand request never overlaps a tick.
	mu sync.Mutex
}

// New creates a worker. source may be nil, in which case only the periodic
// loops run.
func New(config Config, materializer Materializer, reminders ReminderScanner, trash TrashPurger, source RequestSource) *Worker {
	def := DefaultConfig()
	if config.ProcessInterval <= 0 {
		config.ProcessInterval = def.ProcessInterval
	}
	if config.PurgeInterval <= 0 {
		config.PurgeInterval = def.PurgeInterval
	}
	return &Worker{
		config:       config,
		materializer: materializer,
		reminders:    reminders,
		trash:        trash,
		source:       source,
		clock:        time.Now,
	}
}

// Run blocks until ctx is cancelled or the request consumer fails.
func (w *Worker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Recurring worker started",
		applog.FieldComponent, applog.ComponentWorker,
		"process_interval", w.config.ProcessInterval,
		"purge_interval", w.config.PurgeInterval,
		"consumer", w.source != nil)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.loop(ctx, w.config.ProcessInterval, w.ProcessOnce)
		return nil
	})
	g.Go(func() error {
		w.loop(ctx, w.config.PurgeInterval, w.PurgeOnce)
		return nil
	})
	if w.source != nil {
		g.Go(func() error {
			err := w.source.ConsumeMaterializeRequests(ctx, w.HandleMaterializeRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume materialize requests: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	slog.InfoContext(ctx, "Recurring worker stopped", applog.FieldComponent, applog.ComponentWorker)
	return err
}

// loop runs fn immediately and then on every tick until ctx is done.
func (w *Worker) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessOnce materializes every user and sends due reminders.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	res, err := w.materializer.MaterializeAll(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Periodic materialize failed",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldError, err)
	} else {
		slog.InfoContext(ctx, "Periodic materialize complete",
			applog.FieldComponent, applog.ComponentWorker,
			"users", res.Users,
			"created", res.Created,
			"failed", res.Failed,
			"next_check", now.Add(w.config.ProcessInterval).Format("15:04:05"))
	}

	if w.reminders == nil {
		return
	}
	if _, err := w.reminders.ScanAll(ctx, now); err != nil {
		slog.ErrorContext(ctx, "Reminder scan failed",
			applog.FieldComponent, applog.ComponentReminder, applog.FieldError, err)
	}
}

// PurgeOnce removes trash items past the retention horizon.
func (w *Worker) PurgeOnce(ctx context.Context) {
	if w.trash == nil || ctx.Err() != nil {
		return
	}
	if _, err := w.trash.Purge(ctx, w.clock()); err != nil {
		slog.ErrorContext(ctx, "Trash purge failed",
			applog.FieldComponent, applog.ComponentTrash, applog.FieldError, err)
	}
}

// HandleMaterializeRequest materializes one user at processing time.
func (w *Worker) HandleMaterializeRequest(ctx context.Context, req *amqp.MaterializeRequest) error {
	if req == nil || req.UserID == "" {
		return errors.New("materialize request without user id")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	res, err := w.materializer.Materialize(ctx, req.UserID, w.clock())
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "On-demand materialize complete",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldUserID, req.UserID,
		"message", res.Message,
		"created", len(res.Created),
		"queued_for", w.clock().Sub(req.RequestedAt).Round(time.Millisecond).String())
	return nil
}
