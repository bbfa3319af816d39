package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
)

const (
	MessageProcessed = "Processed"
	MessageNoMatch   = "No Match"
)

// MaterializeResult reports the outcome of one materialization pass.
type MaterializeResult struct {
	Matched bool               `json:"matched"`
	Message string             `json:"message"`
	Created []core.Transaction `json:"created,omitempty"`
}

// BatchResult summarizes a pass over every user.
type BatchResult struct {
	Users     int `json:"users"`
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Failed    int `json:"failed"`
}

// RecurringMaterializer turns due recurring definitions into realized
// transactions and their notifications.
type RecurringMaterializer struct {
	store     ports.Store
	publisher ports.NotificationPublisher
	exporter  ports.TransactionExporter
	clock     func() time.Time
	newID     func() string
}

type MaterializerOption func(*RecurringMaterializer)

// WithPublisher announces every committed notification.
func WithPublisher(p ports.NotificationPublisher) MaterializerOption {
	return func(m *RecurringMaterializer) { m.publisher = p }
}

// WithExporter mirrors every committed transaction to an external ledger.
func WithExporter(e ports.TransactionExporter) MaterializerOption {
	return func(m *RecurringMaterializer) { m.exporter = e }
}

func WithClock(clock func() time.Time) MaterializerOption {
	return func(m *RecurringMaterializer) { m.clock = clock }
}

func WithIDGenerator(gen func() string) MaterializerOption {
	return func(m *RecurringMaterializer) { m.newID = gen }
}

// NewRecurringMaterializer creates a materializer backed by store.
func NewRecurringMaterializer(store ports.Store, opts ...MaterializerOption) *RecurringMaterializer {
	m := &RecurringMaterializer{
		store: store,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type pendingMaterialization struct {
	definition   core.RecurringDefinition
	transaction  core.Transaction
	notification core.Notification
}

// MaterializeNow runs Materialize at the materializer's clock.
func (m *RecurringMaterializer) MaterializeNow(ctx context.Context, userID string) (MaterializeResult, error) {
	return m.Materialize(ctx, userID, m.clock())
}

// Materialize creates today's realized transactions for userID. Every match is
// committed in one storage transaction; on error nothing is written.
func (m *RecurringMaterializer) Materialize(ctx context.Context, userID string, now time.Time) (MaterializeResult, error) {
	noMatch := MaterializeResult{Message: MessageNoMatch}
	if m.store == nil {
		return noMatch, fmt.Errorf("materializer not properly initialized")
	}

	user, err := m.store.LoadUser(ctx, userID)
	if err != nil {
		return noMatch, fmt.Errorf("load user %s: %w", userID, err)
	}

	today := core.DateOnly(now)
	var pending []pendingMaterialization

	for _, def := range user.RecurringDefinitions {
		if def.Exhausted() {
			continue
		}
		if def.MaterializedOn(now) {
			continue
		}

		matcher, err := GetScheduleMatcher(def.Schedule.Kind)
		if err != nil {
			slog.WarnContext(ctx, "Skipping recurring definition with unknown schedule",
				"user_id", userID,
				"definition_id", def.ID,
				"schedule", def.Schedule.Kind)
			continue
		}
		if !matcher.Matches(def.Schedule, today) {
			continue
		}

		pending = append(pending, m.realize(user.ID, def, now))
	}

	if len(pending) == 0 {
		slog.DebugContext(ctx, "No recurring definitions matched",
			"user_id", userID,
			"date", today.Format(time.DateOnly),
			"definitions", len(user.RecurringDefinitions))
		return noMatch, nil
	}

	err = m.store.WithinTx(ctx, func(tx ports.Tx) error {
		for _, p := range pending {
			if err := tx.UpdateDefinitionCounters(ctx, p.definition.ID, p.definition.OccurrencesPushed, now); err != nil {
				return fmt.Errorf("update counters for %s: %w", p.definition.ID, err)
			}
			if err := tx.AppendTransaction(ctx, p.transaction); err != nil {
				return fmt.Errorf("append transaction for %s: %w", p.definition.ID, err)
			}
			if err := tx.AppendNotification(ctx, p.notification); err != nil {
				return fmt.Errorf("append notification for %s: %w", p.definition.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, core.ErrConflict) && !errors.Is(err, core.ErrPersistence) {
			err = fmt.Errorf("%w: %w", core.ErrPersistence, err)
		}
		return noMatch, fmt.Errorf("materialize user %s: %w", userID, err)
	}

	created := make([]core.Transaction, len(pending))
	for i, p := range pending {
		created[i] = p.transaction
		fields := applog.NewFields().
			WithComponent(applog.ComponentRecurring).
			WithOperation(applog.OpMaterialize).
			WithUser(userID).
			WithMaterialization(p.definition.ID, p.transaction.ID, string(p.definition.Schedule.Kind),
				p.transaction.Amount.String(), p.transaction.Category.Name)
		slog.InfoContext(ctx, "Created transaction from recurring definition",
			append(fields.ToSlice(),
				"pushed", p.definition.OccurrencesPushed+1,
				"total", p.definition.TotalOccurrences)...)
	}

	m.afterCommit(ctx, pending, created)

	return MaterializeResult{Matched: true, Message: MessageProcessed, Created: created}, nil
}

// MaterializeAll runs a pass for every user in turn. A failing user is logged
// and does not stop the loop.
func (m *RecurringMaterializer) MaterializeAll(ctx context.Context, now time.Time) (BatchResult, error) {
	var res BatchResult
	if m.store == nil {
		return res, fmt.Errorf("materializer not properly initialized")
	}

	ids, err := m.store.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	res.Users = len(ids)

	slog.InfoContext(ctx, "Processing recurring definitions",
		"users", len(ids),
		"processing_date", now.Format(time.DateOnly))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := m.Materialize(ctx, id, now)
		if err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "Failed to materialize recurring definitions",
				"user_id", id,
				"error", err)
			continue
		}
		if r.Matched {
			res.Processed++
			res.Created += len(r.Created)
		}
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"users", res.Users,
		"processed", res.Processed,
		"created", res.Created,
		"failed", res.Failed)

	return res, nil
}

func (m *RecurringMaterializer) realize(userID string, def core.RecurringDefinition, now time.Time) pendingMaterialization {
	var person *core.Person
	if def.Person != nil {
		p := *def.Person
		person = &p
	}
	txn := core.Transaction{
		ID:                     m.newID(),
		UserID:                 userID,
		Amount:                 def.Amount,
		Note:                   def.Note,
		Category:               def.Category,
		Person:                 person,
		Image:                  def.Image,
		CreatedAt:              now,
		PushedIntoTransactions: true,
		SourceDefinitionID:     def.ID,
	}
	return pendingMaterialization{
		definition:  def,
		transaction: txn,
		notification: core.Notification{
			ID:          m.newID(),
			UserID:      userID,
			Header:      core.RecurringNotificationHeader,
			Type:        core.NotificationRecurring,
			Read:        false,
			Transaction: txn,
			CreatedAt:   now,
		},
	}
}

// afterCommit publishes and exports committed work. Failures are logged only.
func (m *RecurringMaterializer) afterCommit(ctx context.Context, pending []pendingMaterialization, created []core.Transaction) {
	if m.publisher != nil {
		for _, p := range pending {
			if err := m.publisher.PublishNotification(ctx, p.notification); err != nil {
				slog.WarnContext(ctx, "Failed to publish notification",
					"user_id", p.notification.UserID,
					"notification_id", p.notification.ID,
					"error", err)
			}
		}
	}
	if m.exporter != nil {
		if err := m.exporter.Export(ctx, created); err != nil {
			slog.WarnContext(ctx, "Failed to export realized transactions",
				"count", len(created),
				"error", err)
		}
	}
}
