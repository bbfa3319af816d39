package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

// ReminderScanner emits a notification for every transaction whose reminder
// falls on today and has not fired yet today.
type ReminderScanner struct {
	store     ports.Store
	publisher ports.NotificationPublisher
	newID     func() string
}

func NewReminderScanner(store ports.Store, publisher ports.NotificationPublisher) *ReminderScanner {
	return &ReminderScanner{store: store, publisher: publisher, newID: uuid.NewString}
}

// Scan processes one user and returns how many reminders fired.
func (s *ReminderScanner) Scan(ctx context.Context, userID string, now time.Time) (int, error) {
	user, err := s.store.LoadUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load user %s: %w", userID, err)
	}

	var due []core.Notification
	for _, txn := range user.Transactions {
		if txn.RemindAt == nil || !core.SameDay(*txn.RemindAt, now) {
			continue
		}
		if txn.RemindedAt != nil && core.SameDay(*txn.RemindedAt, now) {
			continue
		}
		due = append(due, core.Notification{
			ID:          s.newID(),
			UserID:      user.ID,
			Header:      reminderHeader(txn),
			Type:        core.NotificationReminder,
			Transaction: txn,
			CreatedAt:   now,
		})
	}
	if len(due) == 0 {
		return 0, nil
	}

	err = s.store.WithinTx(ctx, func(tx ports.Tx) error {
		for _, n := range due {
			if err := tx.AppendNotification(ctx, n); err != nil {
				return fmt.Errorf("append reminder for %s: %w", n.Transaction.ID, err)
			}
			if err := tx.MarkReminded(ctx, n.Transaction.ID, now); err != nil {
				return fmt.Errorf("mark reminded %s: %w", n.Transaction.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan reminders for %s: %w", userID, err)
	}

	if s.publisher != nil {
		for _, n := range due {
			if err := s.publisher.PublishNotification(ctx, n); err != nil {
				slog.WarnContext(ctx, "Failed to publish reminder",
					"user_id", userID,
					"notification_id", n.ID,
					"error", err)
			}
		}
	}
	return len(due), nil
}

// ScanAll runs Scan for every user, logging and skipping failures.
func (s *ReminderScanner) ScanAll(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	total := 0
	for _, id := range ids {
		n, err := s.Scan(ctx, id, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to scan reminders", "user_id", id, "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		slog.InfoContext(ctx, "Reminders sent", "count", total)
	}
	return total, nil
}

func reminderHeader(t core.Transaction) string {
	label := strings.TrimSpace(t.Note)
	if label == "" {
		label = t.Category.Name
	}
	return "Reminder: " + label
}
