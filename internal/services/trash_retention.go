package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

// TrashRetention keeps deleted transactions around for a fixed horizon.
type TrashRetention struct {
	store   ports.LedgerStore
	horizon time.Duration
}

// NewTrashRetention uses core.RetentionHorizon when horizon is not positive.
func NewTrashRetention(store ports.LedgerStore, horizon time.Duration) *TrashRetention {
	if horizon <= 0 {
		horizon = core.RetentionHorizon
	}
	return &TrashRetention{store: store, horizon: horizon}
}

func (r *TrashRetention) MoveToTrash(ctx context.Context, userID, transactionID string, now time.Time) (core.TrashItem, error) {
	item, err := r.store.MoveToTrash(ctx, userID, transactionID, now)
	if err != nil {
		return core.TrashItem{}, fmt.Errorf("move %s to trash: %w", transactionID, err)
	}
	return item, nil
}

// ListTrash returns the user's trash still inside the horizon, newest first.
func (r *TrashRetention) ListTrash(ctx context.Context, userID string, now time.Time) ([]core.TrashItem, error) {
	user, err := r.store.LoadUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	items := core.FilterTrash(user.Trash, now, r.horizon)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DeletedAt.After(items[j].DeletedAt)
	})
	return items, nil
}

// Purge removes every trash item that fell out of the horizon.
func (r *TrashRetention) Purge(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.horizon)
	n, err := r.store.PurgeTrash(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge trash: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired trash", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
