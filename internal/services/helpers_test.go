package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"
	"fintrack/internal/storage/memory"
)

var (
	rent   = core.Category{Name: "Housing", Color: "#795548", Sign: core.SignExpense, Type: core.CategoryExpense}
	salary = core.Category{Name: "Salary", Color: "#ffc107", Sign: core.SignIncome, Type: core.CategoryIncome}
)

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func monthlyRent(id string, day, count, pushed int) core.RecurringDefinition {
	return core.RecurringDefinition{
		ID:                id,
		UserID:            "u1",
		Amount:            core.MustAmount("-950"),
		Note:              "rent",
		Category:          rent,
		Schedule:          core.Schedule{Kind: core.ScheduleKind("Every month"), DayOfMonth: day},
		TotalOccurrences:  count,
		OccurrencesPushed: pushed,
	}
}

func seededStore(defs ...core.RecurringDefinition) *memory.Store {
	s := memory.New()
	s.Seed(core.User{
		ID:                   "u1",
		Name:                 "Ada",
		Categories:           []core.Category{rent, salary},
		RecurringDefinitions: defs,
	})
	return s
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []core.Notification
	err  error
}

func (p *recordingPublisher) PublishNotification(_ context.Context, n core.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, n)
	return nil
}

type recordingExporter struct {
	mu       sync.Mutex
	exported []core.Transaction
	err      error
}

func (e *recordingExporter) Export(_ context.Context, txns []core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.exported = append(e.exported, txns...)
	return nil
}

type recordingRequester struct {
	userIDs []string
}

func (r *recordingRequester) RequestMaterialize(_ context.Context, userID string, _ time.Time) error {
	r.userIDs = append(r.userIDs, userID)
	return nil
}

// failingStore wraps a memory store so that one Tx operation fails.
type failingStore struct {
	*memory.Store
	failOn string
}

func (f failingStore) WithinTx(ctx context.Context, fn func(ports.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx ports.Tx) error {
		return fn(failingTx{Tx: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	ports.Tx
	failOn string
}

var errDiskFull = errors.New("disk full")

func (t failingTx) AppendNotification(ctx context.Context, n core.Notification) error {
	if t.failOn == "notification" {
		return errDiskFull
	}
	return t.Tx.AppendNotification(ctx, n)
}

func (t failingTx) MarkReminded(ctx context.Context, id string, at time.Time) error {
	if t.failOn == "reminded" {
		return errDiskFull
	}
	return t.Tx.MarkReminded(ctx, id, at)
}

// staleStore serves a fixed snapshot from LoadUser while writes go to the
// live store, as if another pass committed in between.
type staleStore struct {
	*memory.Store
	snapshot core.User
}

func (s staleStore) LoadUser(_ context.Context, _ string) (core.User, error) {
	return s.snapshot, nil
}
