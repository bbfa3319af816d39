package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
)

func loadDef(t *testing.T, s *memory.Store, id string) core.RecurringDefinition {
	t.Helper()
	u, err := s.LoadUser(context.Background(), "u1")
	require.NoError(t, err)
	for _, d := range u.RecurringDefinitions {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("definition %s not found", id)
	return core.RecurringDefinition{}
}

func TestMaterialize_MonthlyMatch(t *testing.T) {
	ctx := context.Background()
	store := seededStore(monthlyRent("d1", 15, 3, 0))
	pub := &recordingPublisher{}
	exp := &recordingExporter{}
	m := NewRecurringMaterializer(store, WithPublisher(pub), WithExporter(exp), WithIDGenerator(sequentialIDs("id")))
	now := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	res, err := m.Materialize(ctx, "u1", now)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, MessageProcessed, res.Message)
	require.Len(t, res.Created, 1)

	u, err := store.LoadUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u.Transactions, 1)
	require.Len(t, u.Notifications, 1)

	txn := u.Transactions[0]
	assert.NotEqual(t, "d1", txn.ID)
	assert.Equal(t, "d1", txn.SourceDefinitionID)
	assert.True(t, txn.PushedIntoTransactions)
	assert.Equal(t, "-950.00", txn.Amount.String())
	assert.Equal(t, "rent", txn.Note)
	assert.Equal(t, rent, txn.Category)
	assert.True(t, txn.CreatedAt.Equal(now))

	n := u.Notifications[0]
	assert.Equal(t, core.RecurringNotificationHeader, n.Header)
	assert.Equal(t, core.NotificationRecurring, n.Type)
	assert.False(t, n.Read)
	assert.Equal(t, txn.ID, n.Transaction.ID)

	def := u.RecurringDefinitions[0]
	assert.Equal(t, 1, def.OccurrencesPushed)
	require.NotNil(t, def.LastMaterializedAt)
	assert.True(t, core.SameDay(*def.LastMaterializedAt, now))

	assert.Len(t, pub.sent, 1)
	assert.Len(t, exp.exported, 1)
}

func TestMaterialize_SecondCallSameDayIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := seededStore(monthlyRent("d1", 15, 3, 0))
	m := NewRecurringMaterializer(store)
	now := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	_, err := m.Materialize(ctx, "u1", now)
	require.NoError(t, err)
	before, err := store.LoadUser(ctx, "u1")
	require.NoError(t, err)

	res, err := m.Materialize(ctx, "u1", now.Add(6*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, MessageNoMatch, res.Message)

	after, err := store.LoadUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMaterialize_ExhaustedNeverMatches(t *testing.T) {
	ctx := context.Background()
	def := monthlyRent("d1", 15, 1, 1)
	def.Schedule = core.DailySchedule()
	store := seededStore(def)
	m := NewRecurringMaterializer(store)

	for d := 1; d <= 31; d++ {
		res, err := m.Materialize(ctx, "u1", time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, res.Matched, "day %d", d)
	}
	assert.Equal(t, 1, loadDef(t, store, "d1").OccurrencesPushed)
}

func TestMaterialize_MonthlyClampsInLeapFebruary(t *testing.T) {
	store := seededStore(monthlyRent("d1", 31, 12, 0))
	m := NewRecurringMaterializer(store)

	res, err := m.Materialize(context.Background(), "u1", time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestMaterialize_ScheduleKinds(t *testing.T) {
	monday := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		schedule core.Schedule
		now      time.Time
		want     bool
	}{
		{"daily", core.DailySchedule(), monday, true},
		{"weekly on monday", core.WeeklySchedule(time.Monday), monday, true},
		{"weekly not monday", core.WeeklySchedule(time.Monday), monday.AddDate(0, 0, 1), false},
		{"monthly 31 on April 30", core.MonthlySchedule(31), time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), true},
		{"yearly Feb 29 leap", core.YearlySchedule(time.February, 29), time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), true},
		{"yearly Feb 29 common", core.YearlySchedule(time.February, 29), time.Date(2023, 2, 28, 9, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := monthlyRent("d1", 1, 5, 0)
			def.Schedule = tt.schedule
			m := NewRecurringMaterializer(seededStore(def))

			res, err := m.Materialize(context.Background(), "u1", tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Matched)
		})
	}
}

func TestMaterialize_UnknownScheduleSkipped(t *testing.T) {
	ctx := context.Background()
	odd := monthlyRent("odd", 1, 5, 0)
	odd.Schedule = core.Schedule{Kind: "fortnightly"}
	daily := monthlyRent("daily", 1, 5, 0)
	daily.Schedule = core.DailySchedule()
	store := seededStore(odd, daily)
	m := NewRecurringMaterializer(store)

	res, err := m.Materialize(ctx, "u1", time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "daily", res.Created[0].SourceDefinitionID)
	assert.Equal(t, 0, loadDef(t, store, "odd").OccurrencesPushed)
}

func TestMaterialize_UserNotFound(t *testing.T) {
	m := NewRecurringMaterializer(memory.New())

	res, err := m.Materialize(context.Background(), "ghost", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUserNotFound))
	assert.False(t, res.Matched)
}

func TestMaterialize_RollbackOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	a := monthlyRent("a", 15, 3, 0)
	b := monthlyRent("b", 15, 3, 0)
	store := seededStore(a, b)
	pub := &recordingPublisher{}
	m := NewRecurringMaterializer(failingStore{Store: store, failOn: "notification"}, WithPublisher(pub))

	_, err := m.Materialize(ctx, "u1", time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)

	u, err := store.LoadUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, u.Transactions)
	assert.Empty(t, u.Notifications)
	for _, d := range u.RecurringDefinitions {
		assert.Equal(t, 0, d.OccurrencesPushed, d.ID)
		assert.Nil(t, d.LastMaterializedAt, d.ID)
	}
	assert.Empty(t, pub.sent)
}

func TestMaterialize_ConflictOnStaleCounters(t *testing.T) {
	ctx := context.Background()
	def := monthlyRent("d1", 15, 3, 0)
	store := seededStore(def)
	snapshot, err := store.LoadUser(ctx, "u1")
	require.NoError(t, err)

	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	_, err = NewRecurringMaterializer(store).Materialize(ctx, "u1", now)
	require.NoError(t, err)

	stale := NewRecurringMaterializer(staleStore{Store: store, snapshot: snapshot})
	_, err = stale.Materialize(ctx, "u1", now.Add(time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConflict)

	u, err := store.LoadUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, u.Transactions, 1)
	assert.Equal(t, 1, u.RecurringDefinitions[0].OccurrencesPushed)
}

func TestMaterialize_SideEffectFailuresDoNotFailPass(t *testing.T) {
	store := seededStore(monthlyRent("d1", 15, 3, 0))
	m := NewRecurringMaterializer(store,
		WithPublisher(&recordingPublisher{err: errors.New("broker down")}),
		WithExporter(&recordingExporter{err: errors.New("quota")}))

	res, err := m.Materialize(context.Background(), "u1", time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestMaterializeNow_UsesClock(t *testing.T) {
	store := seededStore(monthlyRent("d1", 15, 3, 0))
	fixed := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	m := NewRecurringMaterializer(store, WithClock(func() time.Time { return fixed }))

	res, err := m.MaterializeNow(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestMaterializeAll(t *testing.T) {
	ctx := context.Background()
	store := seededStore(monthlyRent("d1", 15, 3, 0))
	store.Seed(core.User{ID: "u2", Name: "Bob"})
	store.Seed(core.User{ID: "u3", Name: "Cy", RecurringDefinitions: []core.RecurringDefinition{
		{ID: "d3", UserID: "u3", Amount: core.MustAmount("2500"), Category: salary, Schedule: core.DailySchedule(), TotalOccurrences: 10},
	}})
	m := NewRecurringMaterializer(store)

	res, err := m.MaterializeAll(ctx, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Users: 3, Processed: 2, Created: 2, Failed: 0}, res)
}
