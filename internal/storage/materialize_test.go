package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var utilities = core.Category{Name: "Utilities", Sign: core.SignExpense, Type: core.CategoryExpense}

func newMaterializerRepo(t *testing.T, day, count, pushed int) *storage.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.CreateUser(ctx, core.User{
		ID:         "u1",
		Name:       "Ada",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Categories: []core.Category{utilities},
	}))
	require.NoError(t, repo.AddRecurring(ctx, core.RecurringDefinition{
		ID:                "d1",
		UserID:            "u1",
		Amount:            core.MustAmount("-80"),
		Note:              "power",
		Category:          utilities,
		Schedule:          core.MonthlySchedule(day),
		TotalOccurrences:  count,
		OccurrencesPushed: pushed,
		CreatedAt:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	return repo
}

func TestMaterializeOnSQLite_MatchThenSameDayNoOp(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name  string
		first time.Time
		later time.Time
	}{
		{
			name:  "utc",
			first: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
			later: time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC),
		},
		{
			// 00:30 in Rome is still Mar 14 in UTC.
			name:  "rome after midnight",
			first: time.Date(2024, 3, 15, 0, 30, 0, 0, rome),
			later: time.Date(2024, 3, 15, 23, 30, 0, 0, rome),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMaterializerRepo(t, 15, 3, 0)
			m := services.NewRecurringMaterializer(repo)

			res, err := m.Materialize(ctx, "u1", tt.first)
			require.NoError(t, err)
			assert.True(t, res.Matched)
			require.Len(t, res.Created, 1)

			u, err := repo.LoadUser(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, u.Transactions, 1)
			require.Len(t, u.Notifications, 1)
			assert.Equal(t, "d1", u.Transactions[0].SourceDefinitionID)
			assert.NotEqual(t, "d1", u.Transactions[0].ID)
			assert.Equal(t, 1, u.RecurringDefinitions[0].OccurrencesPushed)
			require.NotNil(t, u.RecurringDefinitions[0].LastMaterializedAt)
			assert.True(t, core.SameDay(*u.RecurringDefinitions[0].LastMaterializedAt, tt.first))

			res, err = m.Materialize(ctx, "u1", tt.later)
			require.NoError(t, err)
			assert.False(t, res.Matched)
			assert.Equal(t, services.MessageNoMatch, res.Message)

			after, err := repo.LoadUser(ctx, "u1")
			require.NoError(t, err)
			assert.Len(t, after.Transactions, 1)
			assert.Len(t, after.Notifications, 1)
			assert.Equal(t, 1, after.RecurringDefinitions[0].OccurrencesPushed)
		})
	}
}

func TestMaterializeOnSQLite_NextDayInRomeMatchesAgain(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	ctx := context.Background()

	repo := newMaterializerRepo(t, 15, 3, 0)
	require.NoError(t, repo.AddRecurring(ctx, core.RecurringDefinition{
		ID:               "d2",
		UserID:           "u1",
		Amount:           core.MustAmount("-3"),
		Category:         utilities,
		Schedule:         core.DailySchedule(),
		TotalOccurrences: 5,
		CreatedAt:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	m := services.NewRecurringMaterializer(repo)

	// Both instants fall on Mar 15 in UTC but on different days in Rome.
	_, err = m.Materialize(ctx, "u1", time.Date(2024, 3, 15, 0, 30, 0, 0, rome).Add(time.Hour))
	require.NoError(t, err)
	res, err := m.Materialize(ctx, "u1", time.Date(2024, 3, 16, 0, 30, 0, 0, rome))
	require.NoError(t, err)
	assert.True(t, res.Matched)

	u, err := repo.LoadUser(ctx, "u1")
	require.NoError(t, err)
	for _, d := range u.RecurringDefinitions {
		if d.ID == "d2" {
			assert.Equal(t, 2, d.OccurrencesPushed)
		}
	}
}

func TestMaterializeOnSQLite_ExhaustedNeverMatches(t *testing.T) {
	ctx := context.Background()
	repo := newMaterializerRepo(t, 15, 1, 1)
	m := services.NewRecurringMaterializer(repo)

	res, err := m.Materialize(ctx, "u1", time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, res.Matched)

	u, err := repo.LoadUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, u.Transactions)
}

func TestMaterializeOnSQLite_MonthEndClampInLeapFebruary(t *testing.T) {
	ctx := context.Background()
	repo := newMaterializerRepo(t, 31, 3, 0)
	m := services.NewRecurringMaterializer(repo)

	res, err := m.Materialize(ctx, "u1", time.Date(2024, 2, 28, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, res.Matched)

	res, err = m.Materialize(ctx, "u1", time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, res.Matched)

	u, err := repo.LoadUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, u.Transactions, 1)
	assert.Equal(t, 1, u.RecurringDefinitions[0].OccurrencesPushed)
}
