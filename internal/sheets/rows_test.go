package sheets

import (
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestTransactionRow(t *testing.T) {
	txn := core.Transaction{
		ID:                 "t1",
		UserID:             "u1",
		Note:               "rent",
		Amount:             core.MustAmount("-950"),
		Category:           core.Category{Name: "Housing", Sign: core.SignExpense},
		Person:             &core.Person{ID: "p1", Name: "Bob"},
		CreatedAt:          time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		SourceDefinitionID: "d1",
	}
	row := TransactionRow(txn)
	if len(row) != len(Header) {
		t.Fatalf("len(row) = %d, want %d", len(row), len(Header))
	}
	want := []any{"2024-03-15", "u1", "rent", "-950.00", "Housing", "-", "Bob", "t1", "d1"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("row[%d] = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestRowsByYear(t *testing.T) {
	txns := []core.Transaction{
		{ID: "a", Amount: core.MustAmount("1"), CreatedAt: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ID: "b", Amount: core.MustAmount("1"), CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "c", Amount: core.MustAmount("1"), CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	rows := RowsByYear(txns)
	years := Years(rows)
	if len(years) != 2 || years[0] != 2024 || years[1] != 2025 {
		t.Fatalf("Years() = %v, want [2024 2025]", years)
	}
	if len(rows[2024]) != 2 || rows[2024][1][7] != "c" {
		t.Errorf("rows[2024] = %v", rows[2024])
	}
}
