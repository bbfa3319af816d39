// Package sheets defines the spreadsheet layout used to mirror realized
// transactions into an external ledger.
package sheets

import (
	"sort"
	"time"

	"fintrack/internal/core"
)

// Header is the first row of every ledger sheet.
var Header = []any{"Date", "User", "Note", "Amount", "Category", "Sign", "Person", "Transaction", "Recurring"}

// TransactionRow flattens t into the ledger column order.
func TransactionRow(t core.Transaction) []any {
	person := ""
	if t.Person != nil {
		person = t.Person.Name
	}
	return []any{
		t.CreatedAt.Format(time.DateOnly),
		t.UserID,
		t.Note,
		t.Amount.String(),
		t.Category.Name,
		t.Category.Sign,
		person,
		t.ID,
		t.SourceDefinitionID,
	}
}

// RowsByYear groups transactions by the year they were created in, keeping
// their relative order.
func RowsByYear(txns []core.Transaction) map[int][][]any {
	out := map[int][][]any{}
	for _, t := range txns {
		y := t.CreatedAt.Year()
		out[y] = append(out[y], TransactionRow(t))
	}
	return out
}

// Years returns the keys of a RowsByYear result in ascending order.
func Years(rows map[int][][]any) []int {
	years := make([]int, 0, len(rows))
	for y := range rows {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
