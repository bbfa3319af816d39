package core

import (
	"sort"
	"time"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Sign   string `json:"sign"`
	Amount Amount `json:"amount"`
}

// MonthSummary is a compact summary for a specific year+month.
type MonthSummary struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Income     Amount           `json:"income"`
	Expense    Amount           `json:"expense"`
	Net        Amount           `json:"net"`
	ByCategory []CategoryAmount `json:"by_category"`
}

// SummarizeMonth sums the magnitudes of the transactions created in the given
// month, splitting them by category sign. Creation times are bucketed in loc
// (UTC when nil). Categories are ordered by name.
func SummarizeMonth(txns []Transaction, year int, month time.Month, loc *time.Location) MonthSummary {
	if loc == nil {
		loc = time.UTC
	}
	sum := MonthSummary{Year: year, Month: int(month)}
	byName := map[string]*CategoryAmount{}

	for _, t := range txns {
		y, m, _ := t.CreatedAt.In(loc).Date()
		if y != year || m != month {
			continue
		}
		mag := t.Amount.Magnitude()
		if t.Category.IsIncome() {
			sum.Income = sum.Income.Add(mag)
		} else {
			sum.Expense = sum.Expense.Add(mag)
		}
		ca, ok := byName[t.Category.Name]
		if !ok {
			ca = &CategoryAmount{Name: t.Category.Name, Sign: t.Category.Sign}
			byName[t.Category.Name] = ca
		}
		ca.Amount = ca.Amount.Add(mag)
	}

	sum.Net = sum.Income.Sub(sum.Expense)
	sum.ByCategory = make([]CategoryAmount, 0, len(byName))
	for _, ca := range byName {
		sum.ByCategory = append(sum.ByCategory, *ca)
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		return sum.ByCategory[i].Name < sum.ByCategory[j].Name
	})
	return sum
}
