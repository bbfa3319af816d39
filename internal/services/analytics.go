package services

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

type Analytics struct {
	users ports.UserReader
	clock func() time.Time
}

func NewAnalytics(users ports.UserReader) *Analytics {
	return &Analytics{users: users, clock: time.Now}
}

// MonthSummary totals the user's transactions for year and month, with month
// boundaries in the clock's location.
func (a *Analytics) MonthSummary(ctx context.Context, userID string, year int, month time.Month) (core.MonthSummary, error) {
	if month < time.January || month > time.December {
		return core.MonthSummary{}, fmt.Errorf("invalid month %d", month)
	}
	user, err := a.users.LoadUser(ctx, userID)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return core.SummarizeMonth(user.Transactions, year, month, a.clock().Location()), nil
}

// CurrentMonth is MonthSummary for the month containing now.
func (a *Analytics) CurrentMonth(ctx context.Context, userID string) (core.MonthSummary, error) {
	now := a.clock()
	return a.MonthSummary(ctx, userID, now.Year(), now.Month())
}
