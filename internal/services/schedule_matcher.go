// Package services provides business logic and orchestration services.
//
// This file implements the strategy registry for recurring schedules. Each
// schedule kind has a matcher that decides whether a definition fires on a
// given calendar day.

package services

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// ScheduleMatcher decides whether a schedule fires on today's date. today is
// interpreted in its own location.
type ScheduleMatcher interface {
	Matches(s core.Schedule, today time.Time) bool
}

// DailyMatcher fires every day.
type DailyMatcher struct{}

func (DailyMatcher) Matches(_ core.Schedule, _ time.Time) bool {
	return true
}

// WeeklyMatcher fires when today's weekday equals the schedule's weekday.
type WeeklyMatcher struct{}

func (WeeklyMatcher) Matches(s core.Schedule, today time.Time) bool {
	wd, ok := core.ParseWeekday(s.Weekday)
	return ok && wd == today.Weekday()
}

// MonthlyMatcher fires on the schedule's day of month, clamped to the last
// day of short months.
type MonthlyMatcher struct{}

func (MonthlyMatcher) Matches(s core.Schedule, today time.Time) bool {
	target := core.ResolveMonthlyDate(today.Year(), today.Month(), s.DayOfMonth)
	return today.Day() == target.Day()
}

// YearlyMatcher fires when both month and day match. February 29 only fires
// in leap years.
type YearlyMatcher struct{}

func (YearlyMatcher) Matches(s core.Schedule, today time.Time) bool {
	return int(today.Month()) == s.Month && today.Day() == s.DayOfMonth
}

var scheduleMatchers = map[core.ScheduleKind]ScheduleMatcher{
	core.Daily:   DailyMatcher{},
	core.Weekly:  WeeklyMatcher{},
	core.Monthly: MonthlyMatcher{},
	core.Yearly:  YearlyMatcher{},
}

// GetScheduleMatcher returns the matcher registered for kind. Legacy interval
// labels such as "Every month" resolve to their canonical kind.
func GetScheduleMatcher(kind core.ScheduleKind) (ScheduleMatcher, error) {
	m, ok := scheduleMatchers[core.ParseScheduleKind(string(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSchedule, kind)
	}
	return m, nil
}

// RegisterScheduleMatcher adds or replaces the matcher for kind. It is not
// safe to call concurrently with GetScheduleMatcher.
func RegisterScheduleMatcher(kind core.ScheduleKind, m ScheduleMatcher) {
	scheduleMatchers[kind] = m
}
