package services

import (
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestScheduleMatchers(t *testing.T) {
	tests := []struct {
		name     string
		schedule core.Schedule
		today    time.Time
		want     bool
	}{
		{"daily always", core.DailySchedule(), day(2024, 3, 15), true},
		{"weekly monday on monday", core.WeeklySchedule(time.Monday), day(2024, 1, 15), true},
		{"weekly monday on tuesday", core.WeeklySchedule(time.Monday), day(2024, 1, 16), false},
		{"weekly lowercase name", core.Schedule{Kind: core.Weekly, Weekday: "monday"}, day(2024, 1, 15), true},
		{"weekly bad name", core.Schedule{Kind: core.Weekly, Weekday: "Mon"}, day(2024, 1, 15), false},
		{"monthly exact day", core.MonthlySchedule(15), day(2024, 3, 15), true},
		{"monthly other day", core.MonthlySchedule(15), day(2024, 3, 16), false},
		{"monthly 31 in April fires on 30", core.MonthlySchedule(31), day(2024, 4, 30), true},
		{"monthly 31 in April not on 29", core.MonthlySchedule(31), day(2024, 4, 29), false},
		{"monthly 31 in leap February fires on 29", core.MonthlySchedule(31), day(2024, 2, 29), true},
		{"monthly 30 in common February fires on 28", core.MonthlySchedule(30), day(2023, 2, 28), true},
		{"yearly match", core.YearlySchedule(time.March, 15), day(2024, 3, 15), true},
		{"yearly wrong month", core.YearlySchedule(time.April, 15), day(2024, 3, 15), false},
		{"yearly Feb 29 in leap year", core.YearlySchedule(time.February, 29), day(2024, 2, 29), true},
		{"yearly Feb 29 not clamped in common year", core.YearlySchedule(time.February, 29), day(2023, 2, 28), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := GetScheduleMatcher(tt.schedule.Kind)
			if err != nil {
				t.Fatalf("GetScheduleMatcher(%q) error = %v", tt.schedule.Kind, err)
			}
			if got := m.Matches(tt.schedule, tt.today); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetScheduleMatcher(t *testing.T) {
	tests := []struct {
		kind    core.ScheduleKind
		want    ScheduleMatcher
		wantErr bool
	}{
		{core.Daily, DailyMatcher{}, false},
		{core.ScheduleKind("Every week"), WeeklyMatcher{}, false},
		{core.ScheduleKind("Every month"), MonthlyMatcher{}, false},
		{core.Yearly, YearlyMatcher{}, false},
		{core.ScheduleKind("hourly"), nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := GetScheduleMatcher(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetScheduleMatcher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, core.ErrUnknownSchedule) {
					t.Errorf("error = %v, want ErrUnknownSchedule", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("GetScheduleMatcher() = %T, want %T", got, tt.want)
			}
		})
	}
}

type fortnightMatcher struct{}

func (fortnightMatcher) Matches(_ core.Schedule, today time.Time) bool {
	return today.Day() == 1 || today.Day() == 15
}

func TestRegisterScheduleMatcher(t *testing.T) {
	kind := core.ScheduleKind("fortnightly")
	RegisterScheduleMatcher(kind, fortnightMatcher{})
	t.Cleanup(func() { delete(scheduleMatchers, kind) })

	m, err := GetScheduleMatcher(kind)
	if err != nil {
		t.Fatalf("GetScheduleMatcher() error = %v", err)
	}
	if !m.Matches(core.Schedule{Kind: kind}, day(2024, 5, 15)) {
		t.Errorf("custom matcher should fire on the 15th")
	}
}
