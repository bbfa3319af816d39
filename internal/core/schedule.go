package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   ScheduleKind = "daily"
	Weekly  ScheduleKind = "weekly"
	Monthly ScheduleKind = "monthly"
	Yearly  ScheduleKind = "yearly"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrUnknownSchedule = errors.New("unknown schedule kind")
)

type (
	ScheduleKind string

	// Schedule is a tagged union keyed by Kind. Only the fields relevant to
	// the kind are meaningful: Weekday for weekly, DayOfMonth for monthly,
	// Month and DayOfMonth for yearly.
	Schedule struct {
		Kind       ScheduleKind `json:"kind"`
		Weekday    string       `json:"weekday,omitempty"`
		DayOfMonth int          `json:"day_of_month,omitempty"`
		Month      int          `json:"month,omitempty"`
	}
)

// legacyIntervals maps the labels stored by older clients to schedule kinds.
var legacyIntervals = map[string]ScheduleKind{
	"every day":   Daily,
	"every week":  Weekly,
	"every month": Monthly,
	"every year":  Yearly,
}

// ParseScheduleKind accepts both canonical kinds ("monthly") and the legacy
// interval labels ("Every month"). Unrecognized input is returned as-is so
// callers can decide whether to reject or skip it.
func ParseScheduleKind(s string) ScheduleKind {
	norm := strings.ToLower(strings.TrimSpace(s))
	if k, ok := legacyIntervals[norm]; ok {
		return k
	}
	return ScheduleKind(norm)
}

func (k ScheduleKind) Known() bool {
	switch k {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func DailySchedule() Schedule {
	return Schedule{Kind: Daily}
}

func WeeklySchedule(weekday time.Weekday) Schedule {
	return Schedule{Kind: Weekly, Weekday: weekday.String()}
}

func MonthlySchedule(dayOfMonth int) Schedule {
	return Schedule{Kind: Monthly, DayOfMonth: dayOfMonth}
}

func YearlySchedule(month time.Month, dayOfMonth int) Schedule {
	return Schedule{Kind: Yearly, Month: int(month), DayOfMonth: dayOfMonth}
}

func (s Schedule) Validate() error {
	switch s.Kind {
	case Daily:
		return nil
	case Weekly:
		if _, ok := ParseWeekday(s.Weekday); !ok {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, s.Weekday)
		}
	case Monthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d out of range", ErrInvalidSchedule, s.DayOfMonth)
		}
	case Yearly:
		if s.Month < 1 || s.Month > 12 {
			return fmt.Errorf("%w: month %d out of range", ErrInvalidSchedule, s.Month)
		}
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d out of range", ErrInvalidSchedule, s.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSchedule, s.Kind)
	}
	return nil
}

// ParseWeekday resolves an English weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.TrimSpace(name)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, true
		}
	}
	return time.Sunday, false
}

// ResolveMonthlyDate returns the given day of (year, month). A day past the
// end of the month resolves to the month's last day; a day below 1 resolves
// to the first.
func ResolveMonthlyDate(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
