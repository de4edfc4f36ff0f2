package subscription

import (
	"fmt"
	"time"
)

// Period is the calendar billing cadence governing schedule advancement.
type Period uint8

const (
	PeriodNone Period = iota
	PeriodDaily
	PeriodWeekly
	PeriodMonthly
	PeriodQuarterly
	PeriodYearly
)

var periodNames = map[Period]string{
	PeriodNone:      "none",
	PeriodDaily:     "daily",
	PeriodWeekly:    "weekly",
	PeriodMonthly:   "monthly",
	PeriodQuarterly: "quarterly",
	PeriodYearly:    "yearly",
}

// String returns the lowercase period name.
func (p Period) String() string {
	if name, ok := periodNames[p]; ok {
		return name
	}
	return fmt.Sprintf("period(%d)", uint8(p))
}

// Valid reports whether p is a known period value.
func (p Period) Valid() bool {
	_, ok := periodNames[p]
	return ok
}

// ParsePeriod parses a period name ("daily", "monthly", ...).
func ParsePeriod(s string) (Period, error) {
	for p, name := range periodNames {
		if name == s {
			return p, nil
		}
	}
	return PeriodNone, fmt.Errorf("subscription: unknown period %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(data []byte) error {
	parsed, err := ParsePeriod(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Next advances a schedule anchor by one calendar period.
//
// Advancement is calendar-aware, not a fixed-duration increment: the anchor
// is first truncated to the start of its current period in UTC, then moved
// forward one whole period. Seeding each advance from the previous anchor
// (never from the processing time) keeps the schedule drift-free even when
// charges land late inside the grace window.
func (p Period) Next(from time.Time) time.Time {
	t := from.UTC()
	switch p {
	case PeriodDaily:
		return startOfDay(t).AddDate(0, 0, 1)
	case PeriodWeekly:
		return startOfISOWeek(t).AddDate(0, 0, 7)
	case PeriodMonthly:
		return startOfMonth(t).AddDate(0, 1, 0)
	case PeriodQuarterly:
		return startOfQuarter(t).AddDate(0, 3, 0)
	case PeriodYearly:
		return startOfYear(t).AddDate(1, 0, 0)
	default:
		return t
	}
}

// Start truncates a timestamp to the start of its current period in UTC.
func (p Period) Start(at time.Time) time.Time {
	t := at.UTC()
	switch p {
	case PeriodDaily:
		return startOfDay(t)
	case PeriodWeekly:
		return startOfISOWeek(t)
	case PeriodMonthly:
		return startOfMonth(t)
	case PeriodQuarterly:
		return startOfQuarter(t)
	case PeriodYearly:
		return startOfYear(t)
	default:
		return t
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfISOWeek truncates to the most recent Monday.
func startOfISOWeek(t time.Time) time.Time {
	day := startOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func startOfQuarter(t time.Time) time.Time {
	month := ((int(t.Month())-1)/3)*3 + 1
	return time.Date(t.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}
