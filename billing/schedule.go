/*
schedule.go - Recurring-schedule date arithmetic

PURPOSE:
  Computes the next billing date for a recurring schedule, and the next
  fire time of the daily sweep from a cron-style expression in a named
  timezone. Both are pure functions over a frozen "now" so tests never
  depend on the wall clock or the host machine's local time.

CLAMPING:
  A billingDayOfMonth of 31 in February yields Feb 28 (29 in a leap year);
  in a 30-day month it yields the 30th. Month/quarter/year advances always
  re-clamp the day against the new month's length.

SEE ALSO:
  - date.go: ClampDay and calendar helpers
  - api/scheduler.go: drives the sweep from NextFireTime
*/
package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleInput is the subset of a ScheduledBilling that drives date math.
type ScheduleInput struct {
	BillingDayOfMonth int
	Frequency         Frequency
	StartDate         Date
	SkipCurrent       bool
	CustomValue       int
	CustomUnit        CustomUnit
}

// NextBillingDate returns the next date the schedule should bill, evaluated
// against a frozen now. Pure and deterministic.
//
// The candidate is billingDayOfMonth in now's month, clamped to the month
// length. If the candidate predates StartDate it is rebased into StartDate's
// month. A candidate on/before now (or SkipCurrent) advances by one period.
func NextBillingDate(in ScheduleInput, now Date) Date {
	candidate := ClampDay(now.Year(), now.Month(), in.BillingDayOfMonth)

	if candidate.Before(in.StartDate) {
		candidate = ClampDay(in.StartDate.Year(), in.StartDate.Month(), in.BillingDayOfMonth)
	}

	if candidate.After(now) && !in.SkipCurrent {
		return candidate
	}

	switch in.Frequency {
	case FreqMonthly:
		return advanceMonths(candidate, 1, in.BillingDayOfMonth)
	case FreqQuarterly:
		return advanceMonths(candidate, 3, in.BillingDayOfMonth)
	case FreqAnnually:
		return advanceMonths(candidate, 12, in.BillingDayOfMonth)
	case FreqCustom:
		if in.CustomUnit == CustomDays {
			return now.AddDays(in.CustomValue)
		}
		return advanceMonths(candidate, in.CustomValue, in.BillingDayOfMonth)
	default:
		return advanceMonths(candidate, 1, in.BillingDayOfMonth)
	}
}

// advanceMonths moves n months forward and re-clamps the anchor day against
// the new month's length. Anchored at the first of the month so a 31st never
// spills into the following month during the addition itself.
func advanceMonths(from Date, n int, anchorDay int) Date {
	m := StartOfMonth(from).AddMonths(n)
	return ClampDay(m.Year(), m.Month(), anchorDay)
}

// =============================================================================
// SWEEP FIRE TIME - cron-style daily trigger
// =============================================================================

// CronSpec is a parsed daily cron expression ("MIN HOUR * * *").
type CronSpec struct {
	Minute int
	Hour   int
}

// ParseCron parses the daily five-field form the sweep recognizes. The last
// three fields must be "*": the sweep runs every day and selects due
// schedules by day-of-month itself.
func ParseCron(expr string) (CronSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return CronSpec{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(fields))
	}
	for _, f := range fields[2:] {
		if f != "*" {
			return CronSpec{}, fmt.Errorf("cron %q: only daily expressions are supported", expr)
		}
	}
	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return CronSpec{}, fmt.Errorf("cron %q: invalid minute %q", expr, fields[0])
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return CronSpec{}, fmt.Errorf("cron %q: invalid hour %q", expr, fields[1])
	}
	return CronSpec{Minute: minute, Hour: hour}, nil
}

// NextFireTime returns the first instant strictly after now at which the
// spec fires in the given timezone. Pure over the frozen now.
func NextFireTime(spec CronSpec, loc *time.Location, now time.Time) time.Time {
	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), spec.Hour, spec.Minute, 0, 0, loc)
	if !fire.After(local) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
