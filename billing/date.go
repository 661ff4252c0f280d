package billing

import "time"

// =============================================================================
// DATE - day-granularity time abstraction
// =============================================================================

// Date is a calendar day. Stored as an absolute instant at UTC midnight so
// day-of-month comparisons never drift with the host timezone. All engine
// date math goes through this type.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day (time components zeroed).
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day in the given location.
// Callers that need determinism pass a frozen now through DateOf instead.
func Today(loc *time.Location) Date {
	now := time.Now().In(loc)
	return NewDate(now.Year(), now.Month(), now.Day())
}

// Comparison
func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return d.Before(o) || d.Equal(o) }
func (d Date) AfterOrEqual(o Date) bool  { return d.After(o) || d.Equal(o) }
func (d Date) IsZero() bool              { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DaysBetween returns the whole-day difference to - from. Negative when to
// precedes from.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}

// ClampDay builds a date at day-of-month, clamped to the month's last valid
// day (day 31 in February yields Feb 28, or 29 in a leap year).
func ClampDay(year int, month time.Month, day int) Date {
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(year, month, day)
}

func StartOfMonth(d Date) Date { return NewDate(d.Year(), d.Month(), 1) }
func EndOfMonth(d Date) Date   { return NewDate(d.Year(), d.Month(), DaysInMonth(d.Year(), d.Month())) }

// StartOfQuarter returns the first day of the calendar quarter containing d.
func StartOfQuarter(d Date) Date {
	q := (int(d.Month()) - 1) / 3
	return NewDate(d.Year(), time.Month(q*3+1), 1)
}

func EndOfQuarter(d Date) Date {
	return StartOfQuarter(d).AddMonths(3).AddDays(-1)
}

func StartOfYear(d Date) Date { return NewDate(d.Year(), time.January, 1) }
func EndOfYear(d Date) Date   { return NewDate(d.Year(), time.December, 31) }

// =============================================================================
// PERIOD - bounding interval for duplicate-invoice detection
// =============================================================================

// Period is an inclusive calendar interval. A schedule's period is the
// idempotency key for duplicate-invoice prevention.
type Period struct {
	Start Date
	End   Date
}

// Contains reports whether d falls within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodFor returns the period covering d for a given billing frequency:
// the calendar month for MONTHLY, calendar quarter for QUARTERLY, calendar
// year for ANNUALLY. CUSTOM schedules approximate the period as the calendar
// month, matching how run history is keyed for them.
func PeriodFor(f Frequency, d Date) Period {
	switch f {
	case FreqQuarterly:
		return Period{Start: StartOfQuarter(d), End: EndOfQuarter(d)}
	case FreqAnnually:
		return Period{Start: StartOfYear(d), End: EndOfYear(d)}
	case FreqMonthly, FreqCustom:
		return Period{Start: StartOfMonth(d), End: EndOfMonth(d)}
	default:
		return Period{Start: StartOfMonth(d), End: EndOfMonth(d)}
	}
}
