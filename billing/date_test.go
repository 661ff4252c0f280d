package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/billing-engine/billing"
)

func TestClampDay_MonthBoundaries(t *testing.T) {
	assert.Equal(t, date(2025, time.February, 28), billing.ClampDay(2025, time.February, 31))
	assert.Equal(t, date(2024, time.February, 29), billing.ClampDay(2024, time.February, 31))
	assert.Equal(t, date(2025, time.April, 30), billing.ClampDay(2025, time.April, 31))
	assert.Equal(t, date(2025, time.July, 31), billing.ClampDay(2025, time.July, 31))
	assert.Equal(t, date(2025, time.July, 15), billing.ClampDay(2025, time.July, 15))
}

func TestPeriodFor_FrequencyBounds(t *testing.T) {
	// GIVEN: A mid-quarter date
	// WHEN: Computing the billing period per frequency
	// THEN: MONTHLY and CUSTOM share the calendar month; QUARTERLY and
	//       ANNUALLY use their calendar containers

	mid := date(2025, time.May, 17)

	monthly := billing.PeriodFor(billing.FreqMonthly, mid)
	assert.Equal(t, date(2025, time.May, 1), monthly.Start)
	assert.Equal(t, date(2025, time.May, 31), monthly.End)

	custom := billing.PeriodFor(billing.FreqCustom, mid)
	assert.Equal(t, monthly, custom)

	quarterly := billing.PeriodFor(billing.FreqQuarterly, mid)
	assert.Equal(t, date(2025, time.April, 1), quarterly.Start)
	assert.Equal(t, date(2025, time.June, 30), quarterly.End)

	annually := billing.PeriodFor(billing.FreqAnnually, mid)
	assert.Equal(t, date(2025, time.January, 1), annually.Start)
	assert.Equal(t, date(2025, time.December, 31), annually.End)
}

func TestPeriod_ContainsInclusiveBounds(t *testing.T) {
	p := billing.PeriodFor(billing.FreqMonthly, date(2025, time.May, 17))

	assert.True(t, p.Contains(date(2025, time.May, 1)))
	assert.True(t, p.Contains(date(2025, time.May, 31)))
	assert.False(t, p.Contains(date(2025, time.April, 30)))
	assert.False(t, p.Contains(date(2025, time.June, 1)))
}

func TestDateOf_StripsTimeAndZone(t *testing.T) {
	// GIVEN: An instant late in the Manila evening
	// WHEN: Truncating to a Date
	// THEN: The calendar day is taken from the instant's own zone

	manila, _ := time.LoadLocation("Asia/Manila")
	evening := time.Date(2025, time.May, 31, 23, 45, 0, 0, manila)

	assert.Equal(t, date(2025, time.May, 31), billing.DateOf(evening))
	assert.Equal(t, date(2025, time.May, 31), billing.DateOf(evening.In(manila)))
}

func TestDaysBetween_SignedWholeDays(t *testing.T) {
	assert.Equal(t, 14, billing.DaysBetween(date(2025, time.May, 1), date(2025, time.May, 15)))
	assert.Equal(t, -14, billing.DaysBetween(date(2025, time.May, 15), date(2025, time.May, 1)))
	assert.Equal(t, 0, billing.DaysBetween(date(2025, time.May, 1), date(2025, time.May, 1)))
}
