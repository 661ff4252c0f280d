package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(y int, m time.Month, d int) billing.Date {
	return billing.NewDate(y, m, d)
}

func seedSchedule(t *testing.T, store *sqlite.Store, id string, end *billing.Date) {
	t.Helper()
	sched := &billing.ScheduledBilling{
		ID:                billing.ScheduleID(id),
		ContractID:        "contract-1",
		EntityID:          "acme",
		Amount:            decimal.NewFromInt(10000),
		VATType:           billing.VATRegistered,
		WithholdingRate:   decimal.Zero,
		Frequency:         billing.FreqMonthly,
		BillingDayOfMonth: 15,
		DueDayOfMonth:     30,
		StartDate:         date(2025, time.January, 1),
		EndDate:           end,
		NextBillingDate:   date(2025, time.June, 15),
		Status:            billing.ScheduleActive,
	}
	require.NoError(t, store.SaveSchedule(context.Background(), sched))
}

func TestListDueSchedules_EndDateBoundary(t *testing.T) {
	// GIVEN: Schedules ending on the query day, the day after, and never
	// WHEN: Listing schedules due that day
	// THEN: Only schedules whose [start, end) window still covers the day
	//       are returned; the end day itself is outside the window

	store := newStore(t)
	onDay := date(2025, time.June, 15)
	endsToday := onDay
	endsTomorrow := onDay.AddDays(1)
	seedSchedule(t, store, "sched-ends-today", &endsToday)
	seedSchedule(t, store, "sched-ends-tomorrow", &endsTomorrow)
	seedSchedule(t, store, "sched-open-ended", nil)

	due, err := store.ListDueSchedules(context.Background(), onDay)
	require.NoError(t, err)

	ids := make([]billing.ScheduleID, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []billing.ScheduleID{"sched-ends-tomorrow", "sched-open-ended"}, ids)
}

func TestListDueSchedules_BeforeStartDate_Excluded(t *testing.T) {
	store := newStore(t)
	seedSchedule(t, store, "sched-1", nil)

	due, err := store.ListDueSchedules(context.Background(), date(2024, time.December, 15))
	require.NoError(t, err)

	assert.Empty(t, due)
}
