package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
)

func appendRun(t *testing.T, r *rig, sched *billing.ScheduledBilling, day billing.Date, outcome billing.RunOutcome, invoiceID billing.InvoiceID) {
	t.Helper()
	require.NoError(t, r.store.AppendRun(context.Background(), billing.ScheduledBillingRun{
		ID:         billing.RunID("run-" + string(outcome) + "-" + day.String()),
		ScheduleID: sched.ID,
		RunDate:    day,
		Outcome:    outcome,
		InvoiceID:  invoiceID,
		CreatedAt:  frozenNow,
	}))
}

func TestAlreadyBilled_NoRunHistory_PeriodOpen(t *testing.T) {
	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 15))

	require.NoError(t, err)
	assert.False(t, billed)
}

func TestAlreadyBilled_SuccessRunInPeriod_Billed(t *testing.T) {
	// GIVEN: A SUCCESS run earlier in the month, linked to a live invoice
	// WHEN: Checking later in the same month
	// THEN: The period counts as billed

	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	inv := seedSentInvoice(t, r, "inv-1")
	appendRun(t, r, sched, date(2025, time.June, 2), billing.RunSuccess, inv.ID)
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 20))

	require.NoError(t, err)
	assert.True(t, billed)
}

func TestAlreadyBilled_VoidedInvoice_PermitsRegeneration(t *testing.T) {
	// GIVEN: The period's only SUCCESS run points at a since-voided invoice
	// WHEN: Checking the same period
	// THEN: Regeneration is permitted

	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	inv := seedSentInvoice(t, r, "inv-1")
	require.NoError(t, billing.Void(inv, "wrong amount", frozenNow))
	require.NoError(t, r.store.UpdateInvoice(context.Background(), inv))
	appendRun(t, r, sched, date(2025, time.June, 2), billing.RunSuccess, inv.ID)
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 20))

	require.NoError(t, err)
	assert.False(t, billed)
}

func TestAlreadyBilled_SuccessRunWithoutInvoice_TreatedAsBilled(t *testing.T) {
	// GIVEN: A SUCCESS run with no linked invoice (should not happen)
	// WHEN: Checking the period
	// THEN: The guard errs on the side of not double-invoicing

	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	appendRun(t, r, sched, date(2025, time.June, 2), billing.RunSuccess, "")
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 20))

	require.NoError(t, err)
	assert.True(t, billed)
}

func TestAlreadyBilled_FailedAndSkippedRuns_DoNotCount(t *testing.T) {
	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	appendRun(t, r, sched, date(2025, time.June, 2), billing.RunFailed, "")
	appendRun(t, r, sched, date(2025, time.June, 3), billing.RunSkipped, "")
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 20))

	require.NoError(t, err)
	assert.False(t, billed)
}

func TestAlreadyBilled_PreviousPeriodRun_DoesNotCount(t *testing.T) {
	// GIVEN: A SUCCESS run on the last day of May
	// WHEN: Checking June
	// THEN: Monthly periods are calendar months; May's run is irrelevant

	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	inv := seedSentInvoice(t, r, "inv-1")
	appendRun(t, r, sched, date(2025, time.May, 31), billing.RunSuccess, inv.ID)
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.False(t, billed)
}

func TestAlreadyBilled_QuarterlySchedule_QuarterWide(t *testing.T) {
	// GIVEN: A quarterly schedule billed in April
	// WHEN: Checking in June (same Q2)
	// THEN: The whole quarter counts as billed

	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqQuarterly, false, false)
	inv := seedSentInvoice(t, r, "inv-1")
	appendRun(t, r, sched, date(2025, time.April, 15), billing.RunSuccess, inv.ID)
	guard := &invoicing.Guard{Repo: r.store}

	billed, err := guard.AlreadyBilled(context.Background(), sched, date(2025, time.June, 15))

	require.NoError(t, err)
	assert.True(t, billed)
}
