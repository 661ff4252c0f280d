package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
)

func newScheduleService(r *rig) *invoicing.ScheduleService {
	svc := invoicing.NewScheduleService(r.store, zerolog.Nop())
	svc.Now = clock
	return svc
}

func TestScheduleApprove_Pending_ActivatesAndComputesFirstBilling(t *testing.T) {
	// GIVEN: A pending day-15 schedule, approved on June 10
	// WHEN: Approving
	// THEN: ACTIVE with the first billing on June 15

	r := newRig(t)
	ctx := context.Background()
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	sched.Status = billing.SchedulePending
	sched.NextBillingDate = billing.Date{}
	require.NoError(t, r.store.SaveSchedule(ctx, sched))
	svc := newScheduleService(r)

	got, err := svc.Approve(ctx, sched.ID, date(2025, time.June, 10))

	require.NoError(t, err)
	assert.Equal(t, billing.ScheduleActive, got.Status)
	assert.Equal(t, date(2025, time.June, 15), got.NextBillingDate)
}

func TestScheduleApprove_AlreadyActive_Rejected(t *testing.T) {
	r := newRig(t)
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	svc := newScheduleService(r)

	_, err := svc.Approve(context.Background(), sched.ID, date(2025, time.June, 10))

	assert.Error(t, err)
}

func TestScheduleReject_Pending_EndsWithDate(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	sched.Status = billing.SchedulePending
	require.NoError(t, r.store.SaveSchedule(ctx, sched))
	svc := newScheduleService(r)

	got, err := svc.Reject(ctx, sched.ID, date(2025, time.June, 10))

	require.NoError(t, err)
	assert.Equal(t, billing.ScheduleEnded, got.Status)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, date(2025, time.June, 10), *got.EndDate)
}

func TestSchedulePauseResume_RecomputesNextBilling(t *testing.T) {
	// GIVEN: A schedule paused before its June 15 billing
	// WHEN: Resuming months later, in September
	// THEN: The next billing date lands in the future, never in the past

	r := newRig(t)
	ctx := context.Background()
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	svc := newScheduleService(r)

	paused, err := svc.Pause(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SchedulePaused, paused.Status)

	resumed, err := svc.Resume(ctx, sched.ID, date(2025, time.September, 20))
	require.NoError(t, err)
	assert.Equal(t, billing.ScheduleActive, resumed.Status)
	assert.Equal(t, date(2025, time.October, 15), resumed.NextBillingDate)
}

func TestSchedulePause_NotActive_Rejected(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	svc := newScheduleService(r)

	_, err := svc.End(ctx, sched.ID, date(2025, time.June, 10))
	require.NoError(t, err)

	_, err = svc.Pause(ctx, sched.ID)
	assert.Error(t, err)
}

func TestScheduleEnd_PreservesExplicitEndDate(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	sched := seedSchedule(t, r, "sched-1", billing.FreqMonthly, false, false)
	explicit := date(2025, time.December, 31)
	sched.EndDate = &explicit
	require.NoError(t, r.store.SaveSchedule(ctx, sched))
	svc := newScheduleService(r)

	got, err := svc.End(ctx, sched.ID, date(2025, time.June, 10))

	require.NoError(t, err)
	assert.Equal(t, billing.ScheduleEnded, got.Status)
	assert.Equal(t, explicit, *got.EndDate)
}
