/*
schedules.go - Scheduled billing lifecycle

PURPOSE:
  Schedules are created PENDING and only bill once explicitly approved.
  Pausing stops the sweep from picking a schedule up; resuming recomputes
  the next billing date against today so a long pause never leaves the
  date in the past. Ending (or rejecting) is terminal and stamps EndDate.
*/
package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
)

// ScheduleService governs ScheduledBilling status changes.
type ScheduleService struct {
	Repo   billing.Repository
	Logger zerolog.Logger
	Now    func() time.Time
}

func NewScheduleService(repo billing.Repository, logger zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		Repo:   repo,
		Logger: logger.With().Str("component", "schedules").Logger(),
		Now:    time.Now,
	}
}

func (ss *ScheduleService) get(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
	sched, err := ss.Repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", id, err)
	}
	return sched, nil
}

// Approve activates a PENDING schedule and computes its first billing date.
func (ss *ScheduleService) Approve(ctx context.Context, id billing.ScheduleID, today billing.Date) (*billing.ScheduledBilling, error) {
	sched, err := ss.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != billing.SchedulePending {
		return nil, fmt.Errorf("schedule %s: cannot approve from %s", id, sched.Status)
	}
	sched.Status = billing.ScheduleActive
	sched.NextBillingDate = billing.NextBillingDate(scheduleInput(sched, false), today)
	return ss.save(ctx, sched)
}

// Reject ends a PENDING schedule before it ever bills. Terminal.
func (ss *ScheduleService) Reject(ctx context.Context, id billing.ScheduleID, today billing.Date) (*billing.ScheduledBilling, error) {
	sched, err := ss.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != billing.SchedulePending {
		return nil, fmt.Errorf("schedule %s: cannot reject from %s", id, sched.Status)
	}
	return ss.end(ctx, sched, today)
}

// Pause suspends an ACTIVE schedule.
func (ss *ScheduleService) Pause(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
	sched, err := ss.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != billing.ScheduleActive {
		return nil, fmt.Errorf("schedule %s: cannot pause from %s", id, sched.Status)
	}
	sched.Status = billing.SchedulePaused
	return ss.save(ctx, sched)
}

// Resume reactivates a PAUSED schedule, recomputing NextBillingDate so it
// never resumes with a due date in the past.
func (ss *ScheduleService) Resume(ctx context.Context, id billing.ScheduleID, today billing.Date) (*billing.ScheduledBilling, error) {
	sched, err := ss.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != billing.SchedulePaused {
		return nil, fmt.Errorf("schedule %s: cannot resume from %s", id, sched.Status)
	}
	sched.Status = billing.ScheduleActive
	sched.NextBillingDate = billing.NextBillingDate(scheduleInput(sched, false), today)
	return ss.save(ctx, sched)
}

// End terminates an ACTIVE or PAUSED schedule. Terminal.
func (ss *ScheduleService) End(ctx context.Context, id billing.ScheduleID, today billing.Date) (*billing.ScheduledBilling, error) {
	sched, err := ss.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != billing.ScheduleActive && sched.Status != billing.SchedulePaused {
		return nil, fmt.Errorf("schedule %s: cannot end from %s", id, sched.Status)
	}
	return ss.end(ctx, sched, today)
}

func (ss *ScheduleService) end(ctx context.Context, sched *billing.ScheduledBilling, today billing.Date) (*billing.ScheduledBilling, error) {
	sched.Status = billing.ScheduleEnded
	if sched.EndDate == nil {
		sched.EndDate = &today
	}
	return ss.save(ctx, sched)
}

func (ss *ScheduleService) save(ctx context.Context, sched *billing.ScheduledBilling) (*billing.ScheduledBilling, error) {
	sched.UpdatedAt = ss.Now()
	if err := ss.Repo.SaveSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("schedule %s: persist: %w", sched.ID, err)
	}
	ss.Logger.Info().
		Str("schedule", string(sched.ID)).
		Str("status", string(sched.Status)).
		Str("next_billing", sched.NextBillingDate.String()).
		Msg("schedule updated")
	return sched, nil
}

func scheduleInput(s *billing.ScheduledBilling, skipCurrent bool) billing.ScheduleInput {
	return billing.ScheduleInput{
		BillingDayOfMonth: s.BillingDayOfMonth,
		Frequency:         s.Frequency,
		StartDate:         s.StartDate,
		SkipCurrent:       skipCurrent,
		CustomValue:       s.CustomValue,
		CustomUnit:        s.CustomUnit,
	}
}
