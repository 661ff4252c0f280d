/*
sweep.go - Daily sweep over due schedules

PURPOSE:
  One sweep enumerates ACTIVE schedules due today, applies the period
  guard, generates an invoice per unbilled schedule, applies the
  auto-approve/auto-send frequency policy, advances the schedule's next
  billing date, and appends a ScheduledBillingRun for every outcome.

FAILURE ISOLATION:
  A schedule's failure is recorded as a FAILED run and the loop moves on.
  The aggregate JobRun completes COMPLETED with the error list attached;
  it is marked FAILED only when the sweep itself fails outside the
  per-schedule loop (e.g. the schedule listing query errors).

SEQUENCING:
  Schedules are processed strictly one at a time, so two schedules never
  race for the same entity's invoice-number counter within one sweep.
  The period guard is advisory: overlapping sweep invocations are not
  expected from the single in-process scheduler that drives this.

SEE ALSO:
  - guard.go: duplicate-period check
  - api/scheduler.go: drives Run on the configured cron time
*/
package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
)

// Sweep is the daily driver.
type Sweep struct {
	Repo      billing.Repository
	Guard     *Guard
	Generator *Generator
	Mailer    *Mailer
	Notifier  billing.Notifier
	Logger    zerolog.Logger
	Now       func() time.Time
}

func NewSweep(repo billing.Repository, gen *Generator, mailer *Mailer, notifier billing.Notifier, logger zerolog.Logger) *Sweep {
	return &Sweep{
		Repo:      repo,
		Guard:     &Guard{Repo: repo},
		Generator: gen,
		Mailer:    mailer,
		Notifier:  notifier,
		Logger:    logger.With().Str("component", "sweep").Logger(),
		Now:       time.Now,
	}
}

// Run executes one sweep for the given business-timezone day.
func (s *Sweep) Run(ctx context.Context, today billing.Date) (*billing.JobRun, error) {
	job := &billing.JobRun{
		ID:        billing.JobRunID(uuid.NewString()),
		Status:    billing.JobRunning,
		StartedAt: s.Now(),
	}
	if err := s.Repo.SaveJobRun(ctx, job); err != nil {
		return nil, fmt.Errorf("sweep: save job run: %w", err)
	}

	s.Logger.Info().Str("job", string(job.ID)).Str("day", today.String()).Msg("sweep started")

	schedules, err := s.Repo.ListDueSchedules(ctx, today)
	if err != nil {
		s.finish(ctx, job, billing.JobFailed, err)
		return job, fmt.Errorf("sweep: list due schedules: %w", err)
	}

	for i := range schedules {
		sched := &schedules[i]
		outcome, itemErr := s.processSchedule(ctx, sched, today)
		switch outcome {
		case billing.RunSuccess:
			job.Processed++
		case billing.RunSkipped:
			job.Skipped++
		case billing.RunFailed:
			job.Failed++
			job.Errors = append(job.Errors, fmt.Sprintf("%s: %v", sched.ID, itemErr))
		}
	}

	s.finish(ctx, job, billing.JobCompleted, nil)
	s.Logger.Info().
		Str("job", string(job.ID)).
		Int("processed", job.Processed).
		Int("skipped", job.Skipped).
		Int("failed", job.Failed).
		Msg("sweep completed")
	return job, nil
}

// processSchedule handles one schedule and records its run row. Errors are
// contained: every return path has already appended a ScheduledBillingRun.
func (s *Sweep) processSchedule(ctx context.Context, sched *billing.ScheduledBilling, today billing.Date) (billing.RunOutcome, error) {
	billed, err := s.Guard.AlreadyBilled(ctx, sched, today)
	if err != nil {
		s.appendRun(ctx, sched.ID, today, billing.RunFailed, "", err)
		return billing.RunFailed, err
	}
	if billed {
		s.Logger.Debug().Str("schedule", string(sched.ID)).Msg("period already billed, skipping")
		s.appendRun(ctx, sched.ID, today, billing.RunSkipped, "", nil)
		return billing.RunSkipped, nil
	}

	decision := billing.DecideAuto(sched.Frequency, sched.AutoApprove, sched.AutoSendEnabled)

	dueDate := billing.ClampDay(today.Year(), today.Month(), sched.DueDayOfMonth)
	if !dueDate.After(today) {
		// Anchor at the first of the month before advancing; adding a month
		// to Jan 31 normalizes into March and would skip February.
		next := billing.StartOfMonth(today).AddMonths(1)
		dueDate = billing.ClampDay(next.Year(), next.Month(), sched.DueDayOfMonth)
	}

	inv, err := s.Generator.Generate(ctx, GenerateRequest{
		Source:          billing.SourceScheduled,
		EntityID:        sched.EntityID,
		ContractID:      sched.ContractID,
		ScheduleID:      sched.ID,
		Lines:           []Line{{Description: periodDescription(sched.Frequency, today), Amount: sched.Amount}},
		DueDate:         dueDate,
		VATType:         sched.VATType,
		VATInclusive:    sched.VATInclusive,
		Withholding:     sched.Withholding,
		WithholdingRate: sched.WithholdingRate,
		Frequency:       sched.Frequency,
		AutoApprove:     decision.Approve,
		FollowUpEnabled: true,
	})
	if err != nil {
		s.appendRun(ctx, sched.ID, today, billing.RunFailed, "", err)
		return billing.RunFailed, err
	}

	if decision.RenewalReview && s.Notifier != nil {
		s.Notifier.Notify(ctx, billing.NotifyRenewalReview, inv,
			fmt.Sprintf("annual invoice %s requires renewal review", inv.BillingNumber))
	}

	if decision.Send {
		// A transport failure is not a generation failure: the invoice
		// exists and stays APPROVED for a manual resend.
		if sendErr := s.Mailer.SendInvoice(ctx, inv); sendErr != nil {
			s.Logger.Warn().Err(sendErr).
				Str("billing_number", inv.BillingNumber).
				Msg("auto-send failed, invoice left approved")
		} else if s.Notifier != nil {
			s.Notifier.Notify(ctx, billing.NotifyAutoSent, inv,
				fmt.Sprintf("invoice %s auto-sent", inv.BillingNumber))
		}
	}

	s.advanceSchedule(ctx, sched, today)
	s.appendRun(ctx, sched.ID, today, billing.RunSuccess, inv.ID, nil)
	return billing.RunSuccess, nil
}

// advanceSchedule recomputes NextBillingDate past today so the schedule is
// never left due in the past after a successful generation.
func (s *Sweep) advanceSchedule(ctx context.Context, sched *billing.ScheduledBilling, today billing.Date) {
	sched.NextBillingDate = billing.NextBillingDate(billing.ScheduleInput{
		BillingDayOfMonth: sched.BillingDayOfMonth,
		Frequency:         sched.Frequency,
		StartDate:         sched.StartDate,
		SkipCurrent:       true,
		CustomValue:       sched.CustomValue,
		CustomUnit:        sched.CustomUnit,
	}, today)
	sched.UpdatedAt = s.Now()
	if err := s.Repo.SaveSchedule(ctx, sched); err != nil {
		s.Logger.Error().Err(err).Str("schedule", string(sched.ID)).Msg("failed to advance next billing date")
	}
}

func (s *Sweep) appendRun(ctx context.Context, id billing.ScheduleID, today billing.Date, outcome billing.RunOutcome, invoiceID billing.InvoiceID, cause error) {
	run := billing.ScheduledBillingRun{
		ID:         billing.RunID(uuid.NewString()),
		ScheduleID: id,
		RunDate:    today,
		Outcome:    outcome,
		InvoiceID:  invoiceID,
		CreatedAt:  s.Now(),
	}
	if cause != nil {
		run.Error = cause.Error()
	}
	if err := s.Repo.AppendRun(ctx, run); err != nil {
		s.Logger.Error().Err(err).Str("schedule", string(id)).Msg("failed to append run record")
	}
}

func (s *Sweep) finish(ctx context.Context, job *billing.JobRun, status billing.JobRunStatus, cause error) {
	now := s.Now()
	job.Status = status
	job.CompletedAt = &now
	if cause != nil {
		job.Errors = append(job.Errors, cause.Error())
	}
	if err := s.Repo.SaveJobRun(ctx, job); err != nil {
		s.Logger.Error().Err(err).Str("job", string(job.ID)).Msg("failed to save job run")
	}
}

func periodDescription(f billing.Frequency, today billing.Date) string {
	switch f {
	case billing.FreqQuarterly:
		q := (int(today.Month())-1)/3 + 1
		return fmt.Sprintf("Service fee - Q%d %d", q, today.Year())
	case billing.FreqAnnually:
		return fmt.Sprintf("Service fee - %d", today.Year())
	default:
		return fmt.Sprintf("Service fee - %s %d", today.Month(), today.Year())
	}
}
