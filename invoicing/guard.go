/*
Package invoicing composes the billing core into the operations the engine
exposes: period-guarded invoice generation, invoice sending, follow-up
escalation, and the daily sweep.

guard.go - Billing period guard

PURPOSE:
  Decides whether a schedule's current period was already billed by
  querying the append-only run history. Executes synchronously before
  every generation attempt.

ADVISORY, NOT TRANSACTIONAL:
  Two overlapping sweep invocations can both pass this guard and
  double-invoice a period. The single in-process scheduler that drives
  generation never overlaps its sweeps, so the guard is a read-then-act
  check, re-evaluated at generation time rather than cached from an
  earlier read.

VOIDED INVOICES:
  A SUCCESS run whose linked invoice was since voided or cancelled does
  not count against the period - regeneration is permitted.
*/
package invoicing

import (
	"context"
	"fmt"

	"github.com/warp/billing-engine/billing"
)

// Guard answers "was this period already billed?".
type Guard struct {
	Repo billing.Repository
}

// AlreadyBilled reports whether a SUCCESS run covers the schedule's period
// containing now, ignoring runs whose invoice is VOID or CANCELLED.
func (g *Guard) AlreadyBilled(ctx context.Context, sched *billing.ScheduledBilling, now billing.Date) (bool, error) {
	period := billing.PeriodFor(sched.Frequency, now)

	runs, err := g.Repo.RunsInPeriod(ctx, sched.ID, period)
	if err != nil {
		return false, fmt.Errorf("guard: load runs for %s %s: %w", sched.ID, period, err)
	}

	for _, run := range runs {
		if run.Outcome != billing.RunSuccess {
			continue
		}
		if run.InvoiceID == "" {
			// Success with no linked invoice shouldn't happen; treat the
			// period as billed rather than risk a duplicate.
			return true, nil
		}
		inv, err := g.Repo.GetInvoice(ctx, run.InvoiceID)
		if err != nil {
			if billing.IsNotFound(err) {
				continue
			}
			return false, fmt.Errorf("guard: load invoice %s: %w", run.InvoiceID, err)
		}
		if inv.Status == billing.InvoiceVoid || inv.Status == billing.InvoiceCancelled {
			continue
		}
		return true, nil
	}
	return false, nil
}
