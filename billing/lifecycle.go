/*
lifecycle.go - Invoice lifecycle state machine

PURPOSE:
  Governs every invoice status transition. All mutations of Invoice.Status
  flow through this file so the permitted graph lives in exactly one place:

    PENDING  -> APPROVED | REJECTED | CANCELLED
    APPROVED -> SENT | VOID
    SENT     -> PAID | VOID
    PAID, REJECTED, CANCELLED, VOID are terminal

  Transitions are checked before any side effect; an illegal transition
  returns a TransitionError and leaves the invoice untouched.

AUTOMATED POLICY:
  The daily sweep auto-approves and auto-sends MONTHLY and QUARTERLY
  invoices when the schedule enables those flags. ANNUALLY invoices are
  deliberately left PENDING with a renewal-review notification and are
  never auto-sent regardless of flags. This is a business rule, not an
  oversight: annual renewals get human eyes first.

SEE ALSO:
  - errors.go: TransitionError
  - invoicing/sweep.go: applies AutoDecision after generation
*/
package billing

import (
	"net/mail"
	"time"

	"github.com/shopspring/decimal"
)

// transitions is the exhaustive legal-transition table.
var transitions = map[InvoiceStatus]map[InvoiceStatus]bool{
	InvoicePending: {
		InvoiceApproved:  true,
		InvoiceRejected:  true,
		InvoiceCancelled: true,
	},
	InvoiceApproved: {
		InvoiceSent: true,
		InvoiceVoid: true,
	},
	InvoiceSent: {
		InvoicePaid: true,
		InvoiceVoid: true,
	},
	InvoicePaid:      {},
	InvoiceRejected:  {},
	InvoiceCancelled: {},
	InvoiceVoid:      {},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to InvoiceStatus) bool {
	return transitions[from][to]
}

func checkTransition(inv *Invoice, to InvoiceStatus) error {
	if !CanTransition(inv.Status, to) {
		return &TransitionError{InvoiceID: inv.ID, From: inv.Status, To: to}
	}
	return nil
}

// Approve moves PENDING -> APPROVED, recording the approver. The sweep
// passes "system" as the approver for auto-approved invoices.
func Approve(inv *Invoice, approver string, now time.Time) error {
	if err := checkTransition(inv, InvoiceApproved); err != nil {
		return err
	}
	inv.Status = InvoiceApproved
	inv.ApprovedBy = approver
	inv.ApprovedAt = &now
	inv.UpdatedAt = now
	return nil
}

// Reject moves PENDING -> REJECTED. Terminal: a rejected invoice is never
// revived, a new one must be regenerated.
func Reject(inv *Invoice, actor, reason string, now time.Time) error {
	if err := checkTransition(inv, InvoiceRejected); err != nil {
		return err
	}
	inv.Status = InvoiceRejected
	inv.RejectedBy = actor
	inv.RejectReason = reason
	inv.UpdatedAt = now
	return nil
}

// MarkSent moves APPROVED -> SENT. Sending a PENDING invoice is a state
// error; the caller must approve first. Requires at least one valid
// recipient email so the transition is never recorded for an unreachable
// invoice.
func MarkSent(inv *Invoice, now time.Time) error {
	if err := checkTransition(inv, InvoiceSent); err != nil {
		return err
	}
	if len(ValidEmails(inv.Emails)) == 0 {
		return ErrNoRecipientEmail
	}
	inv.Status = InvoiceSent
	inv.SentAt = &now
	inv.UpdatedAt = now
	return nil
}

// Pay moves SENT -> PAID, recording method, amount, reference, timestamp.
func Pay(inv *Invoice, method string, amount decimal.Decimal, reference string, now time.Time) error {
	if err := checkTransition(inv, InvoicePaid); err != nil {
		return err
	}
	inv.Status = InvoicePaid
	inv.PayMethod = method
	inv.PaidAmount = amount
	inv.PayReference = reference
	inv.PaidAt = &now
	inv.UpdatedAt = now
	return nil
}

// Void moves APPROVED or SENT -> VOID with a mandatory reason. Voiding
// reverses no financial records; it marks the document non-collectible and
// frees the period for regeneration.
func Void(inv *Invoice, reason string, now time.Time) error {
	if reason == "" {
		return ErrVoidReasonRequired
	}
	if err := checkTransition(inv, InvoiceVoid); err != nil {
		return err
	}
	inv.Status = InvoiceVoid
	inv.VoidReason = reason
	inv.VoidedAt = &now
	inv.UpdatedAt = now
	return nil
}

// Cancel moves PENDING -> CANCELLED (withdrawn before approval). Terminal.
func Cancel(inv *Invoice, now time.Time) error {
	if err := checkTransition(inv, InvoiceCancelled); err != nil {
		return err
	}
	inv.Status = InvoiceCancelled
	inv.UpdatedAt = now
	return nil
}

// =============================================================================
// AUTOMATED APPROVE/SEND POLICY
// =============================================================================

// AutoDecision is what the sweep does with a freshly generated invoice.
type AutoDecision struct {
	Approve       bool
	Send          bool
	RenewalReview bool // annual invoice held for human review
}

// DecideAuto applies the frequency policy: MONTHLY and QUARTERLY invoices
// may be auto-approved and auto-sent in the same pass; ANNUALLY invoices are
// always held PENDING for renewal review, never auto-sent.
func DecideAuto(f Frequency, autoApprove, autoSend bool) AutoDecision {
	if f == FreqAnnually {
		return AutoDecision{RenewalReview: true}
	}
	return AutoDecision{
		Approve: autoApprove,
		Send:    autoApprove && autoSend,
	}
}

// ValidEmails filters the list down to syntactically valid addresses.
func ValidEmails(emails []string) []string {
	var out []string
	for _, e := range emails {
		if e == "" {
			continue
		}
		if _, err := mail.ParseAddress(e); err == nil {
			out = append(out, e)
		}
	}
	return out
}
