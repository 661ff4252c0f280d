/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Orchestration packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - missing entity/partner/template; fatal to the
     single operation, never silently defaulted for rate-bearing fields
  2. State errors - illegal lifecycle transitions, follow-up level misuse;
     rejected before any side effect
  3. Not-found errors - missing referenced records
  4. Transient I/O errors are NOT modeled here: email/PDF failures are
     recorded against their log rows and the invoice keeps its pre-attempt
     status, so a later retry is safe

USAGE:
  if errors.Is(err, billing.ErrAlreadyBilled) { ... }

SEE ALSO:
  - lifecycle.go: raises TransitionError
  - invoicing/: wraps these with per-operation context
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrScheduleNotFound is returned when a referenced schedule doesn't exist.
	ErrScheduleNotFound = errors.New("scheduled billing not found")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrEntityNotFound is returned when the issuing billing entity is missing.
	// Fatal to the single generation; the invoice-number counter is untouched.
	ErrEntityNotFound = errors.New("billing entity not found")

	// ErrPartnerNotFound is returned when a contract references a partner that
	// doesn't exist. Consolidated billing cannot proceed without it.
	ErrPartnerNotFound = errors.New("billing partner not found")

	// ErrTemplateNotFound is returned when no follow-up template is configured
	// for the requested level. The engine never sends a generic fallback.
	ErrTemplateNotFound = errors.New("follow-up template not configured")

	// ErrAlreadyBilled is returned when a SUCCESS run already covers the
	// schedule's current period.
	ErrAlreadyBilled = errors.New("period already billed")

	// ErrNoRecipientEmail is returned when a send requires at least one
	// syntactically valid recipient address and none is present.
	ErrNoRecipientEmail = errors.New("no valid recipient email")

	// ErrFollowUpDisabled is returned when escalation is requested for an
	// invoice with follow-up disabled.
	ErrFollowUpDisabled = errors.New("follow-up disabled for invoice")

	// ErrInvoiceNotSent is returned when escalation is requested for an
	// invoice that is not in SENT status.
	ErrInvoiceNotSent = errors.New("follow-up requires a sent invoice")

	// ErrFollowUpExhausted is returned when escalation beyond level 3 is
	// requested.
	ErrFollowUpExhausted = errors.New("follow-up level limit reached")

	// ErrVoidReasonRequired is returned when voiding without a reason.
	ErrVoidReasonRequired = errors.New("void requires a reason")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TransitionError reports an illegal invoice status transition.
type TransitionError struct {
	InvoiceID InvoiceID
	From      InvoiceStatus
	To        InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invoice %s: illegal transition %s -> %s", e.InvoiceID, e.From, e.To)
}

// FollowUpLevelError reports an out-of-sequence or exhausted escalation
// request.
type FollowUpLevelError struct {
	InvoiceID InvoiceID
	Current   int
	Requested int
}

func (e *FollowUpLevelError) Error() string {
	return fmt.Sprintf("invoice %s: cannot send follow-up level %d from level %d",
		e.InvoiceID, e.Requested, e.Current)
}

func (e *FollowUpLevelError) Unwrap() error {
	if e.Requested > MaxFollowUpLevel {
		return ErrFollowUpExhausted
	}
	return nil
}

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrPartnerNotFound)
}

// IsStateError reports whether err was rejected before any side effect due
// to the current lifecycle state.
func IsStateError(err error) bool {
	var te *TransitionError
	var fe *FollowUpLevelError
	return errors.As(err, &te) || errors.As(err, &fe) ||
		errors.Is(err, ErrFollowUpDisabled) ||
		errors.Is(err, ErrFollowUpExhausted) ||
		errors.Is(err, ErrInvoiceNotSent) ||
		errors.Is(err, ErrVoidReasonRequired) ||
		errors.Is(err, ErrNoRecipientEmail)
}

// IsConfigError reports whether err is a configuration problem the operator
// must fix (missing template or rate-bearing preset).
func IsConfigError(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}
