/*
Package billing provides the core recurring-billing engine.

PURPOSE:
  This package contains the domain types and pure algorithms that drive
  invoice generation: tax/amount calculation, recurring-schedule date
  arithmetic, billing-period bounds, and the invoice lifecycle state
  machine. Everything here is deterministic and free of I/O; persistence
  and collaborators are consumed through the interfaces in repository.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: a standing agreement with a client (read-mostly input)
  - ScheduledBilling: a recurring billing definition bound to a Contract
  - ScheduledBillingRun: immutable audit record of one generation attempt
  - Invoice / InvoiceLineItem: the billable document and its breakdown
  - FollowUpLog / EmailLog: append-only send history
  - Closed enum types for status, frequency, VAT type, billing model

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all monetary values, never float64
  2. Type safety: typed IDs and closed enums, exhaustively matched
  3. Auditability: every generation attempt and send leaves a record
  4. Purity: calculators take a frozen "now", never read the wall clock

SEE ALSO:
  - tax.go: tax/amount calculation
  - schedule.go: next-billing-date arithmetic
  - lifecycle.go: invoice status transitions
  - repository.go: persistence and collaborator interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type ScheduleID string
type InvoiceID string
type EntityID string
type PartnerID string
type RunID string
type JobRunID string

// =============================================================================
// ENUMS - closed sets, exhaustively matched in the state machine
// =============================================================================

// Frequency is how often a ScheduledBilling generates an invoice.
type Frequency string

const (
	FreqMonthly   Frequency = "MONTHLY"
	FreqQuarterly Frequency = "QUARTERLY"
	FreqAnnually  Frequency = "ANNUALLY"
	FreqCustom    Frequency = "CUSTOM"
)

// CustomUnit is the unit of a CUSTOM frequency interval.
type CustomUnit string

const (
	CustomDays   CustomUnit = "DAYS"
	CustomMonths CustomUnit = "MONTHS"
)

// VATType classifies a contract for value-added tax.
type VATType string

const (
	VATRegistered VATType = "VAT"
	NonVAT        VATType = "NON-VAT"
)

// BillingModel determines who receives the invoice.
type BillingModel string

const (
	BillingDirect       BillingModel = "DIRECT"       // invoice the contract's own client
	BillingConsolidated BillingModel = "CONSOLIDATED" // invoice the partner who aggregates charges
)

// DiscountType is how a line-item discount is expressed.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// ScheduleStatus is the lifecycle state of a ScheduledBilling.
type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "PENDING"
	ScheduleActive  ScheduleStatus = "ACTIVE"
	SchedulePaused  ScheduleStatus = "PAUSED"
	ScheduleEnded   ScheduleStatus = "ENDED"
)

// ContractStatus is the lifecycle state of a Contract. Contracts are managed
// by external import; the engine only reads them.
type ContractStatus string

const (
	ContractActive   ContractStatus = "ACTIVE"
	ContractInactive ContractStatus = "INACTIVE"
	ContractStopped  ContractStatus = "STOPPED"
)

// InvoiceStatus is the lifecycle state of an Invoice. Transitions are governed
// exclusively by lifecycle.go.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceApproved  InvoiceStatus = "APPROVED"
	InvoiceRejected  InvoiceStatus = "REJECTED"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
	InvoiceVoid      InvoiceStatus = "VOID"
)

// Terminal reports whether no further transition is permitted from s.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case InvoicePaid, InvoiceRejected, InvoiceCancelled, InvoiceVoid:
		return true
	}
	return false
}

// RunOutcome is the result of one generation attempt for a schedule.
type RunOutcome string

const (
	RunSuccess RunOutcome = "SUCCESS"
	RunFailed  RunOutcome = "FAILED"
	RunSkipped RunOutcome = "SKIPPED"
)

// JobRunStatus is the state of one sweep invocation.
type JobRunStatus string

const (
	JobRunning   JobRunStatus = "RUNNING"
	JobCompleted JobRunStatus = "COMPLETED"
	JobFailed    JobRunStatus = "FAILED"
)

// GenerationSource records what triggered an invoice.
type GenerationSource string

const (
	SourceScheduled GenerationSource = "scheduled"
	SourceContract  GenerationSource = "contract"
	SourceAdHoc     GenerationSource = "adhoc"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Entity is the legal entity issuing invoices. Each entity owns its own
// monotonic invoice-number sequence, formatted as prefix + 10-digit sequence.
type Entity struct {
	ID     EntityID
	Name   string
	Prefix string
}

// Partner is a third party that may aggregate charges for multiple contracts
// (consolidated billing). When a contract's billing model is CONSOLIDATED,
// the partner's registered fields supersede the contract's own on invoices.
type Partner struct {
	ID             PartnerID
	RegisteredName string
	Attention      string
	Address        string
	Emails         []string
	BillingModel   BillingModel
}

// Contract is a standing agreement with a client. Created by external import;
// read-only to this engine except NextDueDate, which advances after legacy
// direct billing.
type Contract struct {
	ID          ContractID
	CompanyName string
	Attention   string
	Address     string
	Emails      []string
	MonthlyFee  decimal.Decimal
	VATType     VATType
	Withholding bool
	PartnerID   PartnerID // empty when billed directly
	Status      ContractStatus
	NextDueDate Date
}

// ScheduledBilling is a recurring billing definition bound to exactly one
// Contract and one issuing Entity.
//
// INVARIANT: after a successful sweep, NextBillingDate is never in the past;
// it is today only when the schedule is due today.
type ScheduledBilling struct {
	ID               ScheduleID
	ContractID       ContractID
	EntityID         EntityID
	Amount           decimal.Decimal
	VATType          VATType
	VATInclusive     bool
	Withholding      bool
	WithholdingRate  decimal.Decimal // zero means "use configured default"
	Frequency        Frequency
	BillingDayOfMonth int
	DueDayOfMonth    int
	CustomValue      int        // only when Frequency == FreqCustom
	CustomUnit       CustomUnit // only when Frequency == FreqCustom
	StartDate        Date
	EndDate          *Date
	NextBillingDate  Date
	AutoApprove      bool
	AutoSendEnabled  bool
	Status           ScheduleStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActiveOn reports whether the schedule's window [StartDate, EndDate) covers d.
// A nil EndDate means open-ended.
func (s *ScheduledBilling) ActiveOn(d Date) bool {
	if d.Before(s.StartDate) {
		return false
	}
	if s.EndDate != nil && !d.Before(*s.EndDate) {
		return false
	}
	return true
}

// ScheduledBillingRun is an immutable audit record of one generation attempt.
// Append-only; used to answer "was this period already billed?".
type ScheduledBillingRun struct {
	ID         RunID
	ScheduleID ScheduleID
	RunDate    Date
	Outcome    RunOutcome
	InvoiceID  InvoiceID // set only on SUCCESS
	Error      string    // set only on FAILED
	CreatedAt  time.Time
}

// Invoice is the billable document.
//
// INVARIANT: NetAmount == GrossAmount - WithholdingTax exactly, with each
// component rounded to 2 decimal places before combination.
type Invoice struct {
	ID            InvoiceID
	EntityID      EntityID
	ContractID    ContractID // empty for ad-hoc invoices
	ScheduleID    ScheduleID // empty unless generated from a schedule
	BillingNumber string

	// Recipient, resolved from Contract or Partner at generation time.
	RecipientName string
	Attention     string
	Address       string
	Emails        []string

	ServiceFee      decimal.Decimal
	VATAmount       decimal.Decimal
	GrossAmount     decimal.Decimal
	WithholdingTax  decimal.Decimal
	NetAmount       decimal.Decimal
	VATType         VATType
	Withholding     bool
	WithholdingRate decimal.Decimal
	WithholdingCode string
	Frequency       Frequency

	DueDate Date
	Status  InvoiceStatus
	Source  GenerationSource

	// Approval / send / payment audit fields.
	ApprovedBy   string
	ApprovedAt   *time.Time
	RejectedBy   string
	RejectReason string
	SentAt       *time.Time
	PaidAt       *time.Time
	PayMethod    string
	PayReference string
	PaidAmount   decimal.Decimal
	VoidReason   string
	VoidedAt     *time.Time

	// Follow-up tracking.
	FollowUpEnabled  bool
	FollowUpCount    int
	LastFollowUpLevel int
	LastFollowUpAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceLineItem carries its own tax breakdown so multi-period or
// consolidated bills can itemize independently.
type InvoiceLineItem struct {
	ID             string
	InvoiceID      InvoiceID
	Description    string
	ServiceFee     decimal.Decimal
	VATAmount      decimal.Decimal
	GrossAmount    decimal.Decimal
	WithholdingTax decimal.Decimal
	NetAmount      decimal.Decimal
}

// MaxFollowUpLevel caps the escalation sequence. Level 3 is the final
// notice; there is no level 4.
const MaxFollowUpLevel = 3

// FollowUpLog records one escalation email.
//
// INVARIANT: for a given invoice the logged levels form a strictly increasing
// sequence starting at 1 and capped at 3.
type FollowUpLog struct {
	ID        string
	InvoiceID InvoiceID
	Level     int
	Template  string
	Recipient string
	Success   bool
	Error     string
	SentAt    time.Time
}

// EmailLog records one invoice send attempt (success or failure).
type EmailLog struct {
	ID        string
	InvoiceID InvoiceID
	Recipient string
	Subject   string
	Success   bool
	MessageID string
	Error     string
	SentAt    time.Time
}

// JobRun is the aggregate record of one sweep invocation.
type JobRun struct {
	ID          JobRunID
	Status      JobRunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Processed   int
	Skipped     int
	Failed      int
	Errors      []string
}
