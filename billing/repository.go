/*
repository.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the boundary between domain logic and the database. The engine
  depends only on these interfaces; store/sqlite and store/memory provide
  implementations. Typed fetch-by-id everywhere - no implicit relation
  traversal.

APPEND-ONLY RECORDS:
  ScheduledBillingRun, FollowUpLog, and EmailLog are append-only. They are
  never updated or deleted; the run history is the idempotency source for
  duplicate-period detection.

NUMBER ALLOCATION:
  CreateInvoice assigns the billing number from the owning entity's
  monotonic counter and persists the invoice atomically. If persistence
  fails, the counter is not consumed - a failed generation never burns a
  number.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - store/memory/memory.go: in-memory implementation for tests
*/
package billing

import "context"

// ContractStore provides read access to contracts and their related parties,
// plus the single write the engine performs on a contract.
type ContractStore interface {
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	GetPartner(ctx context.Context, id PartnerID) (*Partner, error)
	GetEntity(ctx context.Context, id EntityID) (*Entity, error)

	// AdvanceContractDue moves the contract's NextDueDate after legacy
	// direct billing. The only contract field this engine mutates.
	AdvanceContractDue(ctx context.Context, id ContractID, next Date) error
}

// ScheduleStore persists recurring billing definitions.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, id ScheduleID) (*ScheduledBilling, error)
	SaveSchedule(ctx context.Context, s *ScheduledBilling) error

	// ListDueSchedules returns ACTIVE schedules whose BillingDayOfMonth
	// equals on.Day() and whose [StartDate, EndDate) window contains on.
	ListDueSchedules(ctx context.Context, on Date) ([]ScheduledBilling, error)
}

// RunStore is the append-only history of generation attempts.
type RunStore interface {
	AppendRun(ctx context.Context, run ScheduledBillingRun) error

	// RunsInPeriod returns runs for the schedule whose RunDate falls inside
	// the period, chronologically.
	RunsInPeriod(ctx context.Context, id ScheduleID, p Period) ([]ScheduledBillingRun, error)
}

// InvoiceStore persists invoices and their line items.
type InvoiceStore interface {
	// CreateInvoice allocates the next billing number for inv.EntityID,
	// stamps it on inv, and persists invoice plus line items atomically.
	CreateInvoice(ctx context.Context, inv *Invoice, items []InvoiceLineItem) error

	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	LineItems(ctx context.Context, id InvoiceID) ([]InvoiceLineItem, error)
}

// InvoiceFilter narrows ListInvoices. Zero values mean "any".
type InvoiceFilter struct {
	EntityID   EntityID
	ContractID ContractID
	ScheduleID ScheduleID
	Status     InvoiceStatus
}

// LogStore records send history. Append-only.
type LogStore interface {
	AppendFollowUpLog(ctx context.Context, l FollowUpLog) error
	FollowUpLogs(ctx context.Context, id InvoiceID) ([]FollowUpLog, error)
	AppendEmailLog(ctx context.Context, l EmailLog) error
}

// JobRunStore records sweep invocations.
type JobRunStore interface {
	SaveJobRun(ctx context.Context, run *JobRun) error
	ListJobRuns(ctx context.Context, limit int) ([]JobRun, error)
}

// Repository is the full persistence surface the engine consumes.
type Repository interface {
	ContractStore
	ScheduleStore
	RunStore
	InvoiceStore
	LogStore
	JobRunStore
}
