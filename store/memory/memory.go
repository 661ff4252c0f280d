// Package memory provides an in-memory Repository implementation
// (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/billing-engine/billing"
)

// Store implements billing.Repository with mutex-guarded maps. Entity
// counters are allocated under the same lock as the invoice insert, so a
// failed insert never consumes a number.
type Store struct {
	mu sync.RWMutex

	contracts map[billing.ContractID]billing.Contract
	partners  map[billing.PartnerID]billing.Partner
	entities  map[billing.EntityID]billing.Entity
	schedules map[billing.ScheduleID]billing.ScheduledBilling
	runs      map[billing.ScheduleID][]billing.ScheduledBillingRun
	invoices  map[billing.InvoiceID]billing.Invoice
	lineItems map[billing.InvoiceID][]billing.InvoiceLineItem
	followUps map[billing.InvoiceID][]billing.FollowUpLog
	emailLogs []billing.EmailLog
	jobRuns   map[billing.JobRunID]billing.JobRun
	counters  map[billing.EntityID]int64
}

func New() *Store {
	return &Store{
		contracts: make(map[billing.ContractID]billing.Contract),
		partners:  make(map[billing.PartnerID]billing.Partner),
		entities:  make(map[billing.EntityID]billing.Entity),
		schedules: make(map[billing.ScheduleID]billing.ScheduledBilling),
		runs:      make(map[billing.ScheduleID][]billing.ScheduledBillingRun),
		invoices:  make(map[billing.InvoiceID]billing.Invoice),
		lineItems: make(map[billing.InvoiceID][]billing.InvoiceLineItem),
		followUps: make(map[billing.InvoiceID][]billing.FollowUpLog),
		jobRuns:   make(map[billing.JobRunID]billing.JobRun),
		counters:  make(map[billing.EntityID]int64),
	}
}

// =============================================================================
// SEEDING (dev/test surface, mirrors the external import)
// =============================================================================

func (s *Store) SaveContract(_ context.Context, c *billing.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ID] = *c
	return nil
}

func (s *Store) SavePartner(_ context.Context, p *billing.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ID] = *p
	return nil
}

func (s *Store) SaveEntity(_ context.Context, e *billing.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = *e
	return nil
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

func (s *Store) GetContract(_ context.Context, id billing.ContractID) (*billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrContractNotFound, id)
	}
	out := c
	return &out, nil
}

func (s *Store) GetPartner(_ context.Context, id billing.PartnerID) (*billing.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrPartnerNotFound, id)
	}
	out := p
	return &out, nil
}

func (s *Store) GetEntity(_ context.Context, id billing.EntityID) (*billing.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrEntityNotFound, id)
	}
	out := e
	return &out, nil
}

func (s *Store) AdvanceContractDue(_ context.Context, id billing.ContractID, next billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("%w: %s", billing.ErrContractNotFound, id)
	}
	c.NextDueDate = next
	s.contracts[id] = c
	return nil
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (s *Store) GetSchedule(_ context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrScheduleNotFound, id)
	}
	out := sched
	return &out, nil
}

func (s *Store) SaveSchedule(_ context.Context, sched *billing.ScheduledBilling) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = *sched
	return nil
}

func (s *Store) ListDueSchedules(_ context.Context, on billing.Date) ([]billing.ScheduledBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.ScheduledBilling
	for _, sched := range s.schedules {
		if sched.Status != billing.ScheduleActive {
			continue
		}
		if sched.BillingDayOfMonth != on.Day() {
			continue
		}
		if !sched.ActiveOn(on) {
			continue
		}
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListSchedules(_ context.Context) ([]billing.ScheduledBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]billing.ScheduledBilling, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// RUN STORE (append-only)
// =============================================================================

func (s *Store) AppendRun(_ context.Context, run billing.ScheduledBillingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ScheduleID] = append(s.runs[run.ScheduleID], run)
	return nil
}

func (s *Store) RunsInPeriod(_ context.Context, id billing.ScheduleID, p billing.Period) ([]billing.ScheduledBillingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.ScheduledBillingRun
	for _, run := range s.runs[id] {
		if p.Contains(run.RunDate) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (s *Store) CreateInvoice(_ context.Context, inv *billing.Invoice, items []billing.InvoiceLineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[inv.EntityID]
	if !ok {
		return fmt.Errorf("%w: %s", billing.ErrEntityNotFound, inv.EntityID)
	}

	// Number is committed together with the row; nothing below can fail.
	next := s.counters[inv.EntityID] + 1
	s.counters[inv.EntityID] = next
	inv.BillingNumber = fmt.Sprintf("%s%010d", entity.Prefix, next)

	s.invoices[inv.ID] = *inv
	s.lineItems[inv.ID] = append([]billing.InvoiceLineItem(nil), items...)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
	}
	out := inv
	return &out, nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; !ok {
		return fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, inv.ID)
	}
	s.invoices[inv.ID] = *inv
	return nil
}

func (s *Store) ListInvoices(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if f.EntityID != "" && inv.EntityID != f.EntityID {
			continue
		}
		if f.ContractID != "" && inv.ContractID != f.ContractID {
			continue
		}
		if f.ScheduleID != "" && inv.ScheduleID != f.ScheduleID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BillingNumber < out[j].BillingNumber })
	return out, nil
}

func (s *Store) LineItems(_ context.Context, id billing.InvoiceID) ([]billing.InvoiceLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.InvoiceLineItem(nil), s.lineItems[id]...), nil
}

// =============================================================================
// LOG STORE (append-only)
// =============================================================================

func (s *Store) AppendFollowUpLog(_ context.Context, l billing.FollowUpLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps[l.InvoiceID] = append(s.followUps[l.InvoiceID], l)
	return nil
}

func (s *Store) FollowUpLogs(_ context.Context, id billing.InvoiceID) ([]billing.FollowUpLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.FollowUpLog(nil), s.followUps[id]...), nil
}

func (s *Store) AppendEmailLog(_ context.Context, l billing.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailLogs = append(s.emailLogs, l)
	return nil
}

// EmailLogs returns all email log rows (test helper).
func (s *Store) EmailLogs() []billing.EmailLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.EmailLog(nil), s.emailLogs...)
}

// =============================================================================
// JOB RUN STORE
// =============================================================================

func (s *Store) SaveJobRun(_ context.Context, run *billing.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	copied.Errors = append([]string(nil), run.Errors...)
	s.jobRuns[run.ID] = copied
	return nil
}

func (s *Store) ListJobRuns(_ context.Context, limit int) ([]billing.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]billing.JobRun, 0, len(s.jobRuns))
	for _, run := range s.jobRuns {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
