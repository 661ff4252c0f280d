/*
Package sqlite provides a SQLite-backed implementation of billing.Repository.

PURPOSE:
  Implements the full persistence surface using SQLite. The same patterns
  apply to PostgreSQL in production - only minor SQL dialect differences.

KEY TABLES:
  entities/partners/contracts: billing parties (imported externally)
  schedules:                   recurring billing definitions
  schedule_runs:               append-only generation history
  invoices + line_items:       the billable documents
  follow_up_logs / email_logs: append-only send history
  job_runs:                    sweep invocations
  entity_counters:             per-entity invoice number sequence

NUMBER ALLOCATION:
  CreateInvoice runs the counter increment, the invoice insert and the
  line-item inserts in a single SQL transaction. A failed insert rolls the
  counter back, so a number is consumed only when its invoice persists.

APPEND-ONLY ENFORCEMENT:
  schedule_runs, follow_up_logs and email_logs have no UPDATE or DELETE
  statements anywhere in this package.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

DATES:
  Calendar dates are stored as "2006-01-02" strings, instants as RFC3339.
  Monetary values are stored as exact decimal strings.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/repository.go: interface definitions
  - store/memory/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
)

// Store implements billing.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at the given database path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		prefix TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		registered_name TEXT NOT NULL,
		attention TEXT,
		address TEXT,
		emails_json TEXT NOT NULL DEFAULT '[]',
		billing_model TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		attention TEXT,
		address TEXT,
		emails_json TEXT NOT NULL DEFAULT '[]',
		monthly_fee TEXT NOT NULL,
		vat_type TEXT NOT NULL,
		withholding BOOLEAN NOT NULL DEFAULT FALSE,
		partner_id TEXT,
		status TEXT NOT NULL,
		next_due_date TEXT
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		vat_type TEXT NOT NULL,
		vat_inclusive BOOLEAN NOT NULL DEFAULT FALSE,
		withholding BOOLEAN NOT NULL DEFAULT FALSE,
		withholding_rate TEXT NOT NULL DEFAULT '0',
		frequency TEXT NOT NULL,
		billing_day INTEGER NOT NULL,
		due_day INTEGER NOT NULL,
		custom_value INTEGER NOT NULL DEFAULT 0,
		custom_unit TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		next_billing_date TEXT,
		auto_approve BOOLEAN NOT NULL DEFAULT FALSE,
		auto_send BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_due
		ON schedules(status, billing_day);

	CREATE TABLE IF NOT EXISTS schedule_runs (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		run_date TEXT NOT NULL,
		outcome TEXT NOT NULL,
		invoice_id TEXT,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_schedule_date
		ON schedule_runs(schedule_id, run_date);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		contract_id TEXT,
		schedule_id TEXT,
		billing_number TEXT NOT NULL UNIQUE,
		recipient_name TEXT NOT NULL,
		attention TEXT,
		address TEXT,
		emails_json TEXT NOT NULL DEFAULT '[]',
		service_fee TEXT NOT NULL,
		vat_amount TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		withholding_tax TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		vat_type TEXT NOT NULL,
		withholding BOOLEAN NOT NULL DEFAULT FALSE,
		withholding_rate TEXT NOT NULL DEFAULT '0',
		withholding_code TEXT,
		frequency TEXT,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		rejected_by TEXT,
		reject_reason TEXT,
		sent_at TEXT,
		paid_at TEXT,
		pay_method TEXT,
		pay_reference TEXT,
		paid_amount TEXT NOT NULL DEFAULT '0',
		void_reason TEXT,
		voided_at TEXT,
		follow_up_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		follow_up_count INTEGER NOT NULL DEFAULT 0,
		last_follow_up_level INTEGER NOT NULL DEFAULT 0,
		last_follow_up_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_schedule ON invoices(schedule_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);

	CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		description TEXT,
		service_fee TEXT NOT NULL,
		vat_amount TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		withholding_tax TEXT NOT NULL,
		net_amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_invoice ON line_items(invoice_id);

	CREATE TABLE IF NOT EXISTS follow_up_logs (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		template TEXT,
		recipient TEXT,
		success BOOLEAN NOT NULL,
		error TEXT,
		sent_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_follow_up_invoice ON follow_up_logs(invoice_id);

	CREATE TABLE IF NOT EXISTS email_logs (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		recipient TEXT,
		subject TEXT,
		success BOOLEAN NOT NULL,
		message_id TEXT,
		error TEXT,
		sent_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		errors_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS entity_counters (
		entity_id TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

func fmtDate(d billing.Date) string { return d.Time.Format(dateLayout) }

func parseDate(s string) billing.Date {
	d, err := billing.ParseDate(s)
	if err != nil {
		return billing.Date{}
	}
	return d
}

func fmtDatePtr(d *billing.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtDate(*d), Valid: true}
}

func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func marshalEmails(emails []string) string {
	if emails == nil {
		emails = []string{}
	}
	b, _ := json.Marshal(emails)
	return string(b)
}

func unmarshalEmails(raw string) []string {
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// PARTIES
// =============================================================================

func (s *Store) SaveEntity(ctx context.Context, e *billing.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, prefix) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, prefix = excluded.prefix`,
		e.ID, e.Name, e.Prefix)
	return err
}

func (s *Store) GetEntity(ctx context.Context, id billing.EntityID) (*billing.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var e billing.Entity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, prefix FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.Prefix)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", billing.ErrEntityNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) SavePartner(ctx context.Context, p *billing.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partners (id, registered_name, attention, address, emails_json, billing_model)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			registered_name = excluded.registered_name,
			attention = excluded.attention,
			address = excluded.address,
			emails_json = excluded.emails_json,
			billing_model = excluded.billing_model`,
		p.ID, p.RegisteredName, p.Attention, p.Address, marshalEmails(p.Emails), p.BillingModel)
	return err
}

func (s *Store) GetPartner(ctx context.Context, id billing.PartnerID) (*billing.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p billing.Partner
	var emails string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, registered_name, attention, address, emails_json, billing_model
		FROM partners WHERE id = ?`, id).
		Scan(&p.ID, &p.RegisteredName, &p.Attention, &p.Address, &emails, &p.BillingModel)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", billing.ErrPartnerNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p.Emails = unmarshalEmails(emails)
	return &p, nil
}

func (s *Store) SaveContract(ctx context.Context, c *billing.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
			(id, company_name, attention, address, emails_json, monthly_fee,
			 vat_type, withholding, partner_id, status, next_due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_name = excluded.company_name,
			attention = excluded.attention,
			address = excluded.address,
			emails_json = excluded.emails_json,
			monthly_fee = excluded.monthly_fee,
			vat_type = excluded.vat_type,
			withholding = excluded.withholding,
			partner_id = excluded.partner_id,
			status = excluded.status,
			next_due_date = excluded.next_due_date`,
		c.ID, c.CompanyName, c.Attention, c.Address, marshalEmails(c.Emails),
		c.MonthlyFee.String(), c.VATType, c.Withholding, c.PartnerID, c.Status,
		fmtDate(c.NextDueDate))
	return err
}

func (s *Store) GetContract(ctx context.Context, id billing.ContractID) (*billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c billing.Contract
	var emails, fee string
	var nextDue sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_name, attention, address, emails_json, monthly_fee,
		       vat_type, withholding, partner_id, status, next_due_date
		FROM contracts WHERE id = ?`, id).
		Scan(&c.ID, &c.CompanyName, &c.Attention, &c.Address, &emails, &fee,
			&c.VATType, &c.Withholding, &c.PartnerID, &c.Status, &nextDue)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", billing.ErrContractNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	c.Emails = unmarshalEmails(emails)
	c.MonthlyFee = dec(fee)
	if nextDue.Valid {
		c.NextDueDate = parseDate(nextDue.String)
	}
	return &c, nil
}

func (s *Store) AdvanceContractDue(ctx context.Context, id billing.ContractID, next billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET next_due_date = ? WHERE id = ?`, fmtDate(next), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", billing.ErrContractNotFound, id)
	}
	return nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleCols = `
	id, contract_id, entity_id, amount, vat_type, vat_inclusive, withholding,
	withholding_rate, frequency, billing_day, due_day, custom_value, custom_unit,
	start_date, end_date, next_billing_date, auto_approve, auto_send, status,
	created_at, updated_at`

func (s *Store) SaveSchedule(ctx context.Context, sched *billing.ScheduledBilling) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules
			(id, contract_id, entity_id, amount, vat_type, vat_inclusive,
			 withholding, withholding_rate, frequency, billing_day, due_day,
			 custom_value, custom_unit, start_date, end_date, next_billing_date,
			 auto_approve, auto_send, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			vat_type = excluded.vat_type,
			vat_inclusive = excluded.vat_inclusive,
			withholding = excluded.withholding,
			withholding_rate = excluded.withholding_rate,
			frequency = excluded.frequency,
			billing_day = excluded.billing_day,
			due_day = excluded.due_day,
			custom_value = excluded.custom_value,
			custom_unit = excluded.custom_unit,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			next_billing_date = excluded.next_billing_date,
			auto_approve = excluded.auto_approve,
			auto_send = excluded.auto_send,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		sched.ID, sched.ContractID, sched.EntityID, sched.Amount.String(),
		sched.VATType, sched.VATInclusive, sched.Withholding,
		sched.WithholdingRate.String(), sched.Frequency, sched.BillingDayOfMonth,
		sched.DueDayOfMonth, sched.CustomValue, string(sched.CustomUnit),
		fmtDate(sched.StartDate), fmtDatePtr(sched.EndDate),
		fmtDate(sched.NextBillingDate), sched.AutoApprove, sched.AutoSendEnabled,
		sched.Status,
		sched.CreatedAt.UTC().Format(time.RFC3339Nano),
		sched.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func scanSchedule(scan func(dest ...any) error) (*billing.ScheduledBilling, error) {
	var sched billing.ScheduledBilling
	var amount, whtRate, startDate, createdAt, updatedAt string
	var endDate, nextBilling, customUnit sql.NullString
	err := scan(&sched.ID, &sched.ContractID, &sched.EntityID, &amount,
		&sched.VATType, &sched.VATInclusive, &sched.Withholding, &whtRate,
		&sched.Frequency, &sched.BillingDayOfMonth, &sched.DueDayOfMonth,
		&sched.CustomValue, &customUnit, &startDate, &endDate, &nextBilling,
		&sched.AutoApprove, &sched.AutoSendEnabled, &sched.Status,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sched.Amount = dec(amount)
	sched.WithholdingRate = dec(whtRate)
	sched.StartDate = parseDate(startDate)
	if endDate.Valid && endDate.String != "" {
		d := parseDate(endDate.String)
		sched.EndDate = &d
	}
	if nextBilling.Valid && nextBilling.String != "" {
		sched.NextBillingDate = parseDate(nextBilling.String)
	}
	if customUnit.Valid {
		sched.CustomUnit = billing.CustomUnit(customUnit.String)
	}
	sched.CreatedAt = parseTime(createdAt)
	sched.UpdatedAt = parseTime(updatedAt)
	return &sched, nil
}

func (s *Store) GetSchedule(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", billing.ErrScheduleNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Store) ListDueSchedules(ctx context.Context, on billing.Date) ([]billing.ScheduledBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleCols+` FROM schedules
		WHERE status = ? AND billing_day = ?
		  AND start_date <= ?
		  AND (end_date IS NULL OR end_date = '' OR end_date > ?)
		ORDER BY id`,
		billing.ScheduleActive, on.Day(), fmtDate(on), fmtDate(on))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (s *Store) ListSchedules(ctx context.Context) ([]billing.ScheduledBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func collectSchedules(rows *sql.Rows) ([]billing.ScheduledBilling, error) {
	var out []billing.ScheduledBilling
	for rows.Next() {
		sched, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}

// =============================================================================
// RUNS (append-only)
// =============================================================================

func (s *Store) AppendRun(ctx context.Context, run billing.ScheduledBillingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_runs (id, schedule_id, run_date, outcome, invoice_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ScheduleID, fmtDate(run.RunDate), run.Outcome,
		run.InvoiceID, run.Error, run.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) RunsInPeriod(ctx context.Context, id billing.ScheduleID, p billing.Period) ([]billing.ScheduledBillingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, run_date, outcome, invoice_id, error, created_at
		FROM schedule_runs
		WHERE schedule_id = ? AND run_date >= ? AND run_date <= ?
		ORDER BY created_at`,
		id, fmtDate(p.Start), fmtDate(p.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.ScheduledBillingRun
	for rows.Next() {
		var run billing.ScheduledBillingRun
		var runDate, createdAt string
		if err := rows.Scan(&run.ID, &run.ScheduleID, &runDate, &run.Outcome,
			&run.InvoiceID, &run.Error, &createdAt); err != nil {
			return nil, err
		}
		run.RunDate = parseDate(runDate)
		run.CreatedAt = parseTime(createdAt)
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceCols = `
	id, entity_id, contract_id, schedule_id, billing_number,
	recipient_name, attention, address, emails_json,
	service_fee, vat_amount, gross_amount, withholding_tax, net_amount,
	vat_type, withholding, withholding_rate, withholding_code, frequency,
	due_date, status, source,
	approved_by, approved_at, rejected_by, reject_reason,
	sent_at, paid_at, pay_method, pay_reference, paid_amount,
	void_reason, voided_at,
	follow_up_enabled, follow_up_count, last_follow_up_level, last_follow_up_at,
	created_at, updated_at`

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice, items []billing.InvoiceLineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prefix string
	err := s.db.QueryRowContext(ctx,
		`SELECT prefix FROM entities WHERE id = ?`, inv.EntityID).Scan(&prefix)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", billing.ErrEntityNotFound, inv.EntityID)
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Counter increment and invoice insert commit together; a failed
	// insert rolls the number back.
	var next int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO entity_counters (entity_id, last_value) VALUES (?, 1)
		ON CONFLICT(entity_id) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value`, inv.EntityID).Scan(&next)
	if err != nil {
		return fmt.Errorf("allocate billing number: %w", err)
	}
	inv.BillingNumber = fmt.Sprintf("%s%010d", prefix, next)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices
			(id, entity_id, contract_id, schedule_id, billing_number,
			 recipient_name, attention, address, emails_json,
			 service_fee, vat_amount, gross_amount, withholding_tax, net_amount,
			 vat_type, withholding, withholding_rate, withholding_code, frequency,
			 due_date, status, source,
			 approved_by, approved_at, rejected_by, reject_reason,
			 sent_at, paid_at, pay_method, pay_reference, paid_amount,
			 void_reason, voided_at,
			 follow_up_enabled, follow_up_count, last_follow_up_level, last_follow_up_at,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.EntityID, inv.ContractID, inv.ScheduleID, inv.BillingNumber,
		inv.RecipientName, inv.Attention, inv.Address, marshalEmails(inv.Emails),
		inv.ServiceFee.String(), inv.VATAmount.String(), inv.GrossAmount.String(),
		inv.WithholdingTax.String(), inv.NetAmount.String(),
		inv.VATType, inv.Withholding, inv.WithholdingRate.String(),
		inv.WithholdingCode, inv.Frequency,
		fmtDate(inv.DueDate), inv.Status, inv.Source,
		inv.ApprovedBy, fmtTimePtr(inv.ApprovedAt), inv.RejectedBy, inv.RejectReason,
		fmtTimePtr(inv.SentAt), fmtTimePtr(inv.PaidAt), inv.PayMethod,
		inv.PayReference, inv.PaidAmount.String(),
		inv.VoidReason, fmtTimePtr(inv.VoidedAt),
		inv.FollowUpEnabled, inv.FollowUpCount, inv.LastFollowUpLevel,
		fmtTimePtr(inv.LastFollowUpAt),
		inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		inv.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO line_items
				(id, invoice_id, description, service_fee, vat_amount,
				 gross_amount, withholding_tax, net_amount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, inv.ID, item.Description, item.ServiceFee.String(),
			item.VATAmount.String(), item.GrossAmount.String(),
			item.WithholdingTax.String(), item.NetAmount.String())
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}

	return tx.Commit()
}

func scanInvoice(scan func(dest ...any) error) (*billing.Invoice, error) {
	var inv billing.Invoice
	var emails, serviceFee, vatAmount, gross, wht, net, whtRate, paidAmount string
	var dueDate, createdAt, updatedAt string
	var approvedAt, sentAt, paidAt, voidedAt, lastFollowUpAt sql.NullString
	err := scan(&inv.ID, &inv.EntityID, &inv.ContractID, &inv.ScheduleID,
		&inv.BillingNumber, &inv.RecipientName, &inv.Attention, &inv.Address,
		&emails, &serviceFee, &vatAmount, &gross, &wht, &net,
		&inv.VATType, &inv.Withholding, &whtRate, &inv.WithholdingCode,
		&inv.Frequency, &dueDate, &inv.Status, &inv.Source,
		&inv.ApprovedBy, &approvedAt, &inv.RejectedBy, &inv.RejectReason,
		&sentAt, &paidAt, &inv.PayMethod, &inv.PayReference, &paidAmount,
		&inv.VoidReason, &voidedAt,
		&inv.FollowUpEnabled, &inv.FollowUpCount, &inv.LastFollowUpLevel,
		&lastFollowUpAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	inv.Emails = unmarshalEmails(emails)
	inv.ServiceFee = dec(serviceFee)
	inv.VATAmount = dec(vatAmount)
	inv.GrossAmount = dec(gross)
	inv.WithholdingTax = dec(wht)
	inv.NetAmount = dec(net)
	inv.WithholdingRate = dec(whtRate)
	inv.PaidAmount = dec(paidAmount)
	inv.DueDate = parseDate(dueDate)
	inv.ApprovedAt = parseTimePtr(approvedAt)
	inv.SentAt = parseTimePtr(sentAt)
	inv.PaidAt = parseTimePtr(paidAt)
	inv.VoidedAt = parseTimePtr(voidedAt)
	inv.LastFollowUpAt = parseTimePtr(lastFollowUpAt)
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return &inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET
			status = ?, emails_json = ?,
			approved_by = ?, approved_at = ?, rejected_by = ?, reject_reason = ?,
			sent_at = ?, paid_at = ?, pay_method = ?, pay_reference = ?, paid_amount = ?,
			void_reason = ?, voided_at = ?,
			follow_up_enabled = ?, follow_up_count = ?, last_follow_up_level = ?,
			last_follow_up_at = ?, updated_at = ?
		WHERE id = ?`,
		inv.Status, marshalEmails(inv.Emails),
		inv.ApprovedBy, fmtTimePtr(inv.ApprovedAt), inv.RejectedBy, inv.RejectReason,
		fmtTimePtr(inv.SentAt), fmtTimePtr(inv.PaidAt), inv.PayMethod,
		inv.PayReference, inv.PaidAmount.String(),
		inv.VoidReason, fmtTimePtr(inv.VoidedAt),
		inv.FollowUpEnabled, inv.FollowUpCount, inv.LastFollowUpLevel,
		fmtTimePtr(inv.LastFollowUpAt),
		inv.UpdatedAt.UTC().Format(time.RFC3339Nano), inv.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, inv.ID)
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + invoiceCols + ` FROM invoices WHERE 1=1`
	var args []any
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	if f.ContractID != "" {
		query += ` AND contract_id = ?`
		args = append(args, f.ContractID)
	}
	if f.ScheduleID != "" {
		query += ` AND schedule_id = ?`
		args = append(args, f.ScheduleID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY billing_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) LineItems(ctx context.Context, id billing.InvoiceID) ([]billing.InvoiceLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, description, service_fee, vat_amount,
		       gross_amount, withholding_tax, net_amount
		FROM line_items WHERE invoice_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.InvoiceLineItem
	for rows.Next() {
		var item billing.InvoiceLineItem
		var fee, vat, gross, wht, net string
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description,
			&fee, &vat, &gross, &wht, &net); err != nil {
			return nil, err
		}
		item.ServiceFee = dec(fee)
		item.VATAmount = dec(vat)
		item.GrossAmount = dec(gross)
		item.WithholdingTax = dec(wht)
		item.NetAmount = dec(net)
		out = append(out, item)
	}
	return out, rows.Err()
}

// =============================================================================
// LOGS (append-only)
// =============================================================================

func (s *Store) AppendFollowUpLog(ctx context.Context, l billing.FollowUpLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follow_up_logs (id, invoice_id, level, template, recipient, success, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.InvoiceID, l.Level, l.Template, l.Recipient, l.Success, l.Error,
		l.SentAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) FollowUpLogs(ctx context.Context, id billing.InvoiceID) ([]billing.FollowUpLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, level, template, recipient, success, error, sent_at
		FROM follow_up_logs WHERE invoice_id = ? ORDER BY sent_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.FollowUpLog
	for rows.Next() {
		var l billing.FollowUpLog
		var sentAt string
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Level, &l.Template,
			&l.Recipient, &l.Success, &l.Error, &sentAt); err != nil {
			return nil, err
		}
		l.SentAt = parseTime(sentAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) AppendEmailLog(ctx context.Context, l billing.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, invoice_id, recipient, subject, success, message_id, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.InvoiceID, l.Recipient, l.Subject, l.Success, l.MessageID, l.Error,
		l.SentAt.UTC().Format(time.RFC3339Nano))
	return err
}

// =============================================================================
// JOB RUNS
// =============================================================================

func (s *Store) SaveJobRun(ctx context.Context, run *billing.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errorsJSON := []byte("[]")
	if run.Errors != nil {
		errorsJSON, _ = json.Marshal(run.Errors)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, status, started_at, completed_at, processed, skipped, failed, errors_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			processed = excluded.processed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			errors_json = excluded.errors_json`,
		run.ID, run.Status, run.StartedAt.UTC().Format(time.RFC3339Nano),
		fmtTimePtr(run.CompletedAt), run.Processed, run.Skipped, run.Failed,
		string(errorsJSON))
	return err
}

func (s *Store) ListJobRuns(ctx context.Context, limit int) ([]billing.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, started_at, completed_at, processed, skipped, failed, errors_json
		FROM job_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.JobRun
	for rows.Next() {
		var run billing.JobRun
		var startedAt, errorsJSON string
		var completedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.Status, &startedAt, &completedAt,
			&run.Processed, &run.Skipped, &run.Failed, &errorsJSON); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(startedAt)
		run.CompletedAt = parseTimePtr(completedAt)
		_ = json.Unmarshal([]byte(errorsJSON), &run.Errors)
		out = append(out, run)
	}
	return out, rows.Err()
}
