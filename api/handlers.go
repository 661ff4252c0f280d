/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Invoices:
    GET    /api/invoices                 List (filter by entity/contract/schedule/status)
    POST   /api/invoices/generate        Generate an ad-hoc invoice
    GET    /api/invoices/{id}            Get invoice with line items
    GET    /api/invoices/{id}/followups  Escalation history
    POST   /api/invoices/{id}/approve    PENDING -> APPROVED
    POST   /api/invoices/{id}/reject     PENDING -> REJECTED
    POST   /api/invoices/{id}/send       APPROVED -> SENT (delivers email)
    POST   /api/invoices/{id}/pay        SENT -> PAID
    POST   /api/invoices/{id}/void       APPROVED|SENT -> VOID
    POST   /api/invoices/{id}/cancel     PENDING -> CANCELLED
    POST   /api/invoices/{id}/followup   Send next escalation level

  Schedules:
    GET    /api/schedules                List all schedules
    POST   /api/schedules                Create (starts PENDING)
    GET    /api/schedules/{id}           Get schedule
    POST   /api/schedules/{id}/approve   PENDING -> ACTIVE
    POST   /api/schedules/{id}/reject    PENDING -> ENDED
    POST   /api/schedules/{id}/pause     ACTIVE -> PAUSED
    POST   /api/schedules/{id}/resume    PAUSED -> ACTIVE
    POST   /api/schedules/{id}/end       ACTIVE|PAUSED -> ENDED

  Parties (import surface):
    POST   /api/entities                 Upsert issuing entity
    POST   /api/partners                 Upsert partner
    POST   /api/contracts                Upsert contract
    GET    /api/contracts/{id}           Get contract
    POST   /api/contracts/{id}/bill      Legacy direct billing

  Jobs:
    GET    /api/jobs/runs                Recent sweep invocations
    POST   /api/jobs/sweep               Trigger a sweep now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: State conflicts (illegal transition, level misuse, already billed)
  - 422: Operator configuration problems (missing template)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Cron-driven sweep
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
	"github.com/warp/billing-engine/settings"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the API consumes: the engine repository
// plus the import/listing operations. Both store/sqlite and store/memory
// satisfy it.
type Store interface {
	billing.Repository
	SaveEntity(ctx context.Context, e *billing.Entity) error
	SavePartner(ctx context.Context, p *billing.Partner) error
	SaveContract(ctx context.Context, c *billing.Contract) error
	ListSchedules(ctx context.Context) ([]billing.ScheduledBilling, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Generator *invoicing.Generator
	Mailer    *invoicing.Mailer
	FollowUps *invoicing.FollowUpEngine
	Schedules *invoicing.ScheduleService
	Sweep     *invoicing.Sweep
	Settings  *settings.Provider
	Logger    zerolog.Logger
	Now       func() time.Time
}

// NewHandler creates a handler wired to the given store and services.
func NewHandler(store Store, gen *invoicing.Generator, mailer *invoicing.Mailer,
	followUps *invoicing.FollowUpEngine, schedules *invoicing.ScheduleService,
	sweep *invoicing.Sweep, prov *settings.Provider, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:     store,
		Generator: gen,
		Mailer:    mailer,
		FollowUps: followUps,
		Schedules: schedules,
		Sweep:     sweep,
		Settings:  prov,
		Logger:    logger.With().Str("component", "api").Logger(),
		Now:       time.Now,
	}
}

// today is the current business-timezone day.
func (h *Handler) today() billing.Date {
	return billing.DateOf(h.Now().In(h.Settings.Location()))
}

// =============================================================================
// PARTY HANDLERS (import surface)
// =============================================================================

// UpsertEntity creates or replaces an issuing entity.
func (h *Handler) UpsertEntity(w http.ResponseWriter, r *http.Request) {
	var req EntityDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Prefix == "" {
		writeError(w, http.StatusBadRequest, "id and prefix are required", nil)
		return
	}
	e := &billing.Entity{ID: billing.EntityID(req.ID), Name: req.Name, Prefix: req.Prefix}
	if err := h.Store.SaveEntity(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save entity", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// UpsertPartner creates or replaces a partner.
func (h *Handler) UpsertPartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.RegisteredName == "" {
		writeError(w, http.StatusBadRequest, "id and registered_name are required", nil)
		return
	}
	model := billing.BillingModel(req.BillingModel)
	if model != billing.BillingDirect && model != billing.BillingConsolidated {
		writeError(w, http.StatusBadRequest, "billing_model must be DIRECT or CONSOLIDATED", nil)
		return
	}
	p := &billing.Partner{
		ID:             billing.PartnerID(req.ID),
		RegisteredName: req.RegisteredName,
		Attention:      req.Attention,
		Address:        req.Address,
		Emails:         req.Emails,
		BillingModel:   model,
	}
	if err := h.Store.SavePartner(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save partner", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// UpsertContract creates or replaces a contract.
func (h *Handler) UpsertContract(w http.ResponseWriter, r *http.Request) {
	var req ContractDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.CompanyName == "" {
		writeError(w, http.StatusBadRequest, "id and company_name are required", nil)
		return
	}
	fee, err := decimal.NewFromString(req.MonthlyFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, "monthly_fee is not a valid decimal", err)
		return
	}
	c := &billing.Contract{
		ID:          billing.ContractID(req.ID),
		CompanyName: req.CompanyName,
		Attention:   req.Attention,
		Address:     req.Address,
		Emails:      req.Emails,
		MonthlyFee:  fee,
		VATType:     billing.VATType(req.VATType),
		Withholding: req.Withholding,
		PartnerID:   billing.PartnerID(req.PartnerID),
		Status:      billing.ContractStatus(req.Status),
	}
	if req.NextDueDate != "" {
		d, err := billing.ParseDate(req.NextDueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "next_due_date must be YYYY-MM-DD", err)
			return
		}
		c.NextDueDate = d
	}
	if err := h.Store.SaveContract(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetContract returns one contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))
	c, err := h.Store.GetContract(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get contract", err)
		return
	}
	dto := ContractDTO{
		ID:          string(c.ID),
		CompanyName: c.CompanyName,
		Attention:   c.Attention,
		Address:     c.Address,
		Emails:      c.Emails,
		MonthlyFee:  c.MonthlyFee.StringFixed(2),
		VATType:     string(c.VATType),
		Withholding: c.Withholding,
		PartnerID:   string(c.PartnerID),
		Status:      string(c.Status),
	}
	if !c.NextDueDate.IsZero() {
		dto.NextDueDate = c.NextDueDate.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// BillContract generates a direct invoice from the contract's monthly fee
// and advances its next due date by one month.
func (h *Handler) BillContract(w http.ResponseWriter, r *http.Request) {
	id := billing.ContractID(chi.URLParam(r, "id"))
	var req BillContractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required", nil)
		return
	}

	dueDate := h.today().AddDays(30)
	if req.DueDate != "" {
		d, err := billing.ParseDate(req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD", err)
			return
		}
		dueDate = d
	}

	inv, err := h.Generator.BillContract(r.Context(), id, billing.EntityID(req.EntityID), dueDate)
	if err != nil {
		writeDomainError(w, "Failed to bill contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv, nil))
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns all schedules.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Store.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}
	dtos := make([]ScheduleDTO, len(schedules))
	for i := range schedules {
		dtos[i] = toScheduleDTO(&schedules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule returns one schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := billing.ScheduleID(chi.URLParam(r, "id"))
	sched, err := h.Store.GetSchedule(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(sched))
}

// CreateSchedule creates a PENDING schedule bound to an existing contract
// and entity.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sched, err := h.scheduleFromRequest(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Invalid schedule", err)
		return
	}
	if err := h.Store.SaveSchedule(r.Context(), sched); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(sched))
}

func (h *Handler) scheduleFromRequest(ctx context.Context, req CreateScheduleRequest) (*billing.ScheduledBilling, error) {
	if req.ContractID == "" || req.EntityID == "" {
		return nil, &validationError{"contract_id and entity_id are required"}
	}
	if req.BillingDayOfMonth < 1 || req.BillingDayOfMonth > 31 {
		return nil, &validationError{"billing_day_of_month must be 1-31"}
	}
	if req.DueDayOfMonth < 1 || req.DueDayOfMonth > 31 {
		return nil, &validationError{"due_day_of_month must be 1-31"}
	}
	freq := billing.Frequency(req.Frequency)
	switch freq {
	case billing.FreqMonthly, billing.FreqQuarterly, billing.FreqAnnually:
	case billing.FreqCustom:
		if req.CustomValue < 1 {
			return nil, &validationError{"custom_value must be positive for CUSTOM frequency"}
		}
		unit := billing.CustomUnit(req.CustomUnit)
		if unit != billing.CustomDays && unit != billing.CustomMonths {
			return nil, &validationError{"custom_unit must be DAYS or MONTHS"}
		}
	default:
		return nil, &validationError{"frequency must be MONTHLY, QUARTERLY, ANNUALLY or CUSTOM"}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, &validationError{"amount must be a positive decimal"}
	}
	whtRate := decimal.Zero
	if req.WithholdingRate != "" {
		whtRate, err = decimal.NewFromString(req.WithholdingRate)
		if err != nil || whtRate.IsNegative() {
			return nil, &validationError{"withholding_rate must be a non-negative decimal"}
		}
	}
	startDate, err := billing.ParseDate(req.StartDate)
	if err != nil {
		return nil, &validationError{"start_date must be YYYY-MM-DD"}
	}
	var endDate *billing.Date
	if req.EndDate != nil && *req.EndDate != "" {
		d, err := billing.ParseDate(*req.EndDate)
		if err != nil {
			return nil, &validationError{"end_date must be YYYY-MM-DD"}
		}
		if !d.After(startDate) {
			return nil, &validationError{"end_date must be after start_date"}
		}
		endDate = &d
	}

	// Referential checks up front so a dangling schedule never reaches the
	// sweep.
	if _, err := h.Store.GetContract(ctx, billing.ContractID(req.ContractID)); err != nil {
		return nil, err
	}
	if _, err := h.Store.GetEntity(ctx, billing.EntityID(req.EntityID)); err != nil {
		return nil, err
	}

	now := h.Now()
	return &billing.ScheduledBilling{
		ID:                billing.ScheduleID(uuid.NewString()),
		ContractID:        billing.ContractID(req.ContractID),
		EntityID:          billing.EntityID(req.EntityID),
		Amount:            amount,
		VATType:           billing.VATType(req.VATType),
		VATInclusive:      req.VATInclusive,
		Withholding:       req.Withholding,
		WithholdingRate:   whtRate,
		Frequency:         freq,
		BillingDayOfMonth: req.BillingDayOfMonth,
		DueDayOfMonth:     req.DueDayOfMonth,
		CustomValue:       req.CustomValue,
		CustomUnit:        billing.CustomUnit(req.CustomUnit),
		StartDate:         startDate,
		EndDate:           endDate,
		Status:            billing.SchedulePending,
		AutoApprove:       req.AutoApprove,
		AutoSendEnabled:   req.AutoSendEnabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// scheduleAction applies one lifecycle operation to a schedule.
func (h *Handler) scheduleAction(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error)) {
	id := billing.ScheduleID(chi.URLParam(r, "id"))
	sched, err := op(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Schedule operation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(sched))
}

func (h *Handler) ApproveSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleAction(w, r, func(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
		return h.Schedules.Approve(ctx, id, h.today())
	})
}

func (h *Handler) RejectSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleAction(w, r, func(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
		return h.Schedules.Reject(ctx, id, h.today())
	})
}

func (h *Handler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleAction(w, r, h.Schedules.Pause)
}

func (h *Handler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleAction(w, r, func(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
		return h.Schedules.Resume(ctx, id, h.today())
	})
}

func (h *Handler) EndSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleAction(w, r, func(ctx context.Context, id billing.ScheduleID) (*billing.ScheduledBilling, error) {
		return h.Schedules.End(ctx, id, h.today())
	})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns invoices matching the query filters.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.InvoiceFilter{
		EntityID:   billing.EntityID(q.Get("entity")),
		ContractID: billing.ContractID(q.Get("contract")),
		ScheduleID: billing.ScheduleID(q.Get("schedule")),
		Status:     billing.InvoiceStatus(q.Get("status")),
	}
	invoices, err := h.Store.ListInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = toInvoiceDTO(&invoices[i], nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns one invoice with its line items.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	items, err := h.Store.LineItems(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load line items", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, items))
}

// GenerateInvoice creates an ad-hoc invoice.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required", nil)
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "at least one line is required", nil)
		return
	}
	dueDate, err := billing.ParseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD", err)
		return
	}

	lines := make([]invoicing.Line, 0, len(req.Lines))
	for i, lr := range req.Lines {
		amount, err := decimal.NewFromString(lr.Amount)
		if err != nil || !amount.IsPositive() {
			writeError(w, http.StatusBadRequest,
				"lines["+strconv.Itoa(i)+"].amount must be a positive decimal", err)
			return
		}
		line := invoicing.Line{Description: lr.Description, Amount: amount}
		if lr.DiscountType != "" {
			value, err := decimal.NewFromString(lr.DiscountValue)
			if err != nil || value.IsNegative() {
				writeError(w, http.StatusBadRequest,
					"lines["+strconv.Itoa(i)+"].discount_value must be a non-negative decimal", err)
				return
			}
			dt := billing.DiscountType(lr.DiscountType)
			if dt != billing.DiscountPercentage && dt != billing.DiscountFixed {
				writeError(w, http.StatusBadRequest,
					"lines["+strconv.Itoa(i)+"].discount_type must be PERCENTAGE or FIXED", nil)
				return
			}
			line.Discount = &billing.Discount{Type: dt, Value: value}
		}
		lines = append(lines, line)
	}

	whtRate := decimal.Zero
	if req.WithholdingRate != "" {
		whtRate, err = decimal.NewFromString(req.WithholdingRate)
		if err != nil || whtRate.IsNegative() {
			writeError(w, http.StatusBadRequest, "withholding_rate must be a non-negative decimal", err)
			return
		}
	}

	genReq := invoicing.GenerateRequest{
		Source:          billing.SourceAdHoc,
		EntityID:        billing.EntityID(req.EntityID),
		ContractID:      billing.ContractID(req.ContractID),
		Lines:           lines,
		DueDate:         dueDate,
		VATType:         billing.VATType(req.VATType),
		VATInclusive:    req.VATInclusive,
		Withholding:     req.Withholding,
		WithholdingRate: whtRate,
		FollowUpEnabled: req.FollowUpEnabled,
	}
	if req.ContractID == "" {
		genReq.Recipient = &invoicing.Recipient{
			Name:      req.RecipientName,
			Attention: req.Attention,
			Address:   req.Address,
			Emails:    req.Emails,
		}
	}

	inv, err := h.Generator.Generate(r.Context(), genReq)
	if err != nil {
		writeDomainError(w, "Failed to generate invoice", err)
		return
	}
	items, _ := h.Store.LineItems(r.Context(), inv.ID)
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv, items))
}

// invoiceAction loads, mutates through the state machine, persists.
func (h *Handler) invoiceAction(w http.ResponseWriter, r *http.Request,
	mutate func(inv *billing.Invoice, now time.Time) error) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	if err := mutate(inv, h.Now()); err != nil {
		writeDomainError(w, "Invoice operation failed", err)
		return
	}
	if err := h.Store.UpdateInvoice(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, nil))
}

// ApproveInvoice moves PENDING -> APPROVED.
func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required", nil)
		return
	}
	h.invoiceAction(w, r, func(inv *billing.Invoice, now time.Time) error {
		return billing.Approve(inv, req.Approver, now)
	})
}

// RejectInvoice moves PENDING -> REJECTED.
func (h *Handler) RejectInvoice(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.invoiceAction(w, r, func(inv *billing.Invoice, now time.Time) error {
		return billing.Reject(inv, req.Actor, req.Reason, now)
	})
}

// SendInvoice delivers an APPROVED invoice and moves it to SENT.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	if err := h.Mailer.SendInvoice(r.Context(), inv); err != nil {
		writeDomainError(w, "Failed to send invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, nil))
}

// PayInvoice moves SENT -> PAID.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal", err)
		return
	}
	h.invoiceAction(w, r, func(inv *billing.Invoice, now time.Time) error {
		return billing.Pay(inv, req.Method, amount, req.Reference, now)
	})
}

// VoidInvoice moves APPROVED or SENT -> VOID with a mandatory reason.
func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	var req VoidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.invoiceAction(w, r, func(inv *billing.Invoice, now time.Time) error {
		return billing.Void(inv, req.Reason, now)
	})
}

// CancelInvoice moves PENDING -> CANCELLED.
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, func(inv *billing.Invoice, now time.Time) error {
		return billing.Cancel(inv, now)
	})
}

// SendFollowUp escalates a SENT invoice to its next reminder level, or an
// explicit level when the request names one.
func (h *Handler) SendFollowUp(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req FollowUpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var logRow *billing.FollowUpLog
	var err error
	if req.Level > 0 {
		var inv *billing.Invoice
		inv, err = h.Store.GetInvoice(r.Context(), id)
		if err == nil {
			logRow, err = h.FollowUps.SendLevel(r.Context(), inv, req.Level)
		}
	} else {
		logRow, err = h.FollowUps.Send(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, "Failed to send follow-up", err)
		return
	}
	writeJSON(w, http.StatusOK, toFollowUpLogDTO(*logRow))
}

// ListFollowUps returns the escalation history for an invoice.
func (h *Handler) ListFollowUps(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetInvoice(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	logs, err := h.Store.FollowUpLogs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list follow-ups", err)
		return
	}
	dtos := make([]FollowUpLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = toFollowUpLogDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

// ListJobRuns returns recent sweep invocations, newest first.
func (h *Handler) ListJobRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Store.ListJobRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list job runs", err)
		return
	}
	dtos := make([]JobRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toJobRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerSweep runs the daily sweep now, for today or an explicit date.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	day := h.today()
	if req.Date != "" {
		d, err := billing.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
			return
		}
		day = d
	}
	job, err := h.Sweep.Run(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobRunDTO(*job))
}

// =============================================================================
// HELPERS
// =============================================================================

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

// decodeBody parses the JSON body; an empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	return true
}

// writeDomainError maps domain error categories onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.msg, nil)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case billing.IsStateError(err):
		writeError(w, http.StatusConflict, msg, err)
	case billing.IsConfigError(err):
		writeError(w, http.StatusUnprocessableEntity, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
