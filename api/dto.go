/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Monetary values cross the wire as decimal strings ("11200.00"), never
  as floats. Requests parse through decimal.NewFromString so a malformed
  amount is a 400, not a silently truncated number.

DATES:
  Calendar dates are "2006-01-02" strings; instants are RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: domain model these project
*/
package api

import (
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// PARTY TYPES
// =============================================================================

// EntityDTO represents an issuing legal entity.
type EntityDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

// PartnerDTO represents a consolidating partner.
type PartnerDTO struct {
	ID             string   `json:"id"`
	RegisteredName string   `json:"registered_name"`
	Attention      string   `json:"attention,omitempty"`
	Address        string   `json:"address,omitempty"`
	Emails         []string `json:"emails"`
	BillingModel   string   `json:"billing_model"`
}

// ContractDTO represents an imported client contract.
type ContractDTO struct {
	ID          string   `json:"id"`
	CompanyName string   `json:"company_name"`
	Attention   string   `json:"attention,omitempty"`
	Address     string   `json:"address,omitempty"`
	Emails      []string `json:"emails"`
	MonthlyFee  string   `json:"monthly_fee"`
	VATType     string   `json:"vat_type"`
	Withholding bool     `json:"withholding"`
	PartnerID   string   `json:"partner_id,omitempty"`
	Status      string   `json:"status"`
	NextDueDate string   `json:"next_due_date,omitempty"`
}

// =============================================================================
// SCHEDULE TYPES
// =============================================================================

// ScheduleDTO represents a recurring billing definition.
type ScheduleDTO struct {
	ID                string  `json:"id"`
	ContractID        string  `json:"contract_id"`
	EntityID          string  `json:"entity_id"`
	Amount            string  `json:"amount"`
	VATType           string  `json:"vat_type"`
	VATInclusive      bool    `json:"vat_inclusive"`
	Withholding       bool    `json:"withholding"`
	WithholdingRate   string  `json:"withholding_rate,omitempty"`
	Frequency         string  `json:"frequency"`
	BillingDayOfMonth int     `json:"billing_day_of_month"`
	DueDayOfMonth     int     `json:"due_day_of_month"`
	CustomValue       int     `json:"custom_value,omitempty"`
	CustomUnit        string  `json:"custom_unit,omitempty"`
	StartDate         string  `json:"start_date"`
	EndDate           *string `json:"end_date,omitempty"`
	NextBillingDate   string  `json:"next_billing_date,omitempty"`
	AutoApprove       bool    `json:"auto_approve"`
	AutoSendEnabled   bool    `json:"auto_send_enabled"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at,omitempty"`
	UpdatedAt         string  `json:"updated_at,omitempty"`
}

// CreateScheduleRequest is the request to create a schedule. New schedules
// start PENDING and must be approved before the sweep picks them up.
type CreateScheduleRequest struct {
	ContractID        string  `json:"contract_id"`
	EntityID          string  `json:"entity_id"`
	Amount            string  `json:"amount"`
	VATType           string  `json:"vat_type"`
	VATInclusive      bool    `json:"vat_inclusive"`
	Withholding       bool    `json:"withholding"`
	WithholdingRate   string  `json:"withholding_rate,omitempty"`
	Frequency         string  `json:"frequency"`
	BillingDayOfMonth int     `json:"billing_day_of_month"`
	DueDayOfMonth     int     `json:"due_day_of_month"`
	CustomValue       int     `json:"custom_value,omitempty"`
	CustomUnit        string  `json:"custom_unit,omitempty"`
	StartDate         string  `json:"start_date"`
	EndDate           *string `json:"end_date,omitempty"`
	AutoApprove       bool    `json:"auto_approve"`
	AutoSendEnabled   bool    `json:"auto_send_enabled"`
}

// =============================================================================
// INVOICE TYPES
// =============================================================================

// InvoiceDTO represents an invoice in API responses.
type InvoiceDTO struct {
	ID            string   `json:"id"`
	EntityID      string   `json:"entity_id"`
	ContractID    string   `json:"contract_id,omitempty"`
	ScheduleID    string   `json:"schedule_id,omitempty"`
	BillingNumber string   `json:"billing_number"`
	RecipientName string   `json:"recipient_name"`
	Attention     string   `json:"attention,omitempty"`
	Address       string   `json:"address,omitempty"`
	Emails        []string `json:"emails"`

	ServiceFee     string `json:"service_fee"`
	VATAmount      string `json:"vat_amount"`
	GrossAmount    string `json:"gross_amount"`
	WithholdingTax string `json:"withholding_tax"`
	NetAmount      string `json:"net_amount"`
	VATType        string `json:"vat_type"`

	DueDate string `json:"due_date"`
	Status  string `json:"status"`
	Source  string `json:"source"`

	ApprovedBy   string  `json:"approved_by,omitempty"`
	ApprovedAt   *string `json:"approved_at,omitempty"`
	RejectedBy   string  `json:"rejected_by,omitempty"`
	RejectReason string  `json:"reject_reason,omitempty"`
	SentAt       *string `json:"sent_at,omitempty"`
	PaidAt       *string `json:"paid_at,omitempty"`
	PayMethod    string  `json:"pay_method,omitempty"`
	PayReference string  `json:"pay_reference,omitempty"`
	PaidAmount   string  `json:"paid_amount,omitempty"`
	VoidReason   string  `json:"void_reason,omitempty"`
	VoidedAt     *string `json:"voided_at,omitempty"`

	FollowUpEnabled   bool    `json:"follow_up_enabled"`
	FollowUpCount     int     `json:"follow_up_count"`
	LastFollowUpLevel int     `json:"last_follow_up_level"`
	LastFollowUpAt    *string `json:"last_follow_up_at,omitempty"`

	LineItems []LineItemDTO `json:"line_items,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// LineItemDTO represents one invoice line with its tax breakdown.
type LineItemDTO struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	ServiceFee     string `json:"service_fee"`
	VATAmount      string `json:"vat_amount"`
	GrossAmount    string `json:"gross_amount"`
	WithholdingTax string `json:"withholding_tax"`
	NetAmount      string `json:"net_amount"`
}

// GenerateInvoiceRequest is the request for an ad-hoc invoice.
type GenerateInvoiceRequest struct {
	EntityID   string `json:"entity_id"`
	ContractID string `json:"contract_id,omitempty"`

	// Explicit recipient, used when no contract resolves one.
	RecipientName string   `json:"recipient_name,omitempty"`
	Attention     string   `json:"attention,omitempty"`
	Address       string   `json:"address,omitempty"`
	Emails        []string `json:"emails,omitempty"`

	Lines []GenerateLineRequest `json:"lines"`

	DueDate         string `json:"due_date"`
	VATType         string `json:"vat_type"`
	VATInclusive    bool   `json:"vat_inclusive"`
	Withholding     bool   `json:"withholding"`
	WithholdingRate string `json:"withholding_rate,omitempty"`
	FollowUpEnabled bool   `json:"follow_up_enabled"`
}

// GenerateLineRequest is one requested invoice line.
type GenerateLineRequest struct {
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	DiscountType  string `json:"discount_type,omitempty"`
	DiscountValue string `json:"discount_value,omitempty"`
}

// ApproveRequest carries the approver identity.
type ApproveRequest struct {
	Approver string `json:"approver"`
}

// RejectRequest carries the rejecting actor and reason.
type RejectRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// PayRequest records a payment against a SENT invoice.
type PayRequest struct {
	Method    string `json:"method"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// VoidRequest carries the mandatory void reason.
type VoidRequest struct {
	Reason string `json:"reason"`
}

// FollowUpRequest optionally forces an explicit level. Zero means
// "next level".
type FollowUpRequest struct {
	Level int `json:"level,omitempty"`
}

// BillContractRequest triggers legacy direct billing for a contract.
type BillContractRequest struct {
	EntityID string `json:"entity_id"`
	DueDate  string `json:"due_date,omitempty"`
}

// SweepRequest optionally overrides the sweep's business day (testing).
type SweepRequest struct {
	Date string `json:"date,omitempty"`
}

// FollowUpLogDTO represents one escalation attempt.
type FollowUpLogDTO struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Level     int    `json:"level"`
	Template  string `json:"template"`
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	SentAt    string `json:"sent_at"`
}

// JobRunDTO represents one sweep invocation.
type JobRunDTO struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	StartedAt   string   `json:"started_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
	Processed   int      `json:"processed"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func fmtInstant(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func fmtInstantPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtInstant(*t)
	return &s
}

func toInvoiceDTO(inv *billing.Invoice, items []billing.InvoiceLineItem) InvoiceDTO {
	dto := InvoiceDTO{
		ID:            string(inv.ID),
		EntityID:      string(inv.EntityID),
		ContractID:    string(inv.ContractID),
		ScheduleID:    string(inv.ScheduleID),
		BillingNumber: inv.BillingNumber,
		RecipientName: inv.RecipientName,
		Attention:     inv.Attention,
		Address:       inv.Address,
		Emails:        inv.Emails,

		ServiceFee:     inv.ServiceFee.StringFixed(2),
		VATAmount:      inv.VATAmount.StringFixed(2),
		GrossAmount:    inv.GrossAmount.StringFixed(2),
		WithholdingTax: inv.WithholdingTax.StringFixed(2),
		NetAmount:      inv.NetAmount.StringFixed(2),
		VATType:        string(inv.VATType),

		DueDate: inv.DueDate.String(),
		Status:  string(inv.Status),
		Source:  string(inv.Source),

		ApprovedBy:   inv.ApprovedBy,
		ApprovedAt:   fmtInstantPtr(inv.ApprovedAt),
		RejectedBy:   inv.RejectedBy,
		RejectReason: inv.RejectReason,
		SentAt:       fmtInstantPtr(inv.SentAt),
		PaidAt:       fmtInstantPtr(inv.PaidAt),
		PayMethod:    inv.PayMethod,
		PayReference: inv.PayReference,
		VoidReason:   inv.VoidReason,
		VoidedAt:     fmtInstantPtr(inv.VoidedAt),

		FollowUpEnabled:   inv.FollowUpEnabled,
		FollowUpCount:     inv.FollowUpCount,
		LastFollowUpLevel: inv.LastFollowUpLevel,
		LastFollowUpAt:    fmtInstantPtr(inv.LastFollowUpAt),

		CreatedAt: fmtInstant(inv.CreatedAt),
		UpdatedAt: fmtInstant(inv.UpdatedAt),
	}
	if !inv.PaidAmount.IsZero() {
		dto.PaidAmount = inv.PaidAmount.StringFixed(2)
	}
	for _, item := range items {
		dto.LineItems = append(dto.LineItems, LineItemDTO{
			ID:             item.ID,
			Description:    item.Description,
			ServiceFee:     item.ServiceFee.StringFixed(2),
			VATAmount:      item.VATAmount.StringFixed(2),
			GrossAmount:    item.GrossAmount.StringFixed(2),
			WithholdingTax: item.WithholdingTax.StringFixed(2),
			NetAmount:      item.NetAmount.StringFixed(2),
		})
	}
	return dto
}

func toScheduleDTO(s *billing.ScheduledBilling) ScheduleDTO {
	dto := ScheduleDTO{
		ID:                string(s.ID),
		ContractID:        string(s.ContractID),
		EntityID:          string(s.EntityID),
		Amount:            s.Amount.StringFixed(2),
		VATType:           string(s.VATType),
		VATInclusive:      s.VATInclusive,
		Withholding:       s.Withholding,
		Frequency:         string(s.Frequency),
		BillingDayOfMonth: s.BillingDayOfMonth,
		DueDayOfMonth:     s.DueDayOfMonth,
		CustomValue:       s.CustomValue,
		CustomUnit:        string(s.CustomUnit),
		StartDate:         s.StartDate.String(),
		AutoApprove:       s.AutoApprove,
		AutoSendEnabled:   s.AutoSendEnabled,
		Status:            string(s.Status),
		CreatedAt:         fmtInstant(s.CreatedAt),
		UpdatedAt:         fmtInstant(s.UpdatedAt),
	}
	if !s.WithholdingRate.IsZero() {
		dto.WithholdingRate = s.WithholdingRate.String()
	}
	if s.EndDate != nil {
		e := s.EndDate.String()
		dto.EndDate = &e
	}
	if !s.NextBillingDate.IsZero() {
		dto.NextBillingDate = s.NextBillingDate.String()
	}
	return dto
}

func toFollowUpLogDTO(l billing.FollowUpLog) FollowUpLogDTO {
	return FollowUpLogDTO{
		ID:        l.ID,
		InvoiceID: string(l.InvoiceID),
		Level:     l.Level,
		Template:  l.Template,
		Recipient: l.Recipient,
		Success:   l.Success,
		Error:     l.Error,
		SentAt:    fmtInstant(l.SentAt),
	}
}

func toJobRunDTO(run billing.JobRun) JobRunDTO {
	return JobRunDTO{
		ID:          string(run.ID),
		Status:      string(run.Status),
		StartedAt:   fmtInstant(run.StartedAt),
		CompletedAt: fmtInstantPtr(run.CompletedAt),
		Processed:   run.Processed,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		Errors:      run.Errors,
	}
}
