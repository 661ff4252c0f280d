/*
generator.go - Invoice generation orchestrator

PURPOSE:
  Materializes an Invoice and its line items from a schedule, a contract,
  or an ad-hoc request. Resolves the true recipient (a consolidated-billing
  partner supersedes the contract's own fields), runs the tax calculator
  once per line item, and persists through the repository, which allocates
  the entity-scoped billing number atomically with the insert.

NUMBERING:
  The billing number ({prefix}{sequence padded to 10 digits}) is reserved
  inside CreateInvoice. A generation that fails before persistence never
  consumes a number.

ERROR CONDITIONS:
  A missing contract, entity, or partner is fatal for the single item and
  surfaces as a wrapped not-found error. Rate-bearing fields come from the
  settings provider; they are resolved here, never defaulted silently
  inside the calculator.

SEE ALSO:
  - billing/tax.go: per-line calculation
  - sweep.go: invokes Generate per due schedule
*/
package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/settings"
)

// Line is one requested invoice line before tax calculation.
type Line struct {
	Description string
	Amount      decimal.Decimal
	Discount    *billing.Discount
}

// Recipient is an explicit ad-hoc invoice recipient.
type Recipient struct {
	Name      string
	Attention string
	Address   string
	Emails    []string
}

// GenerateRequest describes one invoice to materialize.
type GenerateRequest struct {
	Source     billing.GenerationSource
	EntityID   billing.EntityID
	ContractID billing.ContractID // resolves recipient when set
	ScheduleID billing.ScheduleID // provenance only
	Recipient  *Recipient         // required for ad-hoc requests without a contract

	Lines   []Line
	DueDate billing.Date

	VATType         billing.VATType
	VATInclusive    bool
	Withholding     bool
	WithholdingRate decimal.Decimal // zero means "use configured default"
	Frequency       billing.Frequency

	AutoApprove     bool
	FollowUpEnabled bool
}

// Generator materializes invoices.
type Generator struct {
	Repo     billing.Repository
	Settings *settings.Provider
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewGenerator(repo billing.Repository, prov *settings.Provider, logger zerolog.Logger) *Generator {
	return &Generator{
		Repo:     repo,
		Settings: prov,
		Logger:   logger.With().Str("component", "generator").Logger(),
		Now:      time.Now,
	}
}

// Generate builds, persists, and audits one invoice.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*billing.Invoice, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("generate: no line items")
	}

	entity, err := g.Repo.GetEntity(ctx, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("generate: entity %s: %w", req.EntityID, err)
	}

	name, attention, address, emails, err := g.resolveRecipient(ctx, req)
	if err != nil {
		return nil, err
	}

	whtRate := req.WithholdingRate
	if whtRate.IsZero() {
		whtRate = g.Settings.Tax.DefaultWithholdingRate
	}
	vatRate := g.Settings.Tax.VATRate

	now := g.Now()
	inv := &billing.Invoice{
		ID:              billing.InvoiceID(uuid.NewString()),
		EntityID:        entity.ID,
		ContractID:      req.ContractID,
		ScheduleID:      req.ScheduleID,
		RecipientName:   name,
		Attention:       attention,
		Address:         address,
		Emails:          emails,
		VATType:         req.VATType,
		Withholding:     req.Withholding,
		WithholdingRate: whtRate,
		WithholdingCode: g.Settings.Tax.DefaultWithholdingCode,
		Frequency:       req.Frequency,
		DueDate:         req.DueDate,
		Status:          billing.InvoicePending,
		Source:          req.Source,
		FollowUpEnabled: req.FollowUpEnabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.AutoApprove {
		inv.Status = billing.InvoiceApproved
		inv.ApprovedBy = "system"
		inv.ApprovedAt = &now
	}

	items := make([]billing.InvoiceLineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		res := billing.Calculate(billing.TaxInput{
			Amount:          line.Amount,
			VATInclusive:    req.VATInclusive,
			VATClient:       req.VATType == billing.VATRegistered,
			Withholding:     req.Withholding,
			VATRate:         vatRate,
			WithholdingRate: whtRate,
			Discount:        line.Discount,
		})
		items = append(items, billing.InvoiceLineItem{
			ID:             uuid.NewString(),
			InvoiceID:      inv.ID,
			Description:    line.Description,
			ServiceFee:     res.ServiceFee,
			VATAmount:      res.VATAmount,
			GrossAmount:    res.GrossAmount,
			WithholdingTax: res.WithholdingTax,
			NetAmount:      res.NetAmount,
		})
		inv.ServiceFee = inv.ServiceFee.Add(res.ServiceFee)
		inv.VATAmount = inv.VATAmount.Add(res.VATAmount)
		inv.GrossAmount = inv.GrossAmount.Add(res.GrossAmount)
		inv.WithholdingTax = inv.WithholdingTax.Add(res.WithholdingTax)
		inv.NetAmount = inv.NetAmount.Add(res.NetAmount)
	}

	if err := g.Repo.CreateInvoice(ctx, inv, items); err != nil {
		return nil, fmt.Errorf("generate: persist invoice: %w", err)
	}

	g.Logger.Info().
		Str("billing_number", inv.BillingNumber).
		Str("recipient", inv.RecipientName).
		Str("amount", inv.GrossAmount.StringFixed(2)).
		Str("source", string(inv.Source)).
		Str("entity", string(inv.EntityID)).
		Msg("invoice generated")

	return inv, nil
}

// resolveRecipient picks the true invoice recipient. A contract bound to a
// consolidated-billing partner is invoiced through the partner's registered
// fields; otherwise the contract's own fields (or the explicit ad-hoc
// recipient) are used.
func (g *Generator) resolveRecipient(ctx context.Context, req GenerateRequest) (name, attention, address string, emails []string, err error) {
	if req.ContractID == "" {
		if req.Recipient == nil {
			return "", "", "", nil, fmt.Errorf("generate: ad-hoc request needs a recipient")
		}
		r := req.Recipient
		return r.Name, r.Attention, r.Address, r.Emails, nil
	}

	contract, err := g.Repo.GetContract(ctx, req.ContractID)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("generate: contract %s: %w", req.ContractID, err)
	}

	if contract.PartnerID != "" {
		partner, err := g.Repo.GetPartner(ctx, contract.PartnerID)
		if err != nil {
			return "", "", "", nil, fmt.Errorf("generate: partner %s for contract %s: %w",
				contract.PartnerID, contract.ID, err)
		}
		if partner.BillingModel == billing.BillingConsolidated {
			return partner.RegisteredName, partner.Attention, partner.Address, partner.Emails, nil
		}
	}

	return contract.CompanyName, contract.Attention, contract.Address, contract.Emails, nil
}

// BillContract performs legacy direct billing: one invoice from the
// contract's monthly fee, then the contract's NextDueDate advances a month.
func (g *Generator) BillContract(ctx context.Context, id billing.ContractID, entityID billing.EntityID, dueDate billing.Date) (*billing.Invoice, error) {
	contract, err := g.Repo.GetContract(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("bill contract %s: %w", id, err)
	}

	inv, err := g.Generate(ctx, GenerateRequest{
		Source:     billing.SourceContract,
		EntityID:   entityID,
		ContractID: id,
		Lines: []Line{{
			Description: fmt.Sprintf("Monthly service fee - %s", contract.CompanyName),
			Amount:      contract.MonthlyFee,
		}},
		DueDate:         dueDate,
		VATType:         contract.VATType,
		Withholding:     contract.Withholding,
		Frequency:       billing.FreqMonthly,
		FollowUpEnabled: true,
	})
	if err != nil {
		return nil, err
	}

	if err := g.Repo.AdvanceContractDue(ctx, id, contract.NextDueDate.AddMonths(1)); err != nil {
		return nil, fmt.Errorf("bill contract %s: advance due date: %w", id, err)
	}
	return inv, nil
}
