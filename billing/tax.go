/*
tax.go - Statutory tax and amount calculation

PURPOSE:
  Computes the full monetary breakdown of an invoice line: service fee,
  VAT, gross, withholding tax, and net. Pure and deterministic; the same
  input always yields the same output and nothing here performs I/O.

ROUNDING:
  Every monetary output is independently rounded to 2 decimal places with
  round-half-up semantics before being combined. decimal.Round rounds half
  away from zero, which is half-up for the non-negative amounts produced
  here. The invariant NetAmount == GrossAmount - WithholdingTax therefore
  holds exactly on the rounded values.

VAT SEMANTICS:
  Non-VAT clients pay no VAT: service fee = amount, VAT = 0.
  VAT clients with a VAT-inclusive amount: fee = amount / (1 + rate).
  VAT clients with a VAT-exclusive amount: fee = amount, VAT additive.

DISCOUNTS:
  Applied to the service fee pre-VAT. Percentage = value/100 x fee.
  Fixed = value, clamped so the fee never goes negative. Withholding is
  computed on the discounted fee.

SEE ALSO:
  - types.go: DiscountType, VATType
  - invoicing/generator.go: invokes Calculate once per line item
*/
package billing

import "github.com/shopspring/decimal"

// Statutory defaults. The settings provider may override both; the
// orchestrator resolves effective rates before calling Calculate so a
// missing configuration is surfaced there, never silently defaulted here.
var (
	DefaultVATRate         = decimal.NewFromFloat(0.12)
	DefaultWithholdingRate = decimal.NewFromFloat(0.02)
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Discount reduces the service fee before VAT and withholding.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// TaxInput is everything Calculate needs. Rates must already be resolved;
// Calculate treats them literally.
type TaxInput struct {
	Amount          decimal.Decimal
	VATInclusive    bool
	VATClient       bool
	Withholding     bool
	VATRate         decimal.Decimal
	WithholdingRate decimal.Decimal
	Discount        *Discount
}

// TaxResult is the rounded monetary breakdown of one line.
type TaxResult struct {
	ServiceFee     decimal.Decimal
	VATAmount      decimal.Decimal
	GrossAmount    decimal.Decimal
	WithholdingTax decimal.Decimal
	NetAmount      decimal.Decimal
}

// Calculate computes the breakdown for a single amount. Pure; never errors
// for valid numeric input.
func Calculate(in TaxInput) TaxResult {
	fee := in.Amount
	if in.VATClient && in.VATInclusive {
		fee = in.Amount.Div(one.Add(in.VATRate))
	}

	fee = applyDiscount(fee, in.Discount)

	serviceFee := fee.Round(2)

	vat := decimal.Zero
	if in.VATClient {
		vat = serviceFee.Mul(in.VATRate).Round(2)
	}

	gross := serviceFee.Add(vat)

	withholding := decimal.Zero
	if in.Withholding {
		withholding = serviceFee.Mul(in.WithholdingRate).Round(2)
	}

	return TaxResult{
		ServiceFee:     serviceFee,
		VATAmount:      vat,
		GrossAmount:    gross,
		WithholdingTax: withholding,
		NetAmount:      gross.Sub(withholding),
	}
}

func applyDiscount(fee decimal.Decimal, d *Discount) decimal.Decimal {
	if d == nil {
		return fee
	}
	switch d.Type {
	case DiscountPercentage:
		return fee.Sub(fee.Mul(d.Value.Div(hundred)))
	case DiscountFixed:
		cut := d.Value
		if cut.GreaterThan(fee) {
			cut = fee
		}
		return fee.Sub(cut)
	default:
		return fee
	}
}
