package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
)

func contractRequest(contractID billing.ContractID, lines ...invoicing.Line) invoicing.GenerateRequest {
	return invoicing.GenerateRequest{
		Source:      billing.SourceAdHoc,
		EntityID:    "acme",
		ContractID:  contractID,
		Lines:       lines,
		DueDate:     date(2025, time.June, 30),
		VATType:     billing.VATRegistered,
		Withholding: true,
		Frequency:   billing.FreqMonthly,
	}
}

// =============================================================================
// RECIPIENT RESOLUTION
// =============================================================================

func TestGenerate_DirectContract_UsesContractRecipient(t *testing.T) {
	// GIVEN: A contract with no partner
	// WHEN: Generating one 10000 line
	// THEN: The contract's own fields land on the invoice, with the standard
	//       VAT/withholding breakdown and the entity-prefixed number

	r := newRig(t)
	inv, err := r.gen.Generate(context.Background(),
		contractRequest("contract-direct", invoicing.Line{Description: "Service fee", Amount: d("10000")}))

	require.NoError(t, err)
	assert.Equal(t, "ACME0000000001", inv.BillingNumber)
	assert.Equal(t, "Client Co", inv.RecipientName)
	assert.Equal(t, "Finance", inv.Attention)
	assert.Equal(t, []string{"finance@client.example"}, inv.Emails)
	assert.Equal(t, billing.InvoicePending, inv.Status)
	assert.True(t, inv.ServiceFee.Equal(d("10000.00")), "fee: %s", inv.ServiceFee)
	assert.True(t, inv.VATAmount.Equal(d("1200.00")), "vat: %s", inv.VATAmount)
	assert.True(t, inv.GrossAmount.Equal(d("11200.00")), "gross: %s", inv.GrossAmount)
	assert.True(t, inv.NetAmount.Equal(d("11000.00")), "net: %s", inv.NetAmount)
}

func TestGenerate_ConsolidatedPartner_SupersedesContract(t *testing.T) {
	// GIVEN: A contract bound to a consolidated-billing partner
	// WHEN: Generating
	// THEN: The partner's registered fields replace the contract's own

	r := newRig(t)
	inv, err := r.gen.Generate(context.Background(),
		contractRequest("contract-consolidated", invoicing.Line{Description: "Service fee", Amount: d("5000")}))

	require.NoError(t, err)
	assert.Equal(t, "Umbrella Holdings", inv.RecipientName)
	assert.Equal(t, "AP Team", inv.Attention)
	assert.Equal(t, []string{"ap@umbrella.example"}, inv.Emails)
}

func TestGenerate_DirectPartner_KeepsContractRecipient(t *testing.T) {
	// GIVEN: A contract whose partner bills DIRECT
	// WHEN: Generating
	// THEN: The contract's own fields are used; the partner is a pass-through

	r := newRig(t)
	inv, err := r.gen.Generate(context.Background(),
		contractRequest("contract-channel", invoicing.Line{Description: "Service fee", Amount: d("5000")}))

	require.NoError(t, err)
	assert.Equal(t, "Subsidiary Two", inv.RecipientName)
	assert.Equal(t, []string{"sub2@client.example"}, inv.Emails)
}

func TestGenerate_AdHocWithoutRecipient_Rejected(t *testing.T) {
	r := newRig(t)
	req := contractRequest("", invoicing.Line{Description: "One-off", Amount: d("100")})

	_, err := r.gen.Generate(context.Background(), req)

	assert.Error(t, err)
}

func TestGenerate_AdHocRecipient_UsedVerbatim(t *testing.T) {
	r := newRig(t)
	req := contractRequest("", invoicing.Line{Description: "One-off", Amount: d("100")})
	req.Recipient = &invoicing.Recipient{
		Name:   "Walk-in Client",
		Emails: []string{"walkin@client.example"},
	}

	inv, err := r.gen.Generate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "Walk-in Client", inv.RecipientName)
	assert.Equal(t, []string{"walkin@client.example"}, inv.Emails)
}

// =============================================================================
// NUMBERING
// =============================================================================

func TestGenerate_SequentialNumbering(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	line := invoicing.Line{Description: "Service fee", Amount: d("10000")}

	first, err := r.gen.Generate(ctx, contractRequest("contract-direct", line))
	require.NoError(t, err)
	second, err := r.gen.Generate(ctx, contractRequest("contract-direct", line))
	require.NoError(t, err)

	assert.Equal(t, "ACME0000000001", first.BillingNumber)
	assert.Equal(t, "ACME0000000002", second.BillingNumber)
}

func TestGenerate_FailedGeneration_DoesNotConsumeNumber(t *testing.T) {
	// GIVEN: A generation against an unknown entity that fails
	// WHEN: The next generation succeeds
	// THEN: It still receives sequence 1; failures never burn a number

	r := newRig(t)
	ctx := context.Background()
	line := invoicing.Line{Description: "Service fee", Amount: d("10000")}

	bad := contractRequest("contract-direct", line)
	bad.EntityID = "ghost"
	_, err := r.gen.Generate(ctx, bad)
	require.ErrorIs(t, err, billing.ErrEntityNotFound)

	inv, err := r.gen.Generate(ctx, contractRequest("contract-direct", line))
	require.NoError(t, err)
	assert.Equal(t, "ACME0000000001", inv.BillingNumber)
}

// =============================================================================
// LINES, APPROVAL, VALIDATION
// =============================================================================

func TestGenerate_MultipleLines_SumInvoiceTotals(t *testing.T) {
	// GIVEN: Two lines, the second with a 10% discount
	// WHEN: Generating
	// THEN: Each line carries its own breakdown and the invoice sums them

	r := newRig(t)
	ctx := context.Background()
	inv, err := r.gen.Generate(ctx, contractRequest("contract-direct",
		invoicing.Line{Description: "Base service", Amount: d("10000")},
		invoicing.Line{
			Description: "Add-on",
			Amount:      d("5000"),
			Discount:    &billing.Discount{Type: billing.DiscountPercentage, Value: d("10")},
		},
	))
	require.NoError(t, err)

	items, err := r.store.LineItems(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// 10000 + (5000 - 10%) = 14500 fee; VAT 1740; withholding 290
	assert.True(t, inv.ServiceFee.Equal(d("14500.00")), "fee: %s", inv.ServiceFee)
	assert.True(t, inv.VATAmount.Equal(d("1740.00")), "vat: %s", inv.VATAmount)
	assert.True(t, inv.GrossAmount.Equal(d("16240.00")), "gross: %s", inv.GrossAmount)
	assert.True(t, inv.WithholdingTax.Equal(d("290.00")), "wht: %s", inv.WithholdingTax)
	assert.True(t, inv.NetAmount.Equal(d("15950.00")), "net: %s", inv.NetAmount)
}

func TestGenerate_NoLines_Rejected(t *testing.T) {
	r := newRig(t)
	_, err := r.gen.Generate(context.Background(), contractRequest("contract-direct"))

	assert.Error(t, err)
}

func TestGenerate_AutoApprove_RecordsSystemApprover(t *testing.T) {
	r := newRig(t)
	req := contractRequest("contract-direct", invoicing.Line{Description: "Service fee", Amount: d("10000")})
	req.AutoApprove = true

	inv, err := r.gen.Generate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceApproved, inv.Status)
	assert.Equal(t, "system", inv.ApprovedBy)
	require.NotNil(t, inv.ApprovedAt)
	assert.Equal(t, frozenNow, *inv.ApprovedAt)
}

// =============================================================================
// LEGACY DIRECT CONTRACT BILLING
// =============================================================================

func TestBillContract_InvoicesMonthlyFeeAndAdvancesDueDate(t *testing.T) {
	// GIVEN: A contract with monthly fee 10000, next due June 30
	// WHEN: Billing it directly
	// THEN: One invoice from the fee is created and the contract's next due
	//       date advances a month

	r := newRig(t)
	ctx := context.Background()

	inv, err := r.gen.BillContract(ctx, "contract-direct", "acme", date(2025, time.July, 15))
	require.NoError(t, err)

	assert.Equal(t, billing.SourceContract, inv.Source)
	assert.Equal(t, date(2025, time.July, 15), inv.DueDate)
	assert.True(t, inv.GrossAmount.Equal(d("11200.00")), "gross: %s", inv.GrossAmount)
	assert.True(t, inv.FollowUpEnabled)

	contract, err := r.store.GetContract(ctx, "contract-direct")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.July, 30), contract.NextDueDate)
}

func TestBillContract_UnknownContract_NotFound(t *testing.T) {
	r := newRig(t)
	_, err := r.gen.BillContract(context.Background(), "ghost", "acme", date(2025, time.July, 15))

	assert.ErrorIs(t, err, billing.ErrContractNotFound)
}
