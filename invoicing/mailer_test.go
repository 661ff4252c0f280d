package invoicing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
)

func TestSendInvoice_Approved_TransitionsToSent(t *testing.T) {
	// GIVEN: An approved invoice
	// WHEN: Sending it
	// THEN: The email goes out, a success row lands in the email log, and
	//       the status moves to SENT

	r := newRig(t)
	ctx := context.Background()
	inv := seedSentInvoice(t, r, "inv-1")
	inv.Status = billing.InvoiceApproved
	require.NoError(t, r.store.UpdateInvoice(ctx, inv))

	require.NoError(t, r.mailer.SendInvoice(ctx, inv))

	assert.Equal(t, billing.InvoiceSent, inv.Status)
	require.NotNil(t, inv.SentAt)
	assert.Equal(t, frozenNow, *inv.SentAt)

	msgs := r.sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, inv.BillingNumber)
	assert.Equal(t, []string{"finance@client.example"}, msgs[0].To)

	logs := r.store.EmailLogs()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.NotEmpty(t, logs[0].MessageID)

	persisted, err := r.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceSent, persisted.Status)
}

func TestSendInvoice_NotApproved_Rejected(t *testing.T) {
	// GIVEN: A pending invoice
	// WHEN: Sending it
	// THEN: A TransitionError before any transport call

	r := newRig(t)
	ctx := context.Background()
	inv := seedSentInvoice(t, r, "inv-1")
	inv.Status = billing.InvoicePending
	require.NoError(t, r.store.UpdateInvoice(ctx, inv))

	err := r.mailer.SendInvoice(ctx, inv)

	var te *billing.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Empty(t, r.sender.messages())
	assert.Empty(t, r.store.EmailLogs())
}

func TestSendInvoice_TransportFailure_StaysApproved(t *testing.T) {
	// GIVEN: An approved invoice and a failing transport
	// WHEN: Sending it
	// THEN: The failure is recorded in the email log and the invoice stays
	//       APPROVED for a manual resend

	r := newRig(t)
	ctx := context.Background()
	inv := seedSentInvoice(t, r, "inv-1")
	inv.Status = billing.InvoiceApproved
	require.NoError(t, r.store.UpdateInvoice(ctx, inv))
	r.sender.fail(errors.New("smtp 421 service unavailable"))

	err := r.mailer.SendInvoice(ctx, inv)
	require.Error(t, err)

	assert.Equal(t, billing.InvoiceApproved, inv.Status)
	assert.Nil(t, inv.SentAt)

	logs := r.store.EmailLogs()
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].Error, "smtp 421")
}

func TestSendInvoice_NoValidRecipient_Rejected(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	inv := seedSentInvoice(t, r, "inv-1")
	inv.Status = billing.InvoiceApproved
	inv.Emails = []string{"not-an-address"}
	require.NoError(t, r.store.UpdateInvoice(ctx, inv))

	err := r.mailer.SendInvoice(ctx, inv)

	assert.ErrorIs(t, err, billing.ErrNoRecipientEmail)
	assert.Empty(t, r.sender.messages())
}
