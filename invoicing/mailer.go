/*
mailer.go - Invoice send path

PURPOSE:
  Sends an approved invoice to its recipients and records the outcome in
  the email log. The status transition to SENT happens only after the
  transport accepts the message; a transport failure leaves the invoice
  APPROVED and is recorded, never silently retried.

PDF:
  The invoice PDF is an attachment. Render failure is logged and the send
  proceeds without the attachment - losing the PDF is better than losing
  the send.
*/
package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/settings"
)

// Mailer owns the invoice send path.
type Mailer struct {
	Repo     billing.Repository
	Sender   billing.EmailSender
	Renderer billing.PDFRenderer
	Settings *settings.Provider
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewMailer(repo billing.Repository, sender billing.EmailSender, renderer billing.PDFRenderer, prov *settings.Provider, logger zerolog.Logger) *Mailer {
	return &Mailer{
		Repo:     repo,
		Sender:   sender,
		Renderer: renderer,
		Settings: prov,
		Logger:   logger.With().Str("component", "mailer").Logger(),
		Now:      time.Now,
	}
}

// SendInvoice delivers an APPROVED invoice and transitions it to SENT.
// Sending from any other status is rejected before any side effect.
func (m *Mailer) SendInvoice(ctx context.Context, inv *billing.Invoice) error {
	if inv.Status != billing.InvoiceApproved {
		return &billing.TransitionError{InvoiceID: inv.ID, From: inv.Status, To: billing.InvoiceSent}
	}
	recipients := billing.ValidEmails(inv.Emails)
	if len(recipients) == 0 {
		return billing.ErrNoRecipientEmail
	}

	msg := billing.Email{
		To:      recipients,
		Subject: fmt.Sprintf("Invoice %s from %s", inv.BillingNumber, m.Settings.Branding.CompanyName),
		TextBody: fmt.Sprintf("Please find attached invoice %s for %s, due %s.",
			inv.BillingNumber, inv.GrossAmount.StringFixed(2), inv.DueDate),
	}

	if pdf := m.renderPDF(ctx, inv); pdf != nil {
		msg.Attachments = append(msg.Attachments, billing.Attachment{
			Filename:    fmt.Sprintf("invoice-%s.pdf", inv.BillingNumber),
			ContentType: "application/pdf",
			Data:        pdf,
		})
	}

	now := m.Now()
	messageID, sendErr := m.Sender.Send(ctx, msg)

	logRow := billing.EmailLog{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		Recipient: recipients[0],
		Subject:   msg.Subject,
		Success:   sendErr == nil,
		MessageID: messageID,
		SentAt:    now,
	}
	if sendErr != nil {
		logRow.Error = sendErr.Error()
	}
	if err := m.Repo.AppendEmailLog(ctx, logRow); err != nil {
		m.Logger.Error().Err(err).Str("invoice", string(inv.ID)).Msg("email log append failed")
	}

	if sendErr != nil {
		m.Logger.Error().Err(sendErr).
			Str("billing_number", inv.BillingNumber).
			Msg("invoice send failed, status unchanged")
		return fmt.Errorf("send invoice %s: %w", inv.BillingNumber, sendErr)
	}

	if err := billing.MarkSent(inv, now); err != nil {
		return err
	}
	if err := m.Repo.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("send invoice %s: persist status: %w", inv.BillingNumber, err)
	}

	m.Logger.Info().
		Str("billing_number", inv.BillingNumber).
		Str("message_id", messageID).
		Int("recipients", len(recipients)).
		Msg("invoice sent")
	return nil
}

func (m *Mailer) renderPDF(ctx context.Context, inv *billing.Invoice) []byte {
	if m.Renderer == nil {
		return nil
	}
	items, err := m.Repo.LineItems(ctx, inv.ID)
	if err != nil {
		m.Logger.Warn().Err(err).Str("invoice", string(inv.ID)).Msg("line items unavailable for pdf")
		return nil
	}
	pdf, err := m.Renderer.RenderInvoicePDF(ctx, inv, items, m.Settings.Branding)
	if err != nil {
		m.Logger.Warn().Err(err).
			Str("billing_number", inv.BillingNumber).
			Msg("pdf render failed, sending without attachment")
		return nil
	}
	return pdf
}
