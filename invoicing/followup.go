/*
followup.go - Follow-up escalation engine

PURPOSE:
  Escalates unpaid SENT invoices through at most three reminder levels.
  Each level uses its own configured template; a missing template fails
  the escalation cleanly rather than sending a generic fallback.

LEVEL INVARIANT:
  Logged levels for an invoice form a strictly increasing sequence
  1, 2, 3. Level N+1 requires the invoice to sit at level N; level 4
  never exists.

DAYS OVERDUE:
  Computed date-only (time components zeroed) as max(0, today - dueDate),
  so timezone and time-of-day drift can't produce off-by-one reminders.
*/
package invoicing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/settings"
)

// FollowUpEngine sends escalation reminders for overdue invoices.
type FollowUpEngine struct {
	Repo      billing.Repository
	Sender    billing.EmailSender
	Renderer  billing.PDFRenderer
	Templates *settings.TemplateStore
	Notifier  billing.Notifier
	Settings  *settings.Provider
	Logger    zerolog.Logger
	Now       func() time.Time
}

func NewFollowUpEngine(repo billing.Repository, sender billing.EmailSender, renderer billing.PDFRenderer, prov *settings.Provider, notifier billing.Notifier, logger zerolog.Logger) *FollowUpEngine {
	return &FollowUpEngine{
		Repo:      repo,
		Sender:    sender,
		Renderer:  renderer,
		Templates: prov.Templates,
		Notifier:  notifier,
		Settings:  prov,
		Logger:    logger.With().Str("component", "followup").Logger(),
		Now:       time.Now,
	}
}

// Send escalates the invoice to its next level (lastLevel + 1).
func (e *FollowUpEngine) Send(ctx context.Context, id billing.InvoiceID) (*billing.FollowUpLog, error) {
	inv, err := e.Repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("follow-up: %w", err)
	}
	return e.SendLevel(ctx, inv, inv.LastFollowUpLevel+1)
}

// SendLevel escalates to an explicit level. The level must be exactly one
// past the invoice's current level; anything else is rejected before any
// side effect.
func (e *FollowUpEngine) SendLevel(ctx context.Context, inv *billing.Invoice, level int) (*billing.FollowUpLog, error) {
	if level > billing.MaxFollowUpLevel {
		return nil, &billing.FollowUpLevelError{InvoiceID: inv.ID, Current: inv.LastFollowUpLevel, Requested: level}
	}
	if level != inv.LastFollowUpLevel+1 {
		return nil, &billing.FollowUpLevelError{InvoiceID: inv.ID, Current: inv.LastFollowUpLevel, Requested: level}
	}
	if inv.Status != billing.InvoiceSent {
		return nil, fmt.Errorf("invoice %s has status %s: %w", inv.ID, inv.Status, billing.ErrInvoiceNotSent)
	}
	if !inv.FollowUpEnabled {
		return nil, fmt.Errorf("invoice %s: %w", inv.ID, billing.ErrFollowUpDisabled)
	}
	recipients := billing.ValidEmails(inv.Emails)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("invoice %s: %w", inv.ID, billing.ErrNoRecipientEmail)
	}

	tmpl, err := e.Templates.Get(string(inv.EntityID), level)
	if err != nil {
		return nil, fmt.Errorf("invoice %s level %d: %w", inv.ID, level, err)
	}

	now := e.Now()
	subject, body := e.render(tmpl, inv, now)

	msg := billing.Email{To: recipients, Subject: subject, TextBody: body}
	if pdf := e.renderPDF(ctx, inv); pdf != nil {
		msg.Attachments = append(msg.Attachments, billing.Attachment{
			Filename:    fmt.Sprintf("invoice-%s.pdf", inv.BillingNumber),
			ContentType: "application/pdf",
			Data:        pdf,
		})
	}

	_, sendErr := e.Sender.Send(ctx, msg)

	logRow := billing.FollowUpLog{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		Level:     level,
		Template:  fmt.Sprintf("level-%d", level),
		Recipient: recipients[0],
		Success:   sendErr == nil,
		SentAt:    now,
	}
	if sendErr != nil {
		logRow.Error = sendErr.Error()
	}
	if err := e.Repo.AppendFollowUpLog(ctx, logRow); err != nil {
		e.Logger.Error().Err(err).Str("invoice", string(inv.ID)).Msg("follow-up log append failed")
	}

	if sendErr != nil {
		// Invoice tracking untouched; the same level can be retried later.
		return &logRow, fmt.Errorf("follow-up level %d for %s: %w", level, inv.BillingNumber, sendErr)
	}

	inv.FollowUpCount++
	inv.LastFollowUpLevel = level
	inv.LastFollowUpAt = &now
	inv.UpdatedAt = now
	if err := e.Repo.UpdateInvoice(ctx, inv); err != nil {
		return &logRow, fmt.Errorf("follow-up level %d for %s: persist tracking: %w", level, inv.BillingNumber, err)
	}

	if e.Notifier != nil {
		e.Notifier.Notify(ctx, billing.NotifyFollowUpSent, inv,
			fmt.Sprintf("follow-up level %d sent for %s", level, inv.BillingNumber))
	}
	e.Logger.Info().
		Str("billing_number", inv.BillingNumber).
		Int("level", level).
		Msg("follow-up sent")
	return &logRow, nil
}

// DaysOverdue is the date-only overdue count, never negative.
func DaysOverdue(dueDate billing.Date, now time.Time) int {
	days := billing.DaysBetween(dueDate, billing.DateOf(now))
	if days < 0 {
		return 0
	}
	return days
}

func (e *FollowUpEngine) render(tmpl settings.Template, inv *billing.Invoice, now time.Time) (subject, body string) {
	r := strings.NewReplacer(
		"{{name}}", inv.RecipientName,
		"{{invoiceNumber}}", inv.BillingNumber,
		"{{amount}}", inv.GrossAmount.StringFixed(2),
		"{{dueDate}}", inv.DueDate.String(),
		"{{daysOverdue}}", strconv.Itoa(DaysOverdue(inv.DueDate, now)),
	)
	subject = r.Replace(tmpl.Subject)
	body = r.Replace(tmpl.Greeting) + "\n\n" + r.Replace(tmpl.Body) + "\n\n" + r.Replace(tmpl.Closing)
	return subject, body
}

func (e *FollowUpEngine) renderPDF(ctx context.Context, inv *billing.Invoice) []byte {
	if e.Renderer == nil {
		return nil
	}
	items, err := e.Repo.LineItems(ctx, inv.ID)
	if err != nil {
		return nil
	}
	pdf, err := e.Renderer.RenderInvoicePDF(ctx, inv, items, e.Settings.Branding)
	if err != nil {
		e.Logger.Warn().Err(err).
			Str("billing_number", inv.BillingNumber).
			Msg("pdf render failed, sending follow-up without attachment")
		return nil
	}
	return pdf
}
