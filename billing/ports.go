/*
ports.go - External collaborator interfaces

PURPOSE:
  Email transport, PDF rendering, and notifications are external systems.
  The engine consumes them through these interfaces and never retries
  automatically: a send failure is recorded against its log row and the
  invoice keeps its pre-attempt status, so a later manual retry is safe.
*/
package billing

import "context"

// Email is an outbound message.
type Email struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailSender delivers email. Returns the provider message id on success.
type EmailSender interface {
	Send(ctx context.Context, msg Email) (messageID string, err error)
}

// PDFRenderer produces the invoice attachment. Render failure is non-fatal
// to the send path: the caller logs and continues without a PDF.
type PDFRenderer interface {
	RenderInvoicePDF(ctx context.Context, inv *Invoice, items []InvoiceLineItem, branding Branding) ([]byte, error)
}

// Branding is passed through to the renderer from the settings provider.
type Branding struct {
	CompanyName string
	LogoURL     string
	FooterNote  string
}

// Notifier raises operator-facing notifications (renewal review pending,
// follow-up sent). The default implementation logs.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, inv *Invoice, message string)
}

type NotificationKind string

const (
	NotifyRenewalReview NotificationKind = "renewal_review"
	NotifyFollowUpSent  NotificationKind = "follow_up_sent"
	NotifyAutoSent      NotificationKind = "auto_sent"
)
