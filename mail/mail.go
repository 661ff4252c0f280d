/*
Package mail provides EmailSender implementations.

PURPOSE:
  Delivery backends for invoice and follow-up email. Two implementations:

  LogSender:  dev/test default; "sends" by writing a structured log line
              and returns a synthetic message ID
  SMTPSender: plain SMTP with multipart MIME for PDF attachments

  Transport failures surface as errors to the caller, which records them
  in the email log and leaves invoice status untouched.

SEE ALSO:
  - billing/ports.go: the EmailSender interface
  - invoicing/mailer.go: the send path that consumes this
*/
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
)

// LogSender implements billing.EmailSender by logging the message instead
// of delivering it. The default in dev and tests.
type LogSender struct {
	Logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{Logger: logger.With().Str("component", "mail").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg billing.Email) (string, error) {
	messageID := uuid.NewString()
	s.Logger.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Str("message_id", messageID).
		Msg("email logged (not delivered)")
	return messageID, nil
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth // nil for an open relay
}

func (s *SMTPSender) Send(ctx context.Context, msg billing.Email) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	messageID := fmt.Sprintf("<%s@billing>", uuid.NewString())
	body, err := buildMIME(s.From, msg, messageID)
	if err != nil {
		return "", fmt.Errorf("smtp: build message: %w", err)
	}
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, msg.To, body); err != nil {
		return "", fmt.Errorf("smtp: send to %v: %w", msg.To, err)
	}
	return messageID, nil
}

// buildMIME assembles a multipart/mixed message: text body first, then each
// attachment base64-encoded.
func buildMIME(from string, msg billing.Email, messageID string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(msg.TextBody)); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", att.ContentType)
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, part)
		if _, err := enc.Write(att.Data); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
