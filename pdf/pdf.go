/*
Package pdf renders invoice documents.

PURPOSE:
  Produces a minimal single-page PDF for email attachment: branding header,
  recipient block, line items, and the tax breakdown. The layout is fixed
  Helvetica text; no external renderer or headless browser involved.

  Render failure is never fatal to a send - callers attach the PDF when it
  renders and send without it when it doesn't.

SEE ALSO:
  - billing/ports.go: the PDFRenderer interface
  - invoicing/mailer.go: attaches the output
*/
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/warp/billing-engine/billing"
)

// Renderer implements billing.PDFRenderer with a hand-built PDF writer.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// RenderInvoicePDF lays the invoice out as text lines and wraps them in a
// one-page PDF.
func (r *Renderer) RenderInvoicePDF(ctx context.Context, inv *billing.Invoice, items []billing.InvoiceLineItem, branding billing.Branding) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	company := branding.CompanyName
	if company == "" {
		company = "Billing Statement"
	}

	lines := []string{
		company,
		"",
		fmt.Sprintf("Invoice No: %s", inv.BillingNumber),
		fmt.Sprintf("Due Date:   %s", inv.DueDate),
		"",
		fmt.Sprintf("Bill To: %s", inv.RecipientName),
	}
	if inv.Attention != "" {
		lines = append(lines, fmt.Sprintf("Attn:    %s", inv.Attention))
	}
	if inv.Address != "" {
		lines = append(lines, fmt.Sprintf("Address: %s", inv.Address))
	}
	lines = append(lines, "", "Items:")
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("  %-40s %12s", truncate(item.Description, 40), item.GrossAmount.StringFixed(2)))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Service Fee:     %12s", inv.ServiceFee.StringFixed(2)),
		fmt.Sprintf("VAT:             %12s", inv.VATAmount.StringFixed(2)),
		fmt.Sprintf("Gross Amount:    %12s", inv.GrossAmount.StringFixed(2)),
		fmt.Sprintf("Withholding Tax: %12s", inv.WithholdingTax.StringFixed(2)),
		fmt.Sprintf("Net Amount Due:  %12s", inv.NetAmount.StringFixed(2)),
	)
	if branding.FooterNote != "" {
		lines = append(lines, "", branding.FooterNote)
	}

	return buildPDF(lines), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// buildPDF emits a minimal but well-formed PDF: catalog, page tree, one
// page, Helvetica font, and a content stream of Tj operators.
func buildPDF(lines []string) []byte {
	var content bytes.Buffer
	content.WriteString("BT\n/F1 10 Tf\n50 780 Td\n12 TL\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj\nT*\n", escapePDF(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
