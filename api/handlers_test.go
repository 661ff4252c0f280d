package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
	"github.com/warp/billing-engine/settings"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

// 14:00 June 15 in Manila; the business day is June 15.
var frozenNow = time.Date(2025, time.June, 15, 6, 0, 0, 0, time.UTC)

func clock() time.Time { return frozenNow }

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type stubSender struct {
	mu   sync.Mutex
	sent int
}

func (s *stubSender) Send(_ context.Context, _ billing.Email) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return fmt.Sprintf("msg-%d", s.sent), nil
}

type harness struct {
	router http.Handler
	store  *memory.Store
	sender *stubSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.SaveEntity(ctx, &billing.Entity{
		ID: "acme", Name: "Acme Operations Inc.", Prefix: "ACME",
	}))
	require.NoError(t, store.SaveContract(ctx, &billing.Contract{
		ID:          "contract-1",
		CompanyName: "Client Co",
		Emails:      []string{"finance@client.example"},
		MonthlyFee:  d("10000"),
		VATType:     billing.VATRegistered,
		Withholding: true,
		Status:      billing.ContractActive,
		NextDueDate: billing.NewDate(2025, time.June, 30),
	}))

	prov := settings.Default()
	logger := zerolog.Nop()
	sender := &stubSender{}
	notifier := invoicing.NewLogNotifier(logger)

	gen := invoicing.NewGenerator(store, prov, logger)
	gen.Now = clock
	mailer := invoicing.NewMailer(store, sender, nil, prov, logger)
	mailer.Now = clock
	followUps := invoicing.NewFollowUpEngine(store, sender, nil, prov, notifier, logger)
	followUps.Now = clock
	schedules := invoicing.NewScheduleService(store, logger)
	schedules.Now = clock
	sweep := invoicing.NewSweep(store, gen, mailer, notifier, logger)
	sweep.Now = clock

	h := api.NewHandler(store, gen, mailer, followUps, schedules, sweep, prov, logger)
	h.Now = clock

	return &harness{router: api.NewRouter(h), store: store, sender: sender}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func validScheduleBody() map[string]any {
	return map[string]any{
		"contract_id":          "contract-1",
		"entity_id":            "acme",
		"amount":               "10000.00",
		"vat_type":             "VAT",
		"withholding":          true,
		"frequency":            "MONTHLY",
		"billing_day_of_month": 15,
		"due_day_of_month":     30,
		"start_date":           "2025-01-01",
	}
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestAPI_CreateAndApproveSchedule(t *testing.T) {
	// GIVEN: A valid schedule request
	// WHEN: Creating then approving it
	// THEN: It starts PENDING and activates with a computed next billing date

	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/schedules", validScheduleBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created api.ScheduleDTO
	decodeAs(t, rec, &created)
	assert.Equal(t, "PENDING", created.Status)
	assert.NotEmpty(t, created.ID)

	rec = h.do(t, http.MethodPost, "/api/schedules/"+created.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var approved api.ScheduleDTO
	decodeAs(t, rec, &approved)
	assert.Equal(t, "ACTIVE", approved.Status)
	assert.Equal(t, "2025-07-15", approved.NextBillingDate)
}

func TestAPI_CreateSchedule_InvalidDay_BadRequest(t *testing.T) {
	h := newHarness(t)
	body := validScheduleBody()
	body["billing_day_of_month"] = 32

	rec := h.do(t, http.MethodPost, "/api/schedules", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestAPI_CreateSchedule_UnknownContract_NotFound(t *testing.T) {
	h := newHarness(t)
	body := validScheduleBody()
	body["contract_id"] = "ghost"

	rec := h.do(t, http.MethodPost, "/api/schedules", body)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

// =============================================================================
// INVOICE LIFECYCLE OVER HTTP
// =============================================================================

func generateAdHocInvoice(t *testing.T, h *harness) api.InvoiceDTO {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/invoices/generate", map[string]any{
		"entity_id":      "acme",
		"recipient_name": "Walk-in Client",
		"emails":         []string{"walkin@client.example"},
		"due_date":       "2025-06-30",
		"vat_type":       "VAT",
		"withholding":    true,
		"lines": []map[string]any{
			{"description": "Consulting", "amount": "10000"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv api.InvoiceDTO
	decodeAs(t, rec, &inv)
	return inv
}

func TestAPI_GenerateApproveSendPay(t *testing.T) {
	// GIVEN: An ad-hoc invoice
	// WHEN: Walking it through approve, send, pay
	// THEN: Every step returns the advanced status

	h := newHarness(t)
	inv := generateAdHocInvoice(t, h)
	assert.Equal(t, "ACME0000000001", inv.BillingNumber)
	assert.Equal(t, "PENDING", inv.Status)
	assert.Equal(t, "11200.00", inv.GrossAmount)
	require.Len(t, inv.LineItems, 1)

	rec := h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/approve",
		map[string]any{"approver": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent api.InvoiceDTO
	decodeAs(t, rec, &sent)
	assert.Equal(t, "SENT", sent.Status)

	rec = h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/pay",
		map[string]any{"method": "bank_transfer", "amount": "11000.00", "reference": "OR-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid api.InvoiceDTO
	decodeAs(t, rec, &paid)
	assert.Equal(t, "PAID", paid.Status)
	assert.Equal(t, "11000.00", paid.PaidAmount)
}

func TestAPI_ApproveWithoutApprover_BadRequest(t *testing.T) {
	h := newHarness(t)
	inv := generateAdHocInvoice(t, h)

	rec := h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/approve", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestAPI_PayPendingInvoice_Conflict(t *testing.T) {
	// GIVEN: A pending (never sent) invoice
	// WHEN: Recording a payment
	// THEN: 409, the transition is illegal

	h := newHarness(t)
	inv := generateAdHocInvoice(t, h)

	rec := h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/pay",
		map[string]any{"method": "bank_transfer", "amount": "11000.00"})

	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestAPI_GetInvoice_Unknown_NotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/invoices/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestAPI_FollowUpAfterSend(t *testing.T) {
	h := newHarness(t)

	var inv api.InvoiceDTO
	rec := h.do(t, http.MethodPost, "/api/invoices/generate", map[string]any{
		"entity_id":         "acme",
		"recipient_name":    "Walk-in Client",
		"emails":            []string{"walkin@client.example"},
		"due_date":          "2025-06-01",
		"vat_type":          "VAT",
		"follow_up_enabled": true,
		"lines":             []map[string]any{{"description": "Consulting", "amount": "5000"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeAs(t, rec, &inv)

	h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/approve", map[string]any{"approver": "alice"})
	h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/send", nil)

	rec = h.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/followup", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var logRow api.FollowUpLogDTO
	decodeAs(t, rec, &logRow)
	assert.Equal(t, 1, logRow.Level)
	assert.True(t, logRow.Success)

	rec = h.do(t, http.MethodGet, "/api/invoices/"+inv.ID+"/followups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []api.FollowUpLogDTO
	decodeAs(t, rec, &logs)
	assert.Len(t, logs, 1)
}

// =============================================================================
// JOBS
// =============================================================================

func TestAPI_TriggerSweepAndListRuns(t *testing.T) {
	// GIVEN: An active day-15 schedule
	// WHEN: Triggering a sweep for June 15 over HTTP
	// THEN: One schedule processes and the run shows up in the history

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveSchedule(ctx, &billing.ScheduledBilling{
		ID:                "sched-1",
		ContractID:        "contract-1",
		EntityID:          "acme",
		Amount:            d("10000"),
		VATType:           billing.VATRegistered,
		Withholding:       true,
		Frequency:         billing.FreqMonthly,
		BillingDayOfMonth: 15,
		DueDayOfMonth:     30,
		StartDate:         billing.NewDate(2025, time.January, 1),
		NextBillingDate:   billing.NewDate(2025, time.June, 15),
		Status:            billing.ScheduleActive,
	}))

	rec := h.do(t, http.MethodPost, "/api/jobs/sweep", map[string]any{"date": "2025-06-15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var job api.JobRunDTO
	decodeAs(t, rec, &job)
	assert.Equal(t, "COMPLETED", job.Status)
	assert.Equal(t, 1, job.Processed)

	rec = h.do(t, http.MethodGet, "/api/jobs/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []api.JobRunDTO
	decodeAs(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, job.ID, runs[0].ID)
}

func TestAPI_Healthz(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
