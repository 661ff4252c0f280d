package invoicing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
	"github.com/warp/billing-engine/settings"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// SHARED FIXTURES
// =============================================================================

var frozenNow = time.Date(2025, time.June, 15, 6, 0, 0, 0, time.UTC)

func clock() time.Time { return frozenNow }

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func date(y int, m time.Month, day int) billing.Date {
	return billing.NewDate(y, m, day)
}

// fakeSender records outbound mail and can be flipped into failure mode.
type fakeSender struct {
	mu   sync.Mutex
	sent []billing.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg billing.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeSender) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSender) messages() []billing.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]billing.Email(nil), f.sent...)
}

// recordingNotifier captures operator notifications in order.
type recordingNotifier struct {
	mu    sync.Mutex
	kinds []billing.NotificationKind
}

func (n *recordingNotifier) Notify(_ context.Context, kind billing.NotificationKind, _ *billing.Invoice, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *recordingNotifier) seen(kind billing.NotificationKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// rig wires every invoicing service onto one in-memory store with a frozen
// clock and a recording transport.
type rig struct {
	store     *memory.Store
	sender    *fakeSender
	notifier  *recordingNotifier
	gen       *invoicing.Generator
	mailer    *invoicing.Mailer
	followUps *invoicing.FollowUpEngine
	sweep     *invoicing.Sweep
}

func newRig(t *testing.T) *rig {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.SaveEntity(ctx, &billing.Entity{
		ID: "acme", Name: "Acme Operations Inc.", Prefix: "ACME",
	}))
	require.NoError(t, store.SavePartner(ctx, &billing.Partner{
		ID:             "partner-consolidated",
		RegisteredName: "Umbrella Holdings",
		Attention:      "AP Team",
		Address:        "1 Plaza Drive",
		Emails:         []string{"ap@umbrella.example"},
		BillingModel:   billing.BillingConsolidated,
	}))
	require.NoError(t, store.SavePartner(ctx, &billing.Partner{
		ID:             "partner-channel",
		RegisteredName: "Direct Channel Ltd",
		Emails:         []string{"billing@channel.example"},
		BillingModel:   billing.BillingDirect,
	}))
	require.NoError(t, store.SaveContract(ctx, &billing.Contract{
		ID:          "contract-direct",
		CompanyName: "Client Co",
		Attention:   "Finance",
		Address:     "2 Bay Street",
		Emails:      []string{"finance@client.example"},
		MonthlyFee:  d("10000"),
		VATType:     billing.VATRegistered,
		Withholding: true,
		Status:      billing.ContractActive,
		NextDueDate: date(2025, time.June, 30),
	}))
	require.NoError(t, store.SaveContract(ctx, &billing.Contract{
		ID:          "contract-consolidated",
		CompanyName: "Subsidiary One",
		Emails:      []string{"sub1@client.example"},
		MonthlyFee:  d("5000"),
		VATType:     billing.VATRegistered,
		PartnerID:   "partner-consolidated",
		Status:      billing.ContractActive,
	}))
	require.NoError(t, store.SaveContract(ctx, &billing.Contract{
		ID:          "contract-channel",
		CompanyName: "Subsidiary Two",
		Emails:      []string{"sub2@client.example"},
		MonthlyFee:  d("5000"),
		VATType:     billing.NonVAT,
		PartnerID:   "partner-channel",
		Status:      billing.ContractActive,
	}))

	prov := settings.Default()
	logger := zerolog.Nop()
	sender := &fakeSender{}
	notifier := &recordingNotifier{}

	gen := invoicing.NewGenerator(store, prov, logger)
	gen.Now = clock
	mailer := invoicing.NewMailer(store, sender, nil, prov, logger)
	mailer.Now = clock
	followUps := invoicing.NewFollowUpEngine(store, sender, nil, prov, notifier, logger)
	followUps.Now = clock
	sweep := invoicing.NewSweep(store, gen, mailer, notifier, logger)
	sweep.Now = clock

	return &rig{
		store:     store,
		sender:    sender,
		notifier:  notifier,
		gen:       gen,
		mailer:    mailer,
		followUps: followUps,
		sweep:     sweep,
	}
}

// seedSchedule installs an ACTIVE monthly-day-15 schedule due on the frozen
// sweep day (June 15).
func seedSchedule(t *testing.T, r *rig, id string, freq billing.Frequency, autoApprove, autoSend bool) *billing.ScheduledBilling {
	t.Helper()
	sched := &billing.ScheduledBilling{
		ID:                billing.ScheduleID(id),
		ContractID:        "contract-direct",
		EntityID:          "acme",
		Amount:            d("10000"),
		VATType:           billing.VATRegistered,
		Withholding:       true,
		Frequency:         freq,
		BillingDayOfMonth: 15,
		DueDayOfMonth:     30,
		StartDate:         date(2025, time.January, 1),
		NextBillingDate:   date(2025, time.June, 15),
		AutoApprove:       autoApprove,
		AutoSendEnabled:   autoSend,
		Status:            billing.ScheduleActive,
	}
	require.NoError(t, r.store.SaveSchedule(context.Background(), sched))
	return sched
}

// seedSentInvoice installs a SENT, follow-up-enabled invoice two weeks past
// its due date.
func seedSentInvoice(t *testing.T, r *rig, id string) *billing.Invoice {
	t.Helper()
	inv := &billing.Invoice{
		ID:              billing.InvoiceID(id),
		EntityID:        "acme",
		RecipientName:   "Client Co",
		Emails:          []string{"finance@client.example"},
		GrossAmount:     d("11200.00"),
		DueDate:         date(2025, time.June, 1),
		Status:          billing.InvoiceSent,
		Source:          billing.SourceAdHoc,
		FollowUpEnabled: true,
	}
	require.NoError(t, r.store.CreateInvoice(context.Background(), inv, nil))
	return inv
}
