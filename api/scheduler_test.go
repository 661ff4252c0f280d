package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/invoicing"
	"github.com/warp/billing-engine/settings"
	"github.com/warp/billing-engine/store/memory"
)

func newScheduler(t *testing.T) *api.SweepScheduler {
	t.Helper()
	store := memory.New()
	prov := settings.Default()
	logger := zerolog.Nop()
	gen := invoicing.NewGenerator(store, prov, logger)
	gen.Now = clock
	mailer := invoicing.NewMailer(store, &stubSender{}, nil, prov, logger)
	mailer.Now = clock
	sweep := invoicing.NewSweep(store, gen, mailer, invoicing.NewLogNotifier(logger), logger)
	sweep.Now = clock

	s := api.NewSweepScheduler(sweep, prov, logger)
	s.Now = clock
	return s
}

func TestSweepScheduler_NextFireTime_BusinessTimezone(t *testing.T) {
	// GIVEN: The default 06:00 Asia/Manila cron, with the clock at 14:00
	//        Manila on June 15
	// WHEN: Computing the next fire time
	// THEN: It fires 06:00 Manila on June 16

	s := newScheduler(t)
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	fire := s.NextFireTime()

	assert.Equal(t, time.Date(2025, time.June, 16, 6, 0, 0, 0, manila).UTC(), fire.UTC())
}

func TestSweepScheduler_RunNow_UsesBusinessDay(t *testing.T) {
	// GIVEN: No due schedules
	// WHEN: Triggering an immediate sweep
	// THEN: A completed job run for the current Manila day, nothing processed

	s := newScheduler(t)

	job, err := s.RunNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", string(job.Status))
	assert.Zero(t, job.Processed)
}

func TestSweepScheduler_StartStop_Idempotent(t *testing.T) {
	s := newScheduler(t)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSweepScheduler_RestartAfterStop(t *testing.T) {
	// GIVEN: A scheduler that completed one Start/Stop cycle
	// WHEN: Starting and stopping it again
	// THEN: The second cycle runs cleanly on a fresh stop channel

	s := newScheduler(t)

	s.Start()
	s.Stop()
	s.Start()
	s.Stop()
}
