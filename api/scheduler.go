/*
scheduler.go - Cron-driven daily sweep

PURPOSE:
  Fires the billing sweep once a day at the configured cron time in the
  configured business timezone. The sweep itself decides which schedules
  are due; this goroutine only decides WHEN to run.

DESIGN:
  - Computes the next fire instant from the cron expression and sleeps
    until then with a timer, re-arming after each run
  - Timezone-aware: "0 6 * * *" with Asia/Manila fires at 06:00 Manila
    time regardless of the host clock's zone
  - Missed-fire policy: if the process was down across a fire time, the
    next start fires at the next cron instant; it does not backfill

USAGE:
  scheduler := NewSweepScheduler(sweep, prov, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - billing/schedule.go: ParseCron, NextFireTime
  - invoicing/sweep.go: the work this triggers
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
	"github.com/warp/billing-engine/settings"
)

// SweepScheduler fires the daily sweep at the configured cron time.
type SweepScheduler struct {
	Sweep    *invoicing.Sweep
	Settings *settings.Provider
	Logger   zerolog.Logger
	Now      func() time.Time

	spec    billing.CronSpec
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewSweepScheduler creates a scheduler. The cron expression was validated
// when settings loaded, so parse failure here falls back to the default.
func NewSweepScheduler(sweep *invoicing.Sweep, prov *settings.Provider, logger zerolog.Logger) *SweepScheduler {
	spec, err := billing.ParseCron(prov.Scheduler.CronExpression)
	if err != nil {
		spec = billing.CronSpec{Minute: 0, Hour: 6}
	}
	return &SweepScheduler{
		Sweep:    sweep,
		Settings: prov,
		Logger:   logger.With().Str("component", "scheduler").Logger(),
		Now:      time.Now,
		spec:     spec,
	}
}

// Start begins the scheduler goroutine.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	// Fresh channel per cycle: Stop closed the previous one, so reusing it
	// would end a restarted goroutine immediately.
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.stop)

	s.Logger.Info().
		Str("cron", s.Settings.Scheduler.CronExpression).
		Str("timezone", s.Settings.Scheduler.Timezone).
		Time("next_fire", s.NextFireTime()).
		Msg("sweep scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.started = false
	s.Logger.Info().Msg("sweep scheduler stopped")
}

// NextFireTime returns the next instant the sweep will fire.
func (s *SweepScheduler) NextFireTime() time.Time {
	return billing.NextFireTime(s.spec, s.Settings.Location(), s.Now())
}

// RunNow triggers an immediate sweep for the current business day.
func (s *SweepScheduler) RunNow(ctx context.Context) (*billing.JobRun, error) {
	today := billing.DateOf(s.Now().In(s.Settings.Location()))
	return s.Sweep.Run(ctx, today)
}

func (s *SweepScheduler) run(stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		next := s.NextFireTime()
		timer := time.NewTimer(next.Sub(s.Now()))

		select {
		case <-timer.C:
			// The fire instant defines the business day, so a sweep that
			// starts moments before midnight still bills the right date.
			day := billing.DateOf(next)
			if _, err := s.Sweep.Run(context.Background(), day); err != nil {
				s.Logger.Error().Err(err).Str("day", day.String()).Msg("scheduled sweep failed")
			}
		case <-stop:
			timer.Stop()
			return
		}
	}
}
