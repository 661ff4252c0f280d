/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles configuration,
  dependency injection, the cron scheduler, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load settings (YAML over defaults)
  3. Initialize SQLite store
  4. Wire services (generator, mailer, follow-ups, sweep)
  5. Start the cron-driven sweep scheduler
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: billing.db)
             Use ":memory:" for an in-memory database
  -settings  YAML settings file (optional; defaults apply without it)
  -smtp      SMTP relay host:port (optional; email is logged when unset)
  -from      SMTP sender address (with -smtp)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler (waits for an in-flight sweep)
  2. Stop accepting new connections, drain for up to 30s
  3. Close database connection

EXAMPLES:
  # Run with file database and defaults
  ./server -db="./data/billing.db"

  # Run with custom settings and real email
  ./server -settings=billing.yaml -smtp=relay.internal:25 -from=billing@example.com

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Cron-driven sweep
  - settings/settings.go: YAML keys
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/invoicing"
	"github.com/warp/billing-engine/mail"
	"github.com/warp/billing-engine/pdf"
	"github.com/warp/billing-engine/settings"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "billing.db", "SQLite database path")
	settingsPath := flag.String("settings", "", "YAML settings file")
	smtpAddr := flag.String("smtp", "", "SMTP relay host:port (email is logged when unset)")
	smtpFrom := flag.String("from", "", "SMTP sender address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	prov, err := settings.Load(*settingsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load settings")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	var sender billing.EmailSender
	if *smtpAddr != "" {
		sender = &mail.SMTPSender{Addr: *smtpAddr, From: *smtpFrom}
		logger.Info().Str("relay", *smtpAddr).Msg("email delivery via SMTP")
	} else {
		sender = mail.NewLogSender(logger)
		logger.Info().Msg("email delivery disabled, messages will be logged")
	}
	renderer := pdf.New()
	notifier := invoicing.NewLogNotifier(logger)

	generator := invoicing.NewGenerator(store, prov, logger)
	mailer := invoicing.NewMailer(store, sender, renderer, prov, logger)
	followUps := invoicing.NewFollowUpEngine(store, sender, renderer, prov, notifier, logger)
	schedules := invoicing.NewScheduleService(store, logger)
	sweep := invoicing.NewSweep(store, generator, mailer, notifier, logger)

	scheduler := api.NewSweepScheduler(sweep, prov, logger)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, generator, mailer, followUps, schedules, sweep, prov, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server stopped")
}
