package invoicing

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/warp/billing-engine/billing"
)

// LogNotifier is the default Notifier: notifications become structured log
// lines for operators. A real deployment swaps in chat/webhook delivery.
type LogNotifier struct {
	Logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, kind billing.NotificationKind, inv *billing.Invoice, message string) {
	n.Logger.Info().
		Str("kind", string(kind)).
		Str("billing_number", inv.BillingNumber).
		Msg(message)
}
