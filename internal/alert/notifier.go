package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Notifier delivers signal alerts to an external transport. Failures
// must never fail the caller's cycle; implementations count and log.
type Notifier interface {
	// Notify delivers one signal alert.
	Notify(ctx context.Context, sig *types.Signal) error

	// Name identifies the transport in signal payloads.
	Name() string
}

// LogNotifier writes alerts to the application log. Used when no real
// transport is configured (dry-run).
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name identifies the transport in signal payloads.
func (n *LogNotifier) Name() string {
	return "dry-run"
}

// Notify logs the alert at info level.
func (n *LogNotifier) Notify(_ context.Context, sig *types.Signal) error {
	n.logger.Info("signal-alert",
		zap.String("signal-id", sig.SignalID),
		zap.String("market-id", sig.MarketID),
		zap.String("rule", sig.Payload.RuleName),
		zap.String("level", sig.Level),
		zap.Float64("edge-score", sig.EdgeScore),
		zap.String("reason", sig.Reason))
	AlertsSentTotal.WithLabelValues(n.Name()).Inc()
	return nil
}

// Alerts list at most this many trade legs.
const maxAlertLegs = 3

// FormatSignal renders the human-readable alert text shared by all
// transports.
func FormatSignal(sig *types.Signal) string {
	title := sig.Payload.MarketTitle
	if title == "" {
		title = sig.MarketID
	}

	text := fmt.Sprintf("[%s] %s\n%s\nrule=%s score=%.2f edge=%.4f",
		sig.Level, title, sig.Reason, sig.Payload.RuleName, sig.Score, sig.EdgeScore)

	if plan := sig.Payload.SuggestedTrade; plan != nil {
		for i, leg := range plan.Legs {
			if i == maxAlertLegs {
				break
			}
			text += fmt.Sprintf("\n%s %s qty=%.0f limit=%.4f", leg.Side, leg.OptionID, leg.Qty, leg.LimitPrice)
		}
	}
	return text
}
