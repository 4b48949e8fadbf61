package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

const (
	// Telegram rejects messages above 4096 bytes; stay under it.
	maxMessageBytes = 4000

	// Identical alerts within this window are suppressed.
	dedupeTTL = 5 * time.Minute
)

// TelegramNotifier delivers alerts through the Telegram Bot API.
type TelegramNotifier struct {
	client *resty.Client
	chatID string
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// TelegramConfig holds the notifier configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewTelegramNotifier creates a Telegram-backed notifier.
func NewTelegramNotifier(cfg *TelegramConfig) *TelegramNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL("https://api.telegram.org/bot"+cfg.BotToken).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &TelegramNotifier{
		client: client,
		chatID: cfg.ChatID,
		logger: cfg.Logger,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Name identifies the transport in signal payloads.
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

// Notify sends the alert, deduping identical messages within a short
// window and truncating oversized texts.
func (n *TelegramNotifier) Notify(ctx context.Context, sig *types.Signal) error {
	text := FormatSignal(sig)
	if len(text) > maxMessageBytes {
		text = text[:maxMessageBytes] + "…"
	}

	if n.isDuplicate(text) {
		AlertsDedupedTotal.Inc()
		n.logger.Debug("alert-deduped", zap.String("signal-id", sig.SignalID))
		return nil
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post("/sendMessage")
	if err != nil {
		AlertFailuresTotal.Inc()
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() {
		AlertFailuresTotal.Inc()
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode(), resp.String())
	}

	AlertsSentTotal.WithLabelValues(n.Name()).Inc()
	return nil
}

// isDuplicate records the message and reports whether an identical one
// was sent within the dedupe window. Expired entries are pruned inline.
func (n *TelegramNotifier) isDuplicate(text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	for k, at := range n.seen {
		if now.Sub(at) > dedupeTTL {
			delete(n.seen, k)
		}
	}

	if _, ok := n.seen[text]; ok {
		return true
	}
	n.seen[text] = now
	return false
}
