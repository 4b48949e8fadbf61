package rules

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Breaker states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// maxBreakerCooldown bounds the doubled cooldown on repeated trips.
const maxBreakerCooldown = time.Hour

// Breaker rate-limits signal emissions per (rule_id, market_id).
// A pair starts CLOSED. When emissions within the rolling window exceed
// maxEmissions, it trips OPEN for the cooldown. After the cooldown a
// single HALF_OPEN probe emission is allowed: if the window rate is back
// under the limit the pair re-CLOSES, otherwise it re-OPENS for double
// the previous cooldown, bounded at one hour.
type Breaker struct {
	mu           sync.Mutex
	entries      map[breakerKey]*breakerEntry
	window       time.Duration
	maxEmissions int
	baseCooldown time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

type breakerKey struct {
	ruleID   int64
	marketID string
}

type breakerEntry struct {
	state     BreakerState
	emissions []time.Time
	openedAt  time.Time
	cooldown  time.Duration
}

// BreakerConfig holds Breaker configuration.
type BreakerConfig struct {
	// Window is the rolling window for emission counting.
	Window time.Duration
	// MaxEmissions is the tolerated emission count; the breaker trips on
	// the MaxEmissions+1-th emission inside the window.
	MaxEmissions int
	// Cooldown is the initial OPEN duration.
	Cooldown time.Duration
	Logger   *zap.Logger
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewBreaker creates a breaker with all pairs CLOSED.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		entries:      make(map[breakerKey]*breakerEntry),
		window:       cfg.Window,
		maxEmissions: cfg.MaxEmissions,
		baseCooldown: cfg.Cooldown,
		logger:       cfg.Logger,
		now:          now,
	}
}

// Allow reports whether the pair may emit right now. Moving an expired
// OPEN pair to HALF_OPEN happens here.
func (b *Breaker) Allow(ruleID int64, marketID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.entry(ruleID, marketID)
	switch entry.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(entry.openedAt) >= entry.cooldown {
			entry.state = StateHalfOpen
			b.logger.Debug("breaker-half-open",
				zap.Int64("rule-id", ruleID),
				zap.String("market-id", marketID))
			return true
		}
		return false
	case StateHalfOpen:
		// Exactly one emission gets through: RecordEmission settles the
		// pair to CLOSED or back to OPEN as soon as it happens.
		return true
	}
	return true
}

// State returns the pair's current state without side effects.
func (b *Breaker) State(ruleID int64, marketID string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(ruleID, marketID).state
}

// RecordEmission registers an emission and settles state transitions.
func (b *Breaker) RecordEmission(ruleID int64, marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entry := b.entry(ruleID, marketID)

	entry.emissions = append(entry.emissions, now)
	b.prune(entry, now)

	tripped := len(entry.emissions) > b.maxEmissions

	switch entry.state {
	case StateClosed:
		if tripped {
			b.trip(entry, ruleID, marketID, b.baseCooldown, now)
		}
	case StateHalfOpen:
		if tripped {
			doubled := entry.cooldown * 2
			if doubled > maxBreakerCooldown {
				doubled = maxBreakerCooldown
			}
			b.trip(entry, ruleID, marketID, doubled, now)
		} else {
			entry.state = StateClosed
			entry.cooldown = b.baseCooldown
			b.logger.Info("breaker-closed",
				zap.Int64("rule-id", ruleID),
				zap.String("market-id", marketID))
		}
	}
}

func (b *Breaker) trip(entry *breakerEntry, ruleID int64, marketID string, cooldown time.Duration, now time.Time) {
	entry.state = StateOpen
	entry.openedAt = now
	entry.cooldown = cooldown

	BreakerTripsTotal.Inc()
	b.logger.Warn("breaker-tripped",
		zap.Int64("rule-id", ruleID),
		zap.String("market-id", marketID),
		zap.Duration("cooldown", cooldown),
		zap.Int("emissions-in-window", len(entry.emissions)))
}

func (b *Breaker) entry(ruleID int64, marketID string) *breakerEntry {
	key := breakerKey{ruleID: ruleID, marketID: marketID}
	entry, ok := b.entries[key]
	if !ok {
		entry = &breakerEntry{state: StateClosed, cooldown: b.baseCooldown}
		b.entries[key] = entry
	}
	return entry
}

func (b *Breaker) prune(entry *breakerEntry, now time.Time) {
	cutoff := now.Add(-b.window)
	kept := entry.emissions[:0]
	for _, ts := range entry.emissions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	entry.emissions = kept
}
