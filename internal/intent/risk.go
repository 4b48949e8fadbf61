package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/rules"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Risk rejection reason codes, in gauntlet order.
const (
	ReasonNotionalCap    = "notional_cap_exceeded"
	ReasonConcurrencyCap = "concurrency_cap_exceeded"
	ReasonDailyCap       = "daily_cap_exceeded"
	ReasonSlippage       = "slippage_exceeded"
	ReasonStaleBook      = "stale_book"
	ReasonBreakerOpen    = "breaker_open"
)

// planNotional sums qty * reference_price over the legs in decimal
// arithmetic; float accumulation drifts exactly at the cap boundary.
func planNotional(plan *types.TradePlan) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range plan.Legs {
		total = total.Add(
			decimal.NewFromFloat(leg.Qty).Mul(decimal.NewFromFloat(leg.ReferencePrice)))
	}
	return total
}

// runChecks walks the full risk gauntlet in order, accumulating every
// violated reason rather than stopping at the first.
func (s *Service) runChecks(ctx context.Context, in *types.OrderIntent, policy *types.ExecutionPolicy, now time.Time) (*types.RiskChecks, error) {
	checks := &types.RiskChecks{Approved: true}
	fail := func(reason string) {
		checks.Approved = false
		checks.Reasons = append(checks.Reasons, reason)
		RiskRejectionsTotal.WithLabelValues(reason).Inc()
	}

	plan := in.Detail.Plan
	if plan == nil || len(plan.Legs) == 0 {
		fail(ReasonStaleBook)
		return checks, nil
	}

	// (a) Per-order notional cap. Exactly at the cap is allowed.
	notional := planNotional(plan)
	if notional.GreaterThan(decimal.NewFromFloat(policy.MaxNotionalPerOrder)) {
		fail(ReasonNotionalCap)
	}

	// (b) Concurrent open intents on the same market, this one included.
	open, err := s.store.OpenIntentsCount(ctx, in.MarketID)
	if err != nil {
		return nil, err
	}
	if open > policy.MaxConcurrentOrders {
		fail(ReasonConcurrencyCap)
	}

	// (c) Daily notional cap across already-filled intents.
	day := now.UTC().Format("2006-01-02")
	filled, err := s.store.DailyFilledNotional(ctx, day)
	if err != nil {
		return nil, err
	}
	if decimal.NewFromFloat(filled).Add(notional).
		GreaterThan(decimal.NewFromFloat(policy.MaxDailyNotional)) {
		fail(ReasonDailyCap)
	}

	// (d) Per-leg slippage against the current book.
	slippageFailed, staleFailed := false, false
	for _, leg := range plan.Legs {
		best, ok := s.currentBest(ctx, &leg)
		if !ok {
			if !staleFailed {
				fail(ReasonStaleBook)
				staleFailed = true
			}
			continue
		}
		bps := (leg.LimitPrice - best) / best * 10000
		if bps < 0 {
			bps = -bps
		}
		// An unchanged book puts the plan's limit exactly at the cap;
		// the tolerance keeps float rounding from tipping it over.
		if bps > float64(policy.SlippageBPS)+1e-9 && !slippageFailed {
			fail(ReasonSlippage)
			slippageFailed = true
		}
	}

	// (e) Circuit breaker on the originating (rule, market) pair. A
	// signal that cannot be loaded cannot be cleared against the
	// breaker, so the lookup failure surfaces instead of passing.
	if s.breaker != nil {
		sig, err := s.store.GetSignal(ctx, in.SignalID)
		if err != nil {
			return nil, fmt.Errorf("load signal %s for breaker check: %w", in.SignalID, err)
		}
		if s.breaker.State(sig.RuleID, in.MarketID) == rules.StateOpen {
			fail(ReasonBreakerOpen)
		}
	}

	return checks, nil
}

// currentBest returns the side-appropriate top of book for the leg:
// the ask for buys, the bid for sells, the last price when the book
// carries no quotes. A missing tick means the book is stale.
func (s *Service) currentBest(ctx context.Context, leg *types.TradeLeg) (float64, bool) {
	ticks, err := s.store.LatestTicks(ctx, leg.MarketID)
	if err != nil {
		return 0, false
	}

	for i := range ticks {
		if ticks[i].OptionID != leg.OptionID {
			continue
		}
		best := ticks[i].BestAsk
		if leg.Side == types.SideSell {
			best = ticks[i].BestBid
		}
		if best == 0 {
			best = ticks[i].Price
		}
		if best == 0 {
			return 0, false
		}
		return best, true
	}
	return 0, false
}
