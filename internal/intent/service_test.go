package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marketpulse/marketpulse-x/internal/rules"
	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

type fixture struct {
	store   *storage.MemoryStore
	service *Service
	clock   time.Time
}

func (f *fixture) now() time.Time {
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// newFixture seeds a policy, a market with a live book, and one P1
// basket signal ready for the intent pipeline.
func newFixture(t *testing.T, policy types.ExecutionPolicy) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	f := &fixture{
		store: storage.NewMemoryStore(logger),
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, f.store.UpsertPolicy(ctx, &policy))

	require.NoError(t, f.store.UpsertMarket(ctx, &types.Market{
		MarketID: "mkt-1",
		Title:    "Example binary market",
		Status:   types.StatusOpen,
	}))

	// Current book sits inside the slippage band of the plan limits.
	_, err := f.store.InsertTicks(ctx, []types.Tick{
		{TS: f.clock, MarketID: "mkt-1", OptionID: "yes", Price: 0.48, BestBid: 0.47, BestAsk: 0.492},
		{TS: f.clock, MarketID: "mkt-1", OptionID: "no", Price: 0.49, BestBid: 0.48, BestAsk: 0.503},
	})
	require.NoError(t, err)

	require.NoError(t, f.store.InsertSignal(ctx, &types.Signal{
		SignalID:  "sig-1",
		MarketID:  "mkt-1",
		RuleID:    7,
		Level:     types.LevelP1,
		EdgeScore: 0.03,
		Reason:    "option prices sum=0.97",
		Payload: types.SignalPayload{
			RuleType: types.RuleSumLT1,
			Sum:      0.97,
			Gap:      0.03,
			BookSnapshot: []types.BookLevel{
				{OptionID: "yes", Label: "Yes", Price: 0.48, BestAsk: 0.49},
				{OptionID: "no", Label: "No", Price: 0.49, BestAsk: 0.50},
			},
		},
		CreatedAt: f.clock,
	}))

	f.service = NewService(&ServiceConfig{
		Store:          f.store,
		Logger:         logger,
		Mode:           types.ModeSemiAuto,
		DefaultQty:     10,
		DefaultTTLSecs: 60,
		Now:            f.now,
	})
	return f
}

func defaultPolicy() types.ExecutionPolicy {
	return types.ExecutionPolicy{
		Name:                "default",
		Mode:                types.ModeSemiAuto,
		MaxNotionalPerOrder: 200,
		MaxConcurrentOrders: 2,
		MaxDailyNotional:    1000,
		SlippageBPS:         80,
		Enabled:             true,
	}
}

func TestCreateBuildsSuggestedIntent(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	assert.Equal(t, types.IntentSuggested, in.Status)
	assert.Equal(t, "sig-1", in.SignalID)
	assert.Equal(t, "mkt-1", in.MarketID)
	assert.Equal(t, 10.0, in.Qty)
	assert.Equal(t, int64(60), in.TTLSecs)
	require.NotNil(t, in.Detail.Plan)
	assert.Equal(t, "buy_basket", in.Detail.Plan.Action)
	assert.Len(t, in.Detail.Plan.Legs, 2)
	require.NotNil(t, in.Detail.PayloadSnapshot)
	assert.Equal(t, types.RuleSumLT1, in.Detail.PayloadSnapshot.RuleType)
}

func TestCreateSameSignalTwiceYieldsDistinctIntents(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	first, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)
	second, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.IntentID, second.IntentID)
	assert.Equal(t, types.IntentSuggested, second.Status)
}

func TestCreateRejectsNonActionableLevel(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	require.NoError(t, f.store.InsertSignal(context.Background(), &types.Signal{
		SignalID: "sig-p3",
		MarketID: "mkt-1",
		Level:    types.LevelP3,
		Payload:  types.SignalPayload{RuleType: types.RuleSumLT1},
	}))

	_, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-p3"})
	assert.ErrorIs(t, err, ErrLevelNotActionable)
}

func TestCreateUnknownSignal(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	_, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "nope"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfirmFillsApprovedIntent(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	confirmed, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)

	assert.Equal(t, types.IntentFilled, confirmed.Status)
	require.NotNil(t, confirmed.Detail.Checks)
	assert.True(t, confirmed.Detail.Checks.Approved)
	assert.Empty(t, confirmed.Detail.Checks.Reasons)
	// Mock fill executes at the first leg's reference price.
	assert.InDelta(t, 0.49, confirmed.Detail.FillPrice, 1e-9)
}

func TestConfirmFillsSynonymPairIntent(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	require.NoError(t, f.store.UpsertMarket(ctx, &types.Market{
		MarketID: "mkt-a", Title: "Fed cut by March?", Status: types.StatusOpen,
	}))
	require.NoError(t, f.store.UpsertMarket(ctx, &types.Market{
		MarketID: "mkt-b", Title: "FOMC March rate cut", Status: types.StatusOpen,
	}))

	// Fresh books on both legs, inside the slippage band of the limits.
	_, err := f.store.InsertTicks(ctx, []types.Tick{
		{TS: f.clock, MarketID: "mkt-a", OptionID: "yes-a", Price: 0.45, BestBid: 0.448, BestAsk: 0.452},
		{TS: f.clock, MarketID: "mkt-b", OptionID: "yes-b", Price: 0.50, BestBid: 0.498, BestAsk: 0.502},
	})
	require.NoError(t, err)

	require.NoError(t, f.store.InsertSignal(ctx, &types.Signal{
		SignalID:  "sig-syn",
		MarketID:  "mkt-a",
		OptionID:  "yes-a",
		RuleID:    9,
		Level:     types.LevelP2,
		EdgeScore: 0.05,
		Reason:    `synonym group "fed cut": Yes priced 0.4500 vs 0.5000, gap=0.0500`,
		Payload: types.SignalPayload{
			RuleType: types.RuleSynonymMisprice,
			Gap:      0.05,
			Leader:   "mkt-a",
			Laggard:  "mkt-b",
			Label:    "yes",
			SuggestedTrade: &types.TradePlan{
				Action: "cross_market_pair",
				Legs: []types.TradeLeg{
					{MarketID: "mkt-a", OptionID: "yes-a", Label: "Yes", Side: types.SideBuy,
						Qty: 10, ReferencePrice: 0.45, LimitPrice: 0.4536},
					{MarketID: "mkt-b", OptionID: "yes-b", Label: "Yes", Side: types.SideSell,
						Qty: 10, ReferencePrice: 0.50, LimitPrice: 0.496},
				},
				EstimatedEdgeBPS: 500,
			},
		},
		CreatedAt: f.clock,
	}))

	in, err := f.service.Create(ctx, &CreateRequest{SignalID: "sig-syn"})
	require.NoError(t, err)
	require.NotNil(t, in.Detail.Plan)
	require.Len(t, in.Detail.Plan.Legs, 2)
	// The sell leg carries the laggard's option so the book check can
	// resolve its quote.
	assert.Equal(t, "yes-b", in.Detail.Plan.Legs[1].OptionID)

	confirmed, err := f.service.Confirm(ctx, in.IntentID, "alice")
	require.NoError(t, err)
	require.NotNil(t, confirmed.Detail.Checks)
	assert.Empty(t, confirmed.Detail.Checks.Reasons)
	assert.Equal(t, types.IntentFilled, confirmed.Status)
	assert.InDelta(t, 0.45, confirmed.Detail.FillPrice, 1e-9)
}

func TestConfirmOnTerminalIntentIsNoOp(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	first, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	require.Equal(t, types.IntentFilled, first.Status)

	again, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentFilled, again.Status)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt, "no transition happens on the repeat call")
}

func TestConfirmExpiresStaleIntent(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1", TTLSecs: 30})
	require.NoError(t, err)

	f.advance(31 * time.Second)
	expired, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentExpired, expired.Status)
}

func TestConfirmNotionalCapBoundary(t *testing.T) {
	t.Run("exactly at the cap passes", func(t *testing.T) {
		policy := defaultPolicy()
		// Plan notional: 10*0.49 + 10*0.50 = 9.9.
		policy.MaxNotionalPerOrder = 9.9
		f := newFixture(t, policy)

		in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
		require.NoError(t, err)

		confirmed, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
		require.NoError(t, err)
		assert.Equal(t, types.IntentFilled, confirmed.Status)
	})

	t.Run("a cent above the cap rejects", func(t *testing.T) {
		policy := defaultPolicy()
		policy.MaxNotionalPerOrder = 9.89
		f := newFixture(t, policy)

		in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
		require.NoError(t, err)

		rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
		require.NoError(t, err)
		assert.Equal(t, types.IntentRejected, rejected.Status)
		assert.Equal(t, []string{ReasonNotionalCap}, rejected.Detail.Checks.Reasons)
	})
}

func TestConfirmConcurrencyCap(t *testing.T) {
	policy := defaultPolicy()
	policy.MaxConcurrentOrders = 2
	f := newFixture(t, policy)

	// Two other open intents already occupy the market's slots.
	for _, id := range []string{"other-1", "other-2"} {
		require.NoError(t, f.store.CreateIntent(context.Background(), &types.OrderIntent{
			IntentID:  id,
			MarketID:  "mkt-1",
			Status:    types.IntentSuggested,
			CreatedAt: f.clock,
			UpdatedAt: f.clock,
		}))
	}

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentRejected, rejected.Status)
	assert.Contains(t, rejected.Detail.Checks.Reasons, ReasonConcurrencyCap)
}

func TestConfirmDailyCap(t *testing.T) {
	policy := defaultPolicy()
	policy.MaxDailyNotional = 55
	f := newFixture(t, policy)

	// 50 already filled today on another market; 50 + 9.9 > 55.
	require.NoError(t, f.store.CreateIntent(context.Background(), &types.OrderIntent{
		IntentID:   "prior-fill",
		MarketID:   "mkt-other",
		Status:     types.IntentFilled,
		Qty:        100,
		LimitPrice: 0.5,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentRejected, rejected.Status)
	assert.Contains(t, rejected.Detail.Checks.Reasons, ReasonDailyCap)
}

func TestConfirmDailyCapCountsFillPriceNotLimit(t *testing.T) {
	policy := defaultPolicy()
	policy.MaxDailyNotional = 60.5
	f := newFixture(t, policy)

	// Filled at 0.5 against a 0.6 limit: the day's usage is 50, not 60,
	// so 50 + 9.9 stays under the 60.5 cap.
	prior := &types.OrderIntent{
		IntentID:   "prior-fill",
		MarketID:   "mkt-other",
		Status:     types.IntentFilled,
		Qty:        100,
		LimitPrice: 0.6,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	prior.Detail.FillPrice = 0.5
	require.NoError(t, f.store.CreateIntent(context.Background(), prior))

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	confirmed, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentFilled, confirmed.Status)
	assert.NotContains(t, confirmed.Detail.Checks.Reasons, ReasonDailyCap)
}

func TestConfirmSlippageExceeded(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	// The book moved far away from the plan's limit prices.
	_, err = f.store.InsertTicks(context.Background(), []types.Tick{
		{TS: f.clock.Add(time.Second), MarketID: "mkt-1", OptionID: "yes", Price: 0.40, BestAsk: 0.40},
		{TS: f.clock.Add(time.Second), MarketID: "mkt-1", OptionID: "no", Price: 0.41, BestAsk: 0.41},
	})
	require.NoError(t, err)

	rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentRejected, rejected.Status)
	assert.Equal(t, []string{ReasonSlippage}, rejected.Detail.Checks.Reasons)
}

func TestConfirmStaleBook(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	// Swap the plan to reference an option with no book at all.
	detail := in.Detail
	detail.Plan = &types.TradePlan{
		Action: "buy_basket",
		Legs: []types.TradeLeg{
			{MarketID: "mkt-1", OptionID: "ghost", Side: types.SideBuy, Qty: 10, ReferencePrice: 0.5, LimitPrice: 0.5},
		},
	}
	require.NoError(t, f.store.TransitionIntent(context.Background(), in.IntentID, types.IntentSuggested, types.IntentSuggested, &detail))

	rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentRejected, rejected.Status)
	assert.Contains(t, rejected.Detail.Checks.Reasons, ReasonStaleBook)
}

func TestConfirmBreakerOpen(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	logger := zaptest.NewLogger(t)

	breaker := rules.NewBreaker(&rules.BreakerConfig{
		Window:       10 * time.Minute,
		MaxEmissions: 1,
		Cooldown:     5 * time.Minute,
		Logger:       logger,
		Now:          f.now,
	})
	// Trip the originating pair.
	breaker.RecordEmission(7, "mkt-1")
	breaker.RecordEmission(7, "mkt-1")
	require.Equal(t, rules.StateOpen, breaker.State(7, "mkt-1"))

	f.service = NewService(&ServiceConfig{
		Store:          f.store,
		Breaker:        breaker,
		Logger:         logger,
		Mode:           types.ModeSemiAuto,
		DefaultQty:     10,
		DefaultTTLSecs: 60,
		Now:            f.now,
	})

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.IntentRejected, rejected.Status)
	assert.Equal(t, []string{ReasonBreakerOpen}, rejected.Detail.Checks.Reasons)
}

func TestConfirmBreakerSignalLookupFailureSurfaces(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	f.service = NewService(&ServiceConfig{
		Store: f.store,
		Breaker: rules.NewBreaker(&rules.BreakerConfig{
			Window:       10 * time.Minute,
			MaxEmissions: 5,
			Cooldown:     5 * time.Minute,
			Logger:       logger,
			Now:          f.now,
		}),
		Logger:         logger,
		Mode:           types.ModeSemiAuto,
		DefaultQty:     10,
		DefaultTTLSecs: 60,
		Now:            f.now,
	})

	// An intent whose originating signal is gone cannot be cleared
	// against the breaker; the confirm surfaces the lookup failure
	// instead of silently passing the gate.
	orphan := &types.OrderIntent{
		IntentID:   "int-orphan",
		SignalID:   "gone",
		MarketID:   "mkt-1",
		OptionID:   "yes",
		Side:       types.SideBuy,
		Qty:        10,
		LimitPrice: 0.492,
		TTLSecs:    60,
		Status:     types.IntentSuggested,
		Detail: types.IntentDetail{Plan: &types.TradePlan{
			Action: "buy_basket",
			Legs: []types.TradeLeg{
				{MarketID: "mkt-1", OptionID: "yes", Label: "Yes", Side: types.SideBuy,
					Qty: 10, ReferencePrice: 0.49, LimitPrice: 0.492},
			},
		}},
		CreatedAt: f.clock,
		UpdatedAt: f.clock,
	}
	require.NoError(t, f.store.CreateIntent(ctx, orphan))

	_, err := f.service.Confirm(ctx, "int-orphan", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The intent is untouched, not rejected.
	got, err := f.store.GetIntent(ctx, "int-orphan")
	require.NoError(t, err)
	assert.Equal(t, types.IntentSuggested, got.Status)
}

func TestConfirmAccumulatesReasonsInOrder(t *testing.T) {
	policy := defaultPolicy()
	policy.MaxNotionalPerOrder = 1
	f := newFixture(t, policy)

	in, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1"})
	require.NoError(t, err)

	_, err = f.store.InsertTicks(context.Background(), []types.Tick{
		{TS: f.clock.Add(time.Second), MarketID: "mkt-1", OptionID: "yes", Price: 0.40, BestAsk: 0.40},
		{TS: f.clock.Add(time.Second), MarketID: "mkt-1", OptionID: "no", Price: 0.41, BestAsk: 0.41},
	})
	require.NoError(t, err)

	rejected, err := f.service.Confirm(context.Background(), in.IntentID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{ReasonNotionalCap, ReasonSlippage}, rejected.Detail.Checks.Reasons)
}

func TestExpireStaleSweep(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	fresh, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1", TTLSecs: 600})
	require.NoError(t, err)
	stale, err := f.service.Create(context.Background(), &CreateRequest{SignalID: "sig-1", TTLSecs: 30})
	require.NoError(t, err)

	f.advance(60 * time.Second)
	n, err := f.service.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetIntent(context.Background(), stale.IntentID)
	require.NoError(t, err)
	assert.Equal(t, types.IntentExpired, got.Status)

	got, err = f.store.GetIntent(context.Background(), fresh.IntentID)
	require.NoError(t, err)
	assert.Equal(t, types.IntentSuggested, got.Status)
}
