package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marketpulse/marketpulse-x/internal/alert"
	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

func seedUnderpricedMarket(t *testing.T, store *storage.MemoryStore, now time.Time) {
	t.Helper()
	ctx := context.Background()

	err := store.UpsertMarket(ctx, &types.Market{
		MarketID: "mkt-1",
		Title:    "Example binary market",
		Status:   types.StatusOpen,
		Tags:     []string{"politics"},
	})
	require.NoError(t, err)

	err = store.UpsertOptions(ctx, []types.Option{
		{OptionID: "yes", MarketID: "mkt-1", Label: "Yes"},
		{OptionID: "no", MarketID: "mkt-1", Label: "No"},
	})
	require.NoError(t, err)

	_, err = store.InsertTicks(ctx, []types.Tick{
		{TS: now.Add(-time.Second), MarketID: "mkt-1", OptionID: "yes", Price: 0.48},
		{TS: now.Add(-time.Second), MarketID: "mkt-1", OptionID: "no", Price: 0.49},
	})
	require.NoError(t, err)
}

func newTestEngine(t *testing.T, store *storage.MemoryStore, clock *fakeClock, rule string) *Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)

	dir := t.TempDir()
	writeRuleFile(t, dir, "rule.yaml", rule)

	return NewEngine(&EngineConfig{
		Store:  store,
		Loader: NewLoader(&LoaderConfig{Dir: dir, Store: store, Logger: logger}),
		Breaker: NewBreaker(&BreakerConfig{
			Window:       10 * time.Minute,
			MaxEmissions: 2,
			Cooldown:     5 * time.Minute,
			Logger:       logger,
			Now:          clock.Now,
		}),
		Notifier:     alert.NewLogNotifier(logger),
		Logger:       logger,
		EvalInterval: time.Second,
		Lookback:     10 * time.Minute,
		DefaultQty:   10,
		SlippageBPS:  80,
		Now:          clock.Now,
	})
}

func TestEngineEmitsSumLT1Signal(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	seedUnderpricedMarket(t, store, clock.Now())

	engine := newTestEngine(t, store, clock, `
name: sum-watch
type: SUM_LT_1
level: P2
params:
  min_gap: 0.01
score:
  base: 50
  weights:
    gap: 1000
`)

	err := engine.EvalCycle(context.Background())
	require.NoError(t, err)

	sigs, err := store.ListSignals(context.Background(), storage.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig := sigs[0]
	assert.Equal(t, "mkt-1", sig.MarketID)
	assert.Equal(t, types.LevelP1, sig.Level)
	assert.InDelta(t, 0.03, sig.EdgeScore, 1e-9)
	assert.InDelta(t, 80, sig.Score, 1e-9)
	assert.Equal(t, types.RuleSumLT1, sig.Payload.RuleType)
	assert.Equal(t, "sum-watch", sig.Payload.RuleName)
	assert.Equal(t, "Example binary market", sig.Payload.MarketTitle)
	assert.Len(t, sig.Payload.BookSnapshot, 2)
	require.NotNil(t, sig.Payload.SuggestedTrade)
	assert.Equal(t, "buy_basket", sig.Payload.SuggestedTrade.Action)

	// KPI updated for the day.
	kpis, err := store.ListKPI(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, kpis, 1)
	assert.Equal(t, int64(1), kpis[0].Signals)
	assert.Equal(t, int64(1), kpis[0].P1Signals)
	assert.InDelta(t, 0.03, kpis[0].AvgGap, 1e-9)

	// Audit trail recorded.
	var found bool
	for _, e := range store.AuditEntries() {
		if e.Action == "signal_emitted" && e.TargetID == sig.SignalID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngineCooldownSpacesEmissions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	seedUnderpricedMarket(t, store, clock.Now())

	engine := newTestEngine(t, store, clock, `
name: sum-watch
type: SUM_LT_1
cooldown_secs: 60
params:
  min_gap: 0.01
`)

	require.NoError(t, engine.EvalCycle(context.Background()))
	require.NoError(t, engine.EvalCycle(context.Background()))

	sigs, err := store.ListSignals(context.Background(), storage.SignalFilter{})
	require.NoError(t, err)
	assert.Len(t, sigs, 1)

	clock.Advance(61 * time.Second)
	require.NoError(t, engine.EvalCycle(context.Background()))

	sigs, err = store.ListSignals(context.Background(), storage.SignalFilter{})
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
}

func TestEngineBreakerStopsRunawayRule(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	seedUnderpricedMarket(t, store, clock.Now())

	engine := newTestEngine(t, store, clock, `
name: sum-watch
type: SUM_LT_1
params:
  min_gap: 0.01
`)

	// No cooldown: every cycle emits until the breaker trips on the 3rd
	// emission (max 2 in window), leaving the 4th cycle skipped.
	for i := 0; i < 4; i++ {
		require.NoError(t, engine.EvalCycle(context.Background()))
		clock.Advance(time.Second)
	}

	sigs, err := store.ListSignals(context.Background(), storage.SignalFilter{})
	require.NoError(t, err)
	assert.Len(t, sigs, 3)
	assert.Equal(t, StateOpen, engine.Breaker().State(sigs[0].RuleID, "mkt-1"))
}

func TestEngineScopeTagsFilterMarkets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	seedUnderpricedMarket(t, store, clock.Now())

	engine := newTestEngine(t, store, clock, `
name: sum-watch
type: SUM_LT_1
scope_tags: [sports]
params:
  min_gap: 0.01
`)

	require.NoError(t, engine.EvalCycle(context.Background()))

	sigs, err := store.ListSignals(context.Background(), storage.SignalFilter{})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestEngineSkipsClosedMarkets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	seedUnderpricedMarket(t, store, clock.Now())

	err := store.UpsertMarket(context.Background(), &types.Market{
		MarketID: "mkt-1",
		Title:    "Example binary market",
		Status:   types.StatusClosed,
	})
	require.NoError(t, err)

	engine := newTestEngine(t, store, clock, `
name: sum-watch
type: SUM_LT_1
params:
  min_gap: 0.01
`)

	require.NoError(t, engine.EvalCycle(context.Background()))

	sigs, err := store.ListSignals(context.Background(), storage.SignalFilter{})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}
