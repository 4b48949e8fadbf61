package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// viewOf builds a MarketView from per-option latest prices.
func viewOf(marketID string, prices map[string]float64) *MarketView {
	view := &MarketView{
		Market: types.Market{MarketID: marketID, Title: marketID, Status: types.StatusOpen},
		Latest: make(map[string]types.Tick),
		Window: make(map[string][]types.Tick),
	}
	for opt, price := range prices {
		view.Options = append(view.Options, types.Option{
			OptionID: opt,
			MarketID: marketID,
			Label:    opt,
		})
		view.Latest[opt] = types.Tick{
			TS:       testNow,
			MarketID: marketID,
			OptionID: opt,
			Price:    price,
		}
	}
	return view
}

func ruleOf(ruleType string, params map[string]float64) *types.RuleDefinition {
	return &types.RuleDefinition{
		RuleID:  1,
		Name:    "test-" + ruleType,
		Type:    ruleType,
		Enabled: true,
		Level:   types.LevelP2,
		Params:  params,
	}
}

func TestEvalSumLT1(t *testing.T) {
	def := ruleOf(types.RuleSumLT1, map[string]float64{"min_gap": 0.01})

	t.Run("fires with P1 at three percent gap", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.48, "no": 0.49})

		f := evalSumLT1(def, view)
		require.NotNil(t, f)
		assert.Equal(t, types.LevelP1, f.Level)
		assert.InDelta(t, 0.03, f.Edge, 1e-9)
		assert.InDelta(t, 0.97, f.Metrics["sum"], 1e-9)
	})

	t.Run("fires with P2 below three percent gap", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.50, "no": 0.48})

		f := evalSumLT1(def, view)
		require.NotNil(t, f)
		assert.Equal(t, types.LevelP2, f.Level)
		assert.InDelta(t, 0.02, f.Edge, 1e-9)
	})

	t.Run("silent at the min gap boundary", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.50, "no": 0.49})
		assert.Nil(t, evalSumLT1(def, view))
	})

	t.Run("silent when sum exceeds one", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.60, "no": 0.45})
		assert.Nil(t, evalSumLT1(def, view))
	})

	t.Run("silent without full price coverage", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.40, "no": 0.40})
		delete(view.Latest, "no")
		assert.Nil(t, evalSumLT1(def, view))
	})
}

func TestEvalSpike(t *testing.T) {
	def := ruleOf(types.RuleSpikeDetect, map[string]float64{
		"window_secs":   10,
		"threshold":     0.05,
		"min_liquidity": 100,
	})

	withWindow := func(optID string, view *MarketView, open, last, liquidity float64) {
		view.Window[optID] = []types.Tick{
			{TS: testNow.Add(-8 * time.Second), OptionID: optID, Price: open},
			{TS: testNow.Add(-2 * time.Second), OptionID: optID, Price: last},
		}
		tick := view.Latest[optID]
		tick.Price = last
		tick.Liquidity = liquidity
		view.Latest[optID] = tick
	}

	t.Run("fires on move above threshold", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.5, "no": 0.5})
		withWindow("yes", view, 0.50, 0.58, 500)

		f := evalSpike(def, view, testNow)
		require.NotNil(t, f)
		assert.Equal(t, "yes", f.OptionID)
		assert.InDelta(t, 0.08, f.Payload.PctChange, 1e-9)
		assert.InDelta(t, 0.08, f.Edge, 1e-9)
	})

	t.Run("negative moves fire too", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.5})
		withWindow("yes", view, 0.60, 0.50, 500)

		f := evalSpike(def, view, testNow)
		require.NotNil(t, f)
		assert.InDelta(t, -0.10, f.Payload.PctChange, 1e-9)
		assert.InDelta(t, 0.10, f.Edge, 1e-9)
	})

	t.Run("tie-break picks the largest move", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.5, "no": 0.5})
		withWindow("yes", view, 0.50, 0.57, 500)
		withWindow("no", view, 0.50, 0.62, 500)

		f := evalSpike(def, view, testNow)
		require.NotNil(t, f)
		assert.Equal(t, "no", f.OptionID)
	})

	t.Run("illiquid options are skipped", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.5})
		withWindow("yes", view, 0.50, 0.60, 50)
		assert.Nil(t, evalSpike(def, view, testNow))
	})

	t.Run("single observation is not a window", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.6})
		view.Window["yes"] = []types.Tick{
			{TS: testNow.Add(-2 * time.Second), OptionID: "yes", Price: 0.6},
		}
		tick := view.Latest["yes"]
		tick.Liquidity = 500
		view.Latest["yes"] = tick
		assert.Nil(t, evalSpike(def, view, testNow))
	})
}

func TestEvalEndgame(t *testing.T) {
	def := ruleOf(types.RuleEndgameSweep, map[string]float64{
		"ends_within_hours": 24,
		"price_hi":          0.9,
		"z_hi":              2,
		"min_sigma":         1e-6,
	})

	makeView := func(endsIn time.Duration, price float64, volumes []float64, lastVolume float64) *MarketView {
		view := viewOf("mkt-end", map[string]float64{"yes": price})
		ends := testNow.Add(endsIn)
		view.Market.EndsAt = &ends

		var window []types.Tick
		for i, v := range volumes {
			window = append(window, types.Tick{
				TS:       testNow.Add(time.Duration(i-len(volumes)) * time.Minute),
				OptionID: "yes",
				Price:    price,
				Volume:   v,
			})
		}
		view.Window["yes"] = window

		tick := view.Latest["yes"]
		tick.Volume = lastVolume
		view.Latest["yes"] = tick
		return view
	}

	t.Run("fires on high price and volume anomaly", func(t *testing.T) {
		view := makeView(2*time.Hour, 0.95, []float64{100, 110, 90, 100}, 300)

		f := evalEndgame(def, view, testNow)
		require.NotNil(t, f)
		assert.Equal(t, "yes", f.OptionID)
		assert.Greater(t, f.Metrics["z_score"], 2.0)
		assert.Greater(t, f.Edge, 0.0)
	})

	t.Run("silent far from close", func(t *testing.T) {
		view := makeView(48*time.Hour, 0.95, []float64{100, 110, 90, 100}, 300)
		assert.Nil(t, evalEndgame(def, view, testNow))
	})

	t.Run("silent without end date", func(t *testing.T) {
		view := makeView(2*time.Hour, 0.95, []float64{100, 110, 90, 100}, 300)
		view.Market.EndsAt = nil
		assert.Nil(t, evalEndgame(def, view, testNow))
	})

	t.Run("silent below price threshold", func(t *testing.T) {
		view := makeView(2*time.Hour, 0.85, []float64{100, 110, 90, 100}, 300)
		assert.Nil(t, evalEndgame(def, view, testNow))
	})

	t.Run("silent on normal volume", func(t *testing.T) {
		view := makeView(2*time.Hour, 0.95, []float64{100, 110, 90, 100}, 105)
		assert.Nil(t, evalEndgame(def, view, testNow))
	})
}

func TestEvalDutchBook(t *testing.T) {
	def := ruleOf(types.RuleDutchBookDetect, map[string]float64{"sum_threshold": 0.995})

	withAsks := func(view *MarketView, asks map[string]float64) {
		for opt, ask := range asks {
			tick := view.Latest[opt]
			tick.BestAsk = ask
			view.Latest[opt] = tick
		}
	}

	t.Run("fires when ask basket is cheap", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.50, "no": 0.50})
		withAsks(view, map[string]float64{"yes": 0.49, "no": 0.49})

		f := evalDutchBook(def, view)
		require.NotNil(t, f)
		assert.InDelta(t, 0.98, f.Metrics["sum"], 1e-9)
		assert.InDelta(t, 0.02, f.Edge, 1e-9)
	})

	t.Run("falls back to last price without asks", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.49, "no": 0.49})

		f := evalDutchBook(def, view)
		require.NotNil(t, f)
		assert.InDelta(t, 0.98, f.Metrics["sum"], 1e-9)
	})

	t.Run("silent at the threshold", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.50, "no": 0.50})
		withAsks(view, map[string]float64{"yes": 0.50, "no": 0.495})
		assert.Nil(t, evalDutchBook(def, view))
	})
}

func TestEvalTrend(t *testing.T) {
	def := ruleOf(types.RuleTrendBreakout, map[string]float64{
		"window_secs": 300,
		"threshold":   0.1,
	})

	t.Run("fires on breakout from the rolling mean", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.60})
		view.Window["yes"] = []types.Tick{
			{TS: testNow.Add(-4 * time.Minute), OptionID: "yes", Price: 0.50},
			{TS: testNow.Add(-3 * time.Minute), OptionID: "yes", Price: 0.50},
			{TS: testNow.Add(-2 * time.Minute), OptionID: "yes", Price: 0.50},
		}

		f := evalTrend(def, view, testNow)
		require.NotNil(t, f)
		assert.InDelta(t, 0.2, f.Metrics["deviation"], 1e-9)
		assert.InDelta(t, 0.2, f.Edge, 1e-9)
	})

	t.Run("silent inside the band", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.52})
		view.Window["yes"] = []types.Tick{
			{TS: testNow.Add(-4 * time.Minute), OptionID: "yes", Price: 0.50},
			{TS: testNow.Add(-3 * time.Minute), OptionID: "yes", Price: 0.50},
		}
		assert.Nil(t, evalTrend(def, view, testNow))
	})

	t.Run("ticks outside the window are ignored", func(t *testing.T) {
		view := viewOf("mkt-1", map[string]float64{"yes": 0.60})
		view.Window["yes"] = []types.Tick{
			{TS: testNow.Add(-20 * time.Minute), OptionID: "yes", Price: 0.50},
			{TS: testNow.Add(-15 * time.Minute), OptionID: "yes", Price: 0.50},
		}
		assert.Nil(t, evalTrend(def, view, testNow))
	})
}
