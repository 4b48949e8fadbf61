package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

func twoMarketViews() map[string]*MarketView {
	a := viewOf("mkt-a", map[string]float64{"Yes": 0.45, "No": 0.55})
	b := viewOf("mkt-b", map[string]float64{"yes": 0.50, "no": 0.50})
	return map[string]*MarketView{"mkt-a": a, "mkt-b": b}
}

func testGroup() *types.SynonymGroup {
	return &types.SynonymGroup{
		GroupID: 1,
		Method:  "explicit",
		Title:   "same question",
		Members: []string{"mkt-a", "mkt-b"},
	}
}

func TestGroupPricesAlignsLabelsCaseInsensitively(t *testing.T) {
	aligned := groupPrices(testGroup(), twoMarketViews())

	require.Len(t, aligned, 2)
	require.Len(t, aligned["yes"], 2)
	require.Len(t, aligned["no"], 2)
}

func TestGroupPricesSkipsMissingViews(t *testing.T) {
	views := twoMarketViews()
	delete(views, "mkt-b")

	aligned := groupPrices(testGroup(), views)
	require.Len(t, aligned["yes"], 1)
}

func TestEvalSynonymMisprice(t *testing.T) {
	def := ruleOf(types.RuleSynonymMisprice, map[string]float64{"threshold": 0.025})

	t.Run("fires at the leader market with a pair plan", func(t *testing.T) {
		f := evalSynonymMisprice(def, testGroup(), twoMarketViews(), 10, 80)
		require.NotNil(t, f)

		// Widest gap is 0.05 on both labels; the leader holds the lower price.
		assert.InDelta(t, 0.05, f.Metrics["gap"], 1e-9)
		assert.Contains(t, []string{"mkt-a", "mkt-b"}, f.Payload.Leader)
		assert.NotEqual(t, f.Payload.Leader, f.Payload.Laggard)
		assert.Equal(t, f.Payload.Leader, f.MarketID)

		plan := f.Payload.SuggestedTrade
		require.NotNil(t, plan)
		require.Len(t, plan.Legs, 2)
		buy, sell := plan.Legs[0], plan.Legs[1]
		assert.Equal(t, types.SideBuy, buy.Side)
		assert.Equal(t, types.SideSell, sell.Side)
		assert.Equal(t, f.Payload.Leader, buy.MarketID)
		assert.Equal(t, f.Payload.Laggard, sell.MarketID)
		// Both legs resolve concrete options for the confirm-time book check.
		assert.NotEmpty(t, buy.OptionID)
		assert.NotEmpty(t, sell.OptionID)
	})

	t.Run("silent under the threshold", func(t *testing.T) {
		views := map[string]*MarketView{
			"mkt-a": viewOf("mkt-a", map[string]float64{"yes": 0.50}),
			"mkt-b": viewOf("mkt-b", map[string]float64{"yes": 0.52}),
		}
		def := ruleOf(types.RuleSynonymMisprice, map[string]float64{"threshold": 0.025})
		assert.Nil(t, evalSynonymMisprice(def, testGroup(), views, 10, 80))
	})

	t.Run("silent with a single member priced", func(t *testing.T) {
		views := map[string]*MarketView{
			"mkt-a": viewOf("mkt-a", map[string]float64{"yes": 0.10}),
		}
		assert.Nil(t, evalSynonymMisprice(def, testGroup(), views, 10, 80))
	})
}

func TestEvalCrossMarketMisprice(t *testing.T) {
	def := ruleOf(types.RuleCrossMarketMisprice, map[string]float64{"threshold": 0.025})

	t.Run("emits one firing per mispriced label with a pair plan", func(t *testing.T) {
		firings := evalCrossMarketMisprice(def, testGroup(), twoMarketViews(), 10, 80)
		require.Len(t, firings, 2)

		for _, f := range firings {
			plan := f.Payload.SuggestedTrade
			require.NotNil(t, plan)
			require.Len(t, plan.Legs, 2)

			buy, sell := plan.Legs[0], plan.Legs[1]
			assert.Equal(t, types.SideBuy, buy.Side)
			assert.Equal(t, types.SideSell, sell.Side)
			assert.Less(t, buy.ReferencePrice, sell.ReferencePrice)
			assert.Equal(t, f.Payload.Leader, buy.MarketID)
			assert.Equal(t, f.Payload.Laggard, sell.MarketID)
			assert.InDelta(t, 500, plan.EstimatedEdgeBPS, 1e-6)
		}
	})

	t.Run("silent under the threshold", func(t *testing.T) {
		views := map[string]*MarketView{
			"mkt-a": viewOf("mkt-a", map[string]float64{"yes": 0.50}),
			"mkt-b": viewOf("mkt-b", map[string]float64{"yes": 0.51}),
		}
		assert.Empty(t, evalCrossMarketMisprice(def, testGroup(), views, 10, 80))
	})
}
