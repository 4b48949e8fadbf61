package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

func TestBuildLegClampsLimitPrices(t *testing.T) {
	tests := []struct {
		name      string
		side      string
		ref       float64
		slippage  int64
		wantLimit float64
	}{
		{"buy adds slippage", types.SideBuy, 0.50, 100, 0.505},
		{"sell subtracts slippage", types.SideSell, 0.50, 100, 0.495},
		{"buy clamped at upper bound", types.SideBuy, 0.998, 100, 0.999},
		{"sell clamped at lower bound", types.SideSell, 0.001, 100, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg := buildLeg("mkt-1", "opt-1", "Yes", tt.side, 10, tt.ref, tt.slippage)
			assert.InDelta(t, tt.wantLimit, leg.LimitPrice, 1e-9)
			assert.Equal(t, tt.ref, leg.ReferencePrice)
			assert.Equal(t, 10.0, leg.Qty)
		})
	}
}

func TestBuildPlanBasket(t *testing.T) {
	sig := &types.Signal{
		SignalID: "sig-1",
		MarketID: "mkt-1",
		Payload: types.SignalPayload{
			RuleType: types.RuleSumLT1,
			Sum:      0.97,
			Gap:      0.03,
			BookSnapshot: []types.BookLevel{
				{OptionID: "yes", Label: "Yes", Price: 0.48, BestAsk: 0.49},
				{OptionID: "no", Label: "No", Price: 0.49, BestAsk: 0.50},
			},
		},
	}

	plan, err := BuildPlan(sig, 10, 80)
	require.NoError(t, err)
	assert.Equal(t, "buy_basket", plan.Action)
	require.Len(t, plan.Legs, 2)
	assert.Equal(t, 0.49, plan.Legs[0].ReferencePrice)
	assert.Equal(t, 0.50, plan.Legs[1].ReferencePrice)
	assert.InDelta(t, 300, plan.EstimatedEdgeBPS, 1e-6)
	for _, leg := range plan.Legs {
		assert.Equal(t, types.SideBuy, leg.Side)
	}
}

func TestBuildPlanBasketRequiresBook(t *testing.T) {
	sig := &types.Signal{
		SignalID: "sig-1",
		MarketID: "mkt-1",
		Payload:  types.SignalPayload{RuleType: types.RuleDutchBookDetect},
	}

	_, err := BuildPlan(sig, 10, 80)
	assert.Error(t, err)
}

func TestBuildPlanSpikeDirection(t *testing.T) {
	makeSig := func(change float64) *types.Signal {
		return &types.Signal{
			SignalID: "sig-1",
			MarketID: "mkt-1",
			OptionID: "yes",
			Payload: types.SignalPayload{
				RuleType:  types.RuleSpikeDetect,
				PctChange: change,
				BookSnapshot: []types.BookLevel{
					{OptionID: "yes", Label: "Yes", Price: 0.55},
				},
			},
		}
	}

	plan, err := BuildPlan(makeSig(0.08), 10, 80)
	require.NoError(t, err)
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, types.SideBuy, plan.Legs[0].Side)

	plan, err = BuildPlan(makeSig(-0.08), 10, 80)
	require.NoError(t, err)
	assert.Equal(t, types.SideSell, plan.Legs[0].Side)
}

func TestBuildPlanPrefersEmbeddedPlan(t *testing.T) {
	embedded := &types.TradePlan{Action: "cross_market_pair"}
	sig := &types.Signal{
		SignalID: "sig-1",
		Payload: types.SignalPayload{
			RuleType:       types.RuleCrossMarketMisprice,
			SuggestedTrade: embedded,
		},
	}

	plan, err := BuildPlan(sig, 10, 80)
	require.NoError(t, err)
	assert.Same(t, embedded, plan)
}

func TestBuildPlanPairRequiresEmbeddedPlan(t *testing.T) {
	for _, ruleType := range []string{types.RuleSynonymMisprice, types.RuleCrossMarketMisprice} {
		sig := &types.Signal{
			SignalID: "sig-1",
			MarketID: "mkt-a",
			OptionID: "yes",
			Payload: types.SignalPayload{
				RuleType: ruleType,
				Leader:   "mkt-a",
				Laggard:  "mkt-b",
				Gap:      0.05,
			},
		}

		_, err := BuildPlan(sig, 10, 80)
		assert.Error(t, err, ruleType)
	}
}

func TestBuildPlanUnknownRuleType(t *testing.T) {
	sig := &types.Signal{
		SignalID: "sig-1",
		Payload:  types.SignalPayload{RuleType: "NOT_A_RULE"},
	}

	_, err := BuildPlan(sig, 10, 80)
	assert.Error(t, err)
}
