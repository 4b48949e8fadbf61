package rules

import (
	"fmt"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Limit price bounds: a prediction-market price always lives in (0, 1).
const (
	minLimitPrice = 0.001
	maxLimitPrice = 0.999
)

// buildLeg constructs one trade leg with the limit price clamped by the
// slippage allowance around the reference price.
func buildLeg(marketID, optionID, label, side string, qty, refPrice float64, slippageBPS int64) types.TradeLeg {
	slip := float64(slippageBPS) / 10000

	var limit float64
	if side == types.SideBuy {
		limit = refPrice * (1 + slip)
		if limit > maxLimitPrice {
			limit = maxLimitPrice
		}
	} else {
		limit = refPrice * (1 - slip)
		if limit < minLimitPrice {
			limit = minLimitPrice
		}
	}

	return types.TradeLeg{
		MarketID:       marketID,
		OptionID:       optionID,
		Label:          label,
		Side:           side,
		Qty:            qty,
		ReferencePrice: refPrice,
		LimitPrice:     limit,
	}
}

// BuildPlan synthesizes a rule-specific trade plan from a signal. The
// intent pipeline calls it at create time; basket rules also embed the
// plan in the signal payload at emission.
func BuildPlan(sig *types.Signal, qty float64, slippageBPS int64) (*types.TradePlan, error) {
	payload := &sig.Payload
	if payload.SuggestedTrade != nil {
		return payload.SuggestedTrade, nil
	}

	switch payload.RuleType {
	case types.RuleSumLT1, types.RuleDutchBookDetect:
		return basketPlan(sig, qty, slippageBPS)

	case types.RuleSpikeDetect:
		side := types.SideBuy
		if payload.PctChange < 0 {
			side = types.SideSell
		}
		return singleLegPlan(sig, side, qty, slippageBPS, "momentum entry on detected spike")

	case types.RuleEndgameSweep:
		return singleLegPlan(sig, types.SideBuy, qty, slippageBPS, "ride endgame favorite to settlement")

	case types.RuleTrendBreakout:
		return singleLegPlan(sig, types.SideBuy, qty, slippageBPS, "follow trend breakout")

	case types.RuleSynonymMisprice, types.RuleCrossMarketMisprice:
		// Pair plans need option ids on both markets, which only the
		// engine knows at emission time; the plan arrives embedded.
		return nil, fmt.Errorf("signal %s carries no embedded pair plan", sig.SignalID)

	default:
		return nil, fmt.Errorf("no planner for rule type %q", payload.RuleType)
	}
}

// basketPlan buys every outcome in the book snapshot; the basket costs
// less than its guaranteed payout of 1.
func basketPlan(sig *types.Signal, qty float64, slippageBPS int64) (*types.TradePlan, error) {
	book := sig.Payload.BookSnapshot
	if len(book) == 0 {
		return nil, fmt.Errorf("signal %s has no book snapshot", sig.SignalID)
	}

	plan := &types.TradePlan{
		Action:           "buy_basket",
		Rationale:        fmt.Sprintf("basket priced at %.4f, payout 1.0", sig.Payload.Sum),
		EstimatedEdgeBPS: sig.Payload.Gap * 10000,
	}
	for _, lvl := range book {
		ref := lvl.BestAsk
		if ref == 0 {
			ref = lvl.Price
		}
		plan.Legs = append(plan.Legs,
			buildLeg(sig.MarketID, lvl.OptionID, lvl.Label, types.SideBuy, qty, ref, slippageBPS))
	}
	return plan, nil
}

func singleLegPlan(sig *types.Signal, side string, qty float64, slippageBPS int64, rationale string) (*types.TradePlan, error) {
	if sig.OptionID == "" {
		return nil, fmt.Errorf("signal %s has no option", sig.SignalID)
	}

	ref := referencePrice(sig, sig.OptionID)
	if ref == 0 {
		return nil, fmt.Errorf("signal %s has no reference price for option %s", sig.SignalID, sig.OptionID)
	}

	return &types.TradePlan{
		Action:           side + "_single",
		Rationale:        rationale,
		EstimatedEdgeBPS: sig.EdgeScore * 10000,
		Legs: []types.TradeLeg{
			buildLeg(sig.MarketID, sig.OptionID, sig.Payload.Label, side, qty, ref, slippageBPS),
		},
	}, nil
}

// referencePrice finds the option's price in the signal's book snapshot.
func referencePrice(sig *types.Signal, optionID string) float64 {
	for _, lvl := range sig.Payload.BookSnapshot {
		if lvl.OptionID == optionID {
			return lvl.Price
		}
	}
	return 0
}
