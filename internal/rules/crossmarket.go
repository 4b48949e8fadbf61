package rules

import (
	"fmt"
	"strings"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// labeledPrice is one option's latest price within a synonym group,
// keyed by its case-folded label.
type labeledPrice struct {
	marketID string
	optionID string
	label    string
	price    float64
}

// groupPrices aligns option labels case-insensitively across the group's
// member markets. Members without a view or without ticks are skipped.
func groupPrices(group *types.SynonymGroup, views map[string]*MarketView) map[string][]labeledPrice {
	aligned := make(map[string][]labeledPrice)
	for _, marketID := range group.Members {
		view, ok := views[marketID]
		if !ok {
			continue
		}
		for _, opt := range view.Options {
			tick, ok := view.Latest[opt.OptionID]
			if !ok {
				continue
			}
			key := strings.ToLower(opt.Label)
			aligned[key] = append(aligned[key], labeledPrice{
				marketID: marketID,
				optionID: opt.OptionID,
				label:    opt.Label,
				price:    tick.Price,
			})
		}
	}
	return aligned
}

// evalSynonymMisprice fires when the widest pairwise gap across the
// group's aligned labels exceeds the threshold.
func evalSynonymMisprice(def *types.RuleDefinition, group *types.SynonymGroup, views map[string]*MarketView, qty float64, slippageBPS int64) *firing {
	threshold := def.Param("threshold", 0.025)
	aligned := groupPrices(group, views)

	var maxGap float64
	var lo, hi labeledPrice

	for _, prices := range aligned {
		if len(prices) < 2 {
			continue
		}
		for i := 0; i < len(prices); i++ {
			for j := i + 1; j < len(prices); j++ {
				gap := prices[i].price - prices[j].price
				a, b := prices[j], prices[i]
				if gap < 0 {
					gap = -gap
					a, b = prices[i], prices[j]
				}
				if gap > maxGap {
					maxGap = gap
					lo, hi = a, b
				}
			}
		}
	}

	if maxGap <= threshold {
		return nil
	}

	// Both legs need concrete option ids for the confirm-time book
	// check, so the pair plan is embedded here while they are known.
	plan := &types.TradePlan{
		Action: "cross_market_pair",
		Rationale: fmt.Sprintf("label %q priced %.4f on %s vs %.4f on %s",
			lo.label, lo.price, lo.marketID, hi.price, hi.marketID),
		Legs: []types.TradeLeg{
			buildLeg(lo.marketID, lo.optionID, lo.label, types.SideBuy, qty, lo.price, slippageBPS),
			buildLeg(hi.marketID, hi.optionID, hi.label, types.SideSell, qty, hi.price, slippageBPS),
		},
		EstimatedEdgeBPS: maxGap * 10000,
	}

	return &firing{
		MarketID: lo.marketID,
		OptionID: lo.optionID,
		Reason: fmt.Sprintf("synonym group %q: %s priced %.4f vs %.4f, gap=%.4f",
			group.Title, lo.label, lo.price, hi.price, maxGap),
		Edge:    clamp01(maxGap),
		Metrics: map[string]float64{"gap": maxGap},
		Payload: types.SignalPayload{
			Gap:            maxGap,
			Leader:         lo.marketID,
			Laggard:        hi.marketID,
			Label:          lo.label,
			SuggestedTrade: plan,
		},
	}
}

// evalCrossMarketMisprice fires per label-identical option pair whose
// price gap exceeds the threshold, carrying a two-leg trade plan: buy
// the leader (cheap side), sell the laggard.
func evalCrossMarketMisprice(def *types.RuleDefinition, group *types.SynonymGroup, views map[string]*MarketView, qty float64, slippageBPS int64) []*firing {
	threshold := def.Param("threshold", 0.025)
	aligned := groupPrices(group, views)

	var firings []*firing
	for _, prices := range aligned {
		if len(prices) < 2 {
			continue
		}

		// Widest pair per label.
		lo, hi := prices[0], prices[0]
		for _, p := range prices[1:] {
			if p.price < lo.price {
				lo = p
			}
			if p.price > hi.price {
				hi = p
			}
		}

		gap := hi.price - lo.price
		if gap <= threshold {
			continue
		}

		plan := &types.TradePlan{
			Action: "cross_market_pair",
			Rationale: fmt.Sprintf("label %q priced %.4f on %s vs %.4f on %s",
				lo.label, lo.price, lo.marketID, hi.price, hi.marketID),
			Legs: []types.TradeLeg{
				buildLeg(lo.marketID, lo.optionID, lo.label, types.SideBuy, qty, lo.price, slippageBPS),
				buildLeg(hi.marketID, hi.optionID, hi.label, types.SideSell, qty, hi.price, slippageBPS),
			},
			EstimatedEdgeBPS: gap * 10000,
		}

		firings = append(firings, &firing{
			MarketID: lo.marketID,
			OptionID: lo.optionID,
			Reason: fmt.Sprintf("cross-market misprice on %q: gap=%.4f between %s and %s",
				lo.label, gap, lo.marketID, hi.marketID),
			Edge:    clamp01(gap),
			Metrics: map[string]float64{"gap": gap},
			Payload: types.SignalPayload{
				Gap:            gap,
				Leader:         lo.marketID,
				Laggard:        hi.marketID,
				Label:          lo.label,
				SuggestedTrade: plan,
			},
		})
	}

	return firings
}
