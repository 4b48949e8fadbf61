package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// firing is one predicate hit before scoring and persistence.
type firing struct {
	MarketID string
	OptionID string
	// Level overrides the rule's default level when non-empty.
	Level   string
	Reason  string
	Edge    float64
	Metrics map[string]float64
	Payload types.SignalPayload
}

// evalSumLT1 fires when the option prices of a mutually exclusive market
// sum below 1 - min_gap.
func evalSumLT1(def *types.RuleDefinition, view *MarketView) *firing {
	if len(view.Options) < 2 || len(view.Latest) < len(view.Options) {
		return nil
	}

	var sum float64
	for _, opt := range view.Options {
		sum += view.Latest[opt.OptionID].Price
	}

	minGap := def.Param("min_gap", 0.01)
	gap := 1 - sum
	if gap <= minGap {
		return nil
	}

	level := types.LevelP2
	if gap >= 0.03 {
		level = types.LevelP1
	}

	return &firing{
		MarketID: view.Market.MarketID,
		Level:    level,
		Reason:   fmt.Sprintf("option prices sum=%.4f, gap=%.4f", sum, gap),
		Edge:     clamp01(gap),
		Metrics:  map[string]float64{"gap": gap, "sum": sum},
		Payload:  types.SignalPayload{Sum: sum, Gap: gap},
	}
}

// evalSpike fires on the option with the largest absolute price move
// inside the sliding window, gated by liquidity.
func evalSpike(def *types.RuleDefinition, view *MarketView, now time.Time) *firing {
	windowSecs := def.Param("window_secs", 10)
	threshold := def.Param("threshold", 0.05)
	minLiquidity := def.Param("min_liquidity", 0)
	cutoff := now.Add(-time.Duration(windowSecs) * time.Second)

	var best *firing
	var bestAbs float64

	for _, opt := range view.Options {
		latest, ok := view.Latest[opt.OptionID]
		if !ok || latest.Liquidity < minLiquidity {
			continue
		}

		open, ok := windowOpenPrice(view.Window[opt.OptionID], cutoff)
		if !ok {
			continue
		}

		delta := latest.Price - open
		abs := math.Abs(delta)
		if abs <= threshold || abs <= bestAbs {
			continue
		}

		bestAbs = abs
		best = &firing{
			MarketID: view.Market.MarketID,
			OptionID: opt.OptionID,
			Reason:   fmt.Sprintf("price moved %+.4f within %.0fs window", delta, windowSecs),
			Edge:     clamp01(abs),
			Metrics:  map[string]float64{"pct_change": delta, "abs_change": abs},
			Payload: types.SignalPayload{
				PctChange:  delta,
				WindowSecs: windowSecs,
				Label:      opt.Label,
			},
		}
	}

	return best
}

// windowOpenPrice returns the price of the earliest tick at or after the
// cutoff; false when the window holds fewer than two observations.
func windowOpenPrice(window []types.Tick, cutoff time.Time) (float64, bool) {
	var open float64
	count := 0
	for i := range window {
		if window[i].TS.Before(cutoff) {
			continue
		}
		if count == 0 {
			open = window[i].Price
		}
		count++
	}
	if count < 2 {
		return 0, false
	}
	return open, true
}

// evalEndgame fires near market close on options priced above price_hi
// with an anomalous volume z-score.
func evalEndgame(def *types.RuleDefinition, view *MarketView, now time.Time) *firing {
	endsWithin := def.Param("ends_within_hours", 24)
	minutes := view.Market.MinutesToEnd(now)
	if minutes < 0 || minutes > endsWithin*60 {
		return nil
	}

	priceHi := def.Param("price_hi", 0.9)
	zHi := def.Param("z_hi", 2)
	minSigma := def.Param("min_sigma", 1e-6)

	var best *firing
	var bestEdge float64

	for _, opt := range view.Options {
		latest, ok := view.Latest[opt.OptionID]
		if !ok || latest.Price < priceHi {
			continue
		}

		z := volumeZScore(view.Window[opt.OptionID], latest.Volume, minSigma)
		if z < zHi {
			continue
		}

		edge := clamp01((latest.Price - priceHi) + 0.1*z)
		if edge <= bestEdge {
			continue
		}

		bestEdge = edge
		best = &firing{
			MarketID: view.Market.MarketID,
			OptionID: opt.OptionID,
			Reason:   fmt.Sprintf("endgame sweep: price=%.4f z=%.2f with %.0f minutes to close", latest.Price, z, minutes),
			Edge:     edge,
			Metrics:  map[string]float64{"z_score": z, "price": latest.Price},
			Payload: types.SignalPayload{
				ZScore: z,
				Label:  opt.Label,
			},
		}
	}

	return best
}

func volumeZScore(window []types.Tick, last float64, minSigma float64) float64 {
	if len(window) < 2 {
		return 0
	}

	var sum float64
	for i := range window {
		sum += window[i].Volume
	}
	mean := sum / float64(len(window))

	var variance float64
	for i := range window {
		d := window[i].Volume - mean
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(len(window)))
	if sigma < minSigma {
		sigma = minSigma
	}

	return (last - mean) / sigma
}

// evalDutchBook fires when buying every outcome at its ask costs less
// than sum_threshold, a riskless basket.
func evalDutchBook(def *types.RuleDefinition, view *MarketView) *firing {
	if len(view.Options) < 2 || len(view.Latest) < len(view.Options) {
		return nil
	}

	var sum float64
	for _, opt := range view.Options {
		tick := view.Latest[opt.OptionID]
		ask := tick.BestAsk
		if ask == 0 {
			ask = tick.Price
		}
		if ask == 0 {
			return nil
		}
		sum += ask
	}

	threshold := def.Param("sum_threshold", 0.995)
	if sum >= threshold {
		return nil
	}

	gap := 1 - sum
	return &firing{
		MarketID: view.Market.MarketID,
		Reason:   fmt.Sprintf("dutch book: ask basket costs %.4f", sum),
		Edge:     clamp01(gap),
		Metrics:  map[string]float64{"gap": gap, "sum": sum},
		Payload:  types.SignalPayload{Sum: sum, Gap: gap},
	}
}

// evalTrend fires on the option whose latest price deviates most from
// its rolling window mean, relative to that mean.
func evalTrend(def *types.RuleDefinition, view *MarketView, now time.Time) *firing {
	windowSecs := def.Param("window_secs", 300)
	threshold := def.Param("threshold", 0.1)
	eps := def.Param("eps", 1e-6)
	cutoff := now.Add(-time.Duration(windowSecs) * time.Second)

	var best *firing
	var bestDev float64

	for _, opt := range view.Options {
		latest, ok := view.Latest[opt.OptionID]
		if !ok {
			continue
		}

		mean, n := windowMean(view.Window[opt.OptionID], cutoff)
		if n < 2 {
			continue
		}

		deviation := math.Abs(latest.Price-mean) / math.Max(mean, eps)
		if deviation <= threshold || deviation <= bestDev {
			continue
		}

		bestDev = deviation
		best = &firing{
			MarketID: view.Market.MarketID,
			OptionID: opt.OptionID,
			Reason:   fmt.Sprintf("trend breakout: price=%.4f mean=%.4f deviation=%.4f", latest.Price, mean, deviation),
			Edge:     clamp01(deviation),
			Metrics:  map[string]float64{"deviation": deviation},
			Payload: types.SignalPayload{
				Deviation:  deviation,
				WindowSecs: windowSecs,
				Label:      opt.Label,
			},
		}
	}

	return best
}

func windowMean(window []types.Tick, cutoff time.Time) (float64, int) {
	var sum float64
	count := 0
	for i := range window {
		if window[i].TS.Before(cutoff) {
			continue
		}
		sum += window[i].Price
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}
