package rules

import (
	"math"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Score computes the 0-100 composite for a firing:
// clamp(score_base + Σ weight_i * metric_i, 0, 100), rounded to 2 decimals.
// Metrics without a configured weight contribute nothing.
func Score(def *types.RuleDefinition, metrics map[string]float64) float64 {
	score := def.ScoreBase
	for name, weight := range def.ScoreWeights {
		if v, ok := metrics[name]; ok {
			score += weight * v
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return math.Round(score*100) / 100
}

// clamp01 bounds v to the unit interval; every edge_score goes through it.
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
