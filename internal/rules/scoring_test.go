package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		def     types.RuleDefinition
		metrics map[string]float64
		want    float64
	}{
		{
			name: "base only",
			def:  types.RuleDefinition{ScoreBase: 50},
			want: 50,
		},
		{
			name: "weighted metrics",
			def: types.RuleDefinition{
				ScoreBase:    50,
				ScoreWeights: map[string]float64{"gap": 1000},
			},
			metrics: map[string]float64{"gap": 0.03},
			want:    80,
		},
		{
			name: "unweighted metrics ignored",
			def: types.RuleDefinition{
				ScoreBase:    40,
				ScoreWeights: map[string]float64{"gap": 100},
			},
			metrics: map[string]float64{"sum": 0.97},
			want:    40,
		},
		{
			name: "clamped at 100",
			def: types.RuleDefinition{
				ScoreBase:    90,
				ScoreWeights: map[string]float64{"gap": 10000},
			},
			metrics: map[string]float64{"gap": 0.5},
			want:    100,
		},
		{
			name: "clamped at 0",
			def: types.RuleDefinition{
				ScoreBase:    10,
				ScoreWeights: map[string]float64{"z_score": -50},
			},
			metrics: map[string]float64{"z_score": 3},
			want:    0,
		},
		{
			name: "rounded to two decimals",
			def: types.RuleDefinition{
				ScoreBase:    50,
				ScoreWeights: map[string]float64{"gap": 100},
			},
			metrics: map[string]float64{"gap": 0.03333},
			want:    53.33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(&tt.def, tt.metrics), 1e-9)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.25, clamp01(0.25))
}
