package types

import "time"

// Signal severity levels.
const (
	LevelP1 = "P1"
	LevelP2 = "P2"
	LevelP3 = "P3"
)

// Rule types form a closed set; the loader rejects anything else.
const (
	RuleSumLT1              = "SUM_LT_1"
	RuleSpikeDetect         = "SPIKE_DETECT"
	RuleEndgameSweep        = "ENDGAME_SWEEP"
	RuleSynonymMisprice     = "SYNONYM_MISPRICE"
	RuleDutchBookDetect     = "DUTCH_BOOK_DETECT"
	RuleCrossMarketMisprice = "CROSS_MARKET_MISPRICE"
	RuleTrendBreakout       = "TREND_BREAKOUT"
)

// RuleTypes lists every valid rule type tag.
var RuleTypes = []string{
	RuleSumLT1,
	RuleSpikeDetect,
	RuleEndgameSweep,
	RuleSynonymMisprice,
	RuleDutchBookDetect,
	RuleCrossMarketMisprice,
	RuleTrendBreakout,
}

// ValidRuleType reports whether t belongs to the closed rule-type set.
func ValidRuleType(t string) bool {
	for _, rt := range RuleTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// RuleDefinition is a persisted, versioned rule loaded from the DSL source.
type RuleDefinition struct {
	RuleID       int64              `json:"rule_id"`
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Enabled      bool               `json:"enabled"`
	Version      int64              `json:"version"`
	Params       map[string]float64 `json:"params,omitempty"`
	ScopeTags    []string           `json:"scope_tags,omitempty"`
	CooldownSecs int64              `json:"cooldown_secs"`
	Level        string             `json:"level"`
	ScoreBase    float64            `json:"score_base"`
	ScoreWeights map[string]float64 `json:"score_weights,omitempty"`
	RawYAML      string             `json:"-"`
}

// Param returns a named parameter or the given default.
func (r *RuleDefinition) Param(name string, def float64) float64 {
	if v, ok := r.Params[name]; ok {
		return v
	}
	return def
}

// Signal is an opportunity emitted by the rule engine. Consumers rank by
// EdgeScore; Score is the 0-100 composite kept for back-compat.
type Signal struct {
	SignalID  string        `json:"signal_id"`
	MarketID  string        `json:"market_id"`
	OptionID  string        `json:"option_id,omitempty"`
	RuleID    int64         `json:"rule_id"`
	Level     string        `json:"level"`
	Score     float64       `json:"score"`
	EdgeScore float64       `json:"edge_score"`
	Reason    string        `json:"reason"`
	Payload   SignalPayload `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
}

// BookLevel is one option's contribution to a signal's book snapshot.
type BookLevel struct {
	OptionID  string  `json:"option_id"`
	Label     string  `json:"label"`
	Price     float64 `json:"price"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Liquidity float64 `json:"liquidity"`
}

// SignalPayload is the tagged per-rule-type payload. RuleType selects which
// of the optional sections is populated; Extra is the forward-compat bag.
type SignalPayload struct {
	RuleType    string     `json:"rule_type"`
	RuleName    string     `json:"rule_name"`
	MarketTitle string     `json:"market_title,omitempty"`
	Reason      string     `json:"reason"`
	Transport   string     `json:"transport,omitempty"`
	EdgeScore   float64    `json:"edge_score"`

	Sum        float64 `json:"sum,omitempty"`         // SUM_LT_1, DUTCH_BOOK_DETECT
	Gap        float64 `json:"gap,omitempty"`         // SYNONYM/CROSS_MARKET_MISPRICE
	PctChange  float64 `json:"pct_change,omitempty"`  // SPIKE_DETECT
	ZScore     float64 `json:"z_score,omitempty"`     // ENDGAME_SWEEP
	Deviation  float64 `json:"deviation,omitempty"`   // TREND_BREAKOUT
	WindowSecs float64 `json:"window_secs,omitempty"`
	Leader     string  `json:"leader,omitempty"`  // market id with the lower price
	Laggard    string  `json:"laggard,omitempty"` // market id with the higher price
	Label      string  `json:"label,omitempty"`

	EstimatedEdgeBPS float64            `json:"estimated_edge_bps,omitempty"`
	BookSnapshot     []BookLevel        `json:"book_snapshot,omitempty"`
	SuggestedTrade   *TradePlan         `json:"suggested_trade,omitempty"`
	Extra            map[string]float64 `json:"extra,omitempty"`
}

// RuleKpiDaily is the per-day, per-rule-type KPI aggregate.
type RuleKpiDaily struct {
	Day        string  `json:"day"` // YYYY-MM-DD, UTC
	RuleType   string  `json:"rule_type"`
	Signals    int64   `json:"signals"`
	P1Signals  int64   `json:"p1_signals"`
	AvgGap     float64 `json:"avg_gap"`
	EstEdgeBPS float64 `json:"est_edge_bps"`
}
