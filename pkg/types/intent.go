package types

import "time"

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderIntent statuses. The only legal transitions are
// suggested -> sent -> filled, suggested -> rejected, suggested -> expired.
const (
	IntentSuggested = "suggested"
	IntentSent      = "sent"
	IntentFilled    = "filled"
	IntentRejected  = "rejected"
	IntentExpired   = "expired"
)

// TerminalIntentStatus reports whether an intent can no longer transition.
func TerminalIntentStatus(status string) bool {
	return status == IntentFilled || status == IntentRejected || status == IntentExpired
}

// TradeLeg is one side of a suggested trade.
type TradeLeg struct {
	MarketID       string  `json:"market_id"`
	OptionID       string  `json:"option_id"`
	Label          string  `json:"label,omitempty"`
	Side           string  `json:"side"`
	Qty            float64 `json:"qty"`
	ReferencePrice float64 `json:"reference_price"`
	LimitPrice     float64 `json:"limit_price"`
}

// TradePlan is a rule-specific suggestion attached to signals and intents.
type TradePlan struct {
	Action           string     `json:"action"`
	Rationale        string     `json:"rationale"`
	Legs             []TradeLeg `json:"legs"`
	EstimatedEdgeBPS float64    `json:"estimated_edge_bps,omitempty"`
}

// RiskChecks records the outcome of the confirmation gauntlet.
type RiskChecks struct {
	Approved bool     `json:"approved"`
	Reasons  []string `json:"reasons,omitempty"`
}

// IntentDetail is the structured detail payload on an order intent.
type IntentDetail struct {
	Plan            *TradePlan     `json:"plan,omitempty"`
	PayloadSnapshot *SignalPayload `json:"payload_snapshot,omitempty"`
	Checks          *RiskChecks    `json:"checks,omitempty"`
	FillPrice       float64        `json:"fill_price,omitempty"`
}

// OrderIntent is an operator-initiated trade proposal.
type OrderIntent struct {
	IntentID   string       `json:"intent_id"`
	SignalID   string       `json:"signal_id"`
	MarketID   string       `json:"market_id"`
	OptionID   string       `json:"option_id,omitempty"`
	Side       string       `json:"side"`
	Qty        float64      `json:"qty"`
	LimitPrice float64      `json:"limit_price,omitempty"`
	TTLSecs    int64        `json:"ttl_secs"`
	Status     string       `json:"status"`
	PolicyID   int64        `json:"policy_id"`
	Detail     IntentDetail `json:"detail"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Expired reports whether the intent's TTL has elapsed at now.
func (i *OrderIntent) Expired(now time.Time) bool {
	return now.After(i.CreatedAt.Add(time.Duration(i.TTLSecs) * time.Second))
}

// Execution policy modes.
const (
	ModeSemiAuto = "semi_auto"
	ModeManual   = "manual"
	ModeAuto     = "auto"
)

// ExecutionPolicy holds the per-run risk parameters.
type ExecutionPolicy struct {
	PolicyID            int64   `json:"policy_id"`
	Name                string  `json:"name"`
	Mode                string  `json:"mode"`
	MaxNotionalPerOrder float64 `json:"max_notional_per_order"`
	MaxConcurrentOrders int64   `json:"max_concurrent_orders"`
	MaxDailyNotional    float64 `json:"max_daily_notional"`
	SlippageBPS         int64   `json:"slippage_bps"`
	Enabled             bool    `json:"enabled"`
}

// AuditEntry records an action taken against a target entity.
type AuditEntry struct {
	ID       int64             `json:"id"`
	Actor    string            `json:"actor"`
	Action   string            `json:"action"`
	TargetID string            `json:"target_id,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	At       time.Time         `json:"at"`
}
