package types

import "time"

// Market status values.
const (
	StatusOpen    = "open"
	StatusClosing = "closing"
	StatusClosed  = "closed"
)

// Market is a tracked prediction market.
type Market struct {
	MarketID  string     `json:"market_id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Embedding []float32  `json:"-"` // reserved for embedding-based grouping
}

// Option is a purchasable outcome within a market. For real venues the
// option id equals the upstream CLOB token id.
type Option struct {
	OptionID string `json:"option_id"`
	MarketID string `json:"market_id"`
	Label    string `json:"label"`
}

// Outcome pairs a label with its upstream token id and last known price.
type Outcome struct {
	Label   string  `json:"label"`
	TokenID string  `json:"token_id"`
	Price   float64 `json:"price"`
}

// MarketDetail is the venue's per-market metadata response.
type MarketDetail struct {
	MarketID  string     `json:"market_id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Outcomes  []Outcome  `json:"outcomes"`
	Liquidity float64    `json:"liquidity"`
	Volume    float64    `json:"volume"`
}

// MinutesToEnd returns minutes until market close, or -1 when no end is set.
func (m *Market) MinutesToEnd(now time.Time) float64 {
	if m.EndsAt == nil {
		return -1
	}
	mins := m.EndsAt.Sub(now).Minutes()
	if mins < 0 {
		return 0
	}
	return mins
}

// SynonymGroup is a set of markets deemed semantically equivalent.
type SynonymGroup struct {
	GroupID int64    `json:"group_id"`
	Method  string   `json:"method"` // explicit | keyword | embedding
	Title   string   `json:"title"`
	Members []string `json:"members"`
}
