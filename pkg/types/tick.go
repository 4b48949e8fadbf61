package types

import "time"

// Tick is a time-stamped price/book observation for one option.
// The composite key is (TS, MarketID, OptionID); ticks are append-only.
type Tick struct {
	TS        time.Time `json:"ts"`
	MarketID  string    `json:"market_id"`
	OptionID  string    `json:"option_id"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
	BestBid   float64   `json:"best_bid,omitempty"`
	BestAsk   float64   `json:"best_ask,omitempty"`
	Liquidity float64   `json:"liquidity,omitempty"`
}

// PriceTuple returns the fields the ingestion dedup rule compares.
func (t *Tick) PriceTuple() (price, bid, ask float64) {
	return t.Price, t.BestBid, t.BestAsk
}

// BookSnapshot is a venue order-book snapshot for one token.
type BookSnapshot struct {
	TokenID   string    `json:"token_id"`
	TS        time.Time `json:"ts"`
	Price     float64   `json:"price"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	Liquidity float64   `json:"liquidity"`
}

// Mid returns the midpoint of bid/ask, falling back to whichever side exists.
func (b *BookSnapshot) Mid() float64 {
	switch {
	case b.BestBid > 0 && b.BestAsk > 0:
		return (b.BestBid + b.BestAsk) / 2
	case b.BestBid > 0:
		return b.BestBid
	case b.BestAsk > 0:
		return b.BestAsk
	default:
		return b.Price
	}
}
