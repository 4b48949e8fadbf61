package ingest

import (
	"sync"
	"time"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Deduper suppresses ticks whose (price, best_bid, best_ask) tuple has not
// changed since the last emitted tick, unless the minimum flush interval
// has elapsed. It also drops ticks whose timestamp regresses behind the
// last emitted one for the same option.
type Deduper struct {
	mu       sync.Mutex
	minFlush time.Duration
	last     map[dedupKey]dedupEntry
}

type dedupKey struct {
	marketID string
	optionID string
}

type dedupEntry struct {
	price   float64
	bid     float64
	ask     float64
	ts      time.Time
	emitted time.Time
}

// NewDeduper creates a deduper with the given minimum flush interval.
func NewDeduper(minFlush time.Duration) *Deduper {
	return &Deduper{
		minFlush: minFlush,
		last:     make(map[dedupKey]dedupEntry),
	}
}

// ShouldEmit decides whether the tick is persisted and records it if so.
func (d *Deduper) ShouldEmit(t *types.Tick) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{marketID: t.MarketID, optionID: t.OptionID}
	entry, seen := d.last[key]

	if seen {
		// Out-of-order observation: never re-emit older data.
		if !t.TS.After(entry.ts) {
			DedupDroppedTotal.WithLabelValues("regression").Inc()
			return false
		}

		price, bid, ask := t.PriceTuple()
		unchanged := price == entry.price && bid == entry.bid && ask == entry.ask
		if unchanged && t.TS.Sub(entry.emitted) < d.minFlush {
			DedupDroppedTotal.WithLabelValues("unchanged").Inc()
			return false
		}
	}

	price, bid, ask := t.PriceTuple()
	d.last[key] = dedupEntry{price: price, bid: bid, ask: ask, ts: t.TS, emitted: t.TS}
	return true
}

// Reset clears the dedup state. Used when the market set is reloaded.
func (d *Deduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = make(map[dedupKey]dedupEntry)
}
