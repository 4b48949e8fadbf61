package rules

import (
	"context"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// MarketView is the per-market tick view a predicate evaluates against:
// the latest tick per option plus a rolling lookback window.
type MarketView struct {
	Market  types.Market
	Options []types.Option
	Latest  map[string]types.Tick
	Window  map[string][]types.Tick
}

// LabelOf returns the option's label, or its id when unknown.
func (v *MarketView) LabelOf(optionID string) string {
	for i := range v.Options {
		if v.Options[i].OptionID == optionID {
			return v.Options[i].Label
		}
	}
	return optionID
}

// BookLevels converts the latest ticks into a payload book snapshot.
func (v *MarketView) BookLevels() []types.BookLevel {
	levels := make([]types.BookLevel, 0, len(v.Options))
	for _, opt := range v.Options {
		tick, ok := v.Latest[opt.OptionID]
		if !ok {
			continue
		}
		levels = append(levels, types.BookLevel{
			OptionID:  opt.OptionID,
			Label:     opt.Label,
			Price:     tick.Price,
			BestBid:   tick.BestBid,
			BestAsk:   tick.BestAsk,
			Liquidity: tick.Liquidity,
		})
	}
	return levels
}

// buildView loads one market's view from storage.
func buildView(ctx context.Context, store storage.Store, market types.Market, lookback time.Duration, now time.Time) (*MarketView, error) {
	opts, err := store.ListOptions(ctx, market.MarketID)
	if err != nil {
		return nil, err
	}

	latest, err := store.LatestTicks(ctx, market.MarketID)
	if err != nil {
		return nil, err
	}

	view := &MarketView{
		Market:  market,
		Options: opts,
		Latest:  make(map[string]types.Tick, len(latest)),
		Window:  make(map[string][]types.Tick, len(opts)),
	}
	for _, tick := range latest {
		view.Latest[tick.OptionID] = tick
	}

	since := now.Add(-lookback)
	for _, opt := range opts {
		window, err := store.RecentTicks(ctx, market.MarketID, opt.OptionID, since)
		if err != nil {
			return nil, err
		}
		view.Window[opt.OptionID] = window
	}

	return view, nil
}
