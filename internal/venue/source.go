package venue

import (
	"context"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Page is one page of market listings with an opaque continuation cursor.
// An empty NextCursor means the listing is exhausted.
type Page struct {
	Markets    []types.MarketDetail
	NextCursor string
}

// Source is the venue abstraction the ingestion pipeline polls.
// Implementations: PolymarketClient (real) and SyntheticSource (mock).
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// ListMarkets returns up to limit open markets starting at cursor.
	ListMarkets(ctx context.Context, limit int, cursor string) (*Page, error)

	// GetMarketDetail returns metadata and outcomes for one market.
	GetMarketDetail(ctx context.Context, marketID string) (*types.MarketDetail, error)

	// GetBook returns the current book snapshot for one token.
	GetBook(ctx context.Context, tokenID string) (*types.BookSnapshot, error)
}
