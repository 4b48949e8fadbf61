package venue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// SyntheticSource is a deterministic mock venue for local runs and tests.
// Prices follow a bounded random walk; one market is periodically nudged
// into an underpriced book so the detection rules have something to find.
type SyntheticSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	logger  *zap.Logger
	markets []syntheticMarket
	now     func() time.Time
	cycle   int
}

type syntheticMarket struct {
	detail types.MarketDetail
}

// SyntheticConfig holds SyntheticSource configuration.
type SyntheticConfig struct {
	Seed   int64
	Logger *zap.Logger
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewSyntheticSource creates the mock venue with a fixed market set.
func NewSyntheticSource(cfg *SyntheticConfig) *SyntheticSource {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	base := now().UTC()
	endFar := base.Add(30 * 24 * time.Hour)
	endNear := base.Add(20 * time.Minute)

	s := &SyntheticSource{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: cfg.Logger,
		now:    now,
	}

	s.markets = []syntheticMarket{
		{detail: types.MarketDetail{
			MarketID: "mock-election-2026",
			Title:    "Who wins the 2026 election?",
			Status:   types.StatusOpen,
			EndsAt:   &endFar,
			Outcomes: []types.Outcome{
				{Label: "Candidate A", TokenID: "mock-election-2026-a", Price: 0.48},
				{Label: "Candidate B", TokenID: "mock-election-2026-b", Price: 0.39},
				{Label: "Other", TokenID: "mock-election-2026-c", Price: 0.12},
			},
			Liquidity: 50_000,
		}},
		{detail: types.MarketDetail{
			MarketID: "mock-fed-cut-march",
			Title:    "Will the Fed cut rates in March?",
			Status:   types.StatusOpen,
			EndsAt:   &endFar,
			Outcomes: []types.Outcome{
				{Label: "Yes", TokenID: "mock-fed-cut-march-yes", Price: 0.62},
				{Label: "No", TokenID: "mock-fed-cut-march-no", Price: 0.38},
			},
			Liquidity: 30_000,
		}},
		{detail: types.MarketDetail{
			MarketID: "mock-endgame-match",
			Title:    "Does the home team win tonight?",
			Status:   types.StatusOpen,
			EndsAt:   &endNear,
			Outcomes: []types.Outcome{
				{Label: "Yes", TokenID: "mock-endgame-match-yes", Price: 0.91},
				{Label: "No", TokenID: "mock-endgame-match-no", Price: 0.09},
			},
			Liquidity: 8_000,
		}},
	}

	return s
}

// Name identifies the source in logs and metrics.
func (s *SyntheticSource) Name() string {
	return "mock"
}

// ListMarkets returns all mock markets in one page, stepping the walk once.
func (s *SyntheticSource) ListMarkets(_ context.Context, limit int, _ string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step()

	page := &Page{}
	for i := range s.markets {
		if limit > 0 && len(page.Markets) >= limit {
			break
		}
		page.Markets = append(page.Markets, s.markets[i].detail)
	}
	return page, nil
}

// GetMarketDetail returns metadata for one mock market.
func (s *SyntheticSource) GetMarketDetail(_ context.Context, marketID string) (*types.MarketDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.markets {
		if s.markets[i].detail.MarketID == marketID {
			d := s.markets[i].detail
			return &d, nil
		}
	}
	return nil, Fatal("market-detail", errNotFound(marketID))
}

// GetBook synthesizes a book around the current walk price.
func (s *SyntheticSource) GetBook(_ context.Context, tokenID string) (*types.BookSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.markets {
		m := &s.markets[i]
		for _, out := range m.detail.Outcomes {
			if out.TokenID != tokenID {
				continue
			}
			spread := 0.004 + s.rng.Float64()*0.004
			return &types.BookSnapshot{
				TokenID:   tokenID,
				TS:        s.now().UTC(),
				Price:     out.Price,
				BestBid:   clamp01(out.Price - spread/2),
				BestAsk:   clamp01(out.Price + spread/2),
				Liquidity: m.detail.Liquidity,
			}, nil
		}
	}
	return nil, Fatal("book", errNotFound(tokenID))
}

// step advances every price one random-walk increment. Every tenth cycle
// the election market is pushed below a summed price of 1 so the sum rule
// has a live target.
func (s *SyntheticSource) step() {
	s.cycle++

	for i := range s.markets {
		m := &s.markets[i]
		for j := range m.detail.Outcomes {
			out := &m.detail.Outcomes[j]
			out.Price = clamp01(out.Price + (s.rng.Float64()-0.5)*0.01)
		}
	}

	if s.cycle%10 == 0 {
		m := &s.markets[0]
		for j := range m.detail.Outcomes {
			m.detail.Outcomes[j].Price *= 0.95
		}
		if s.logger != nil {
			s.logger.Debug("synthetic-underpricing-injected",
				zap.String("market-id", m.detail.MarketID),
				zap.Int("cycle", s.cycle))
		}
	}
}

type errNotFound string

func (e errNotFound) Error() string {
	return "not found: " + string(e)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0.001:
		return 0.001
	case v > 0.999:
		return 0.999
	default:
		return v
	}
}
