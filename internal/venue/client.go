package venue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/cache"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// PolymarketClient implements Source against the Gamma and CLOB APIs.
// Market detail and book reads go through TTL caches so the pipeline
// never hammers the venue for data it already holds.
type PolymarketClient struct {
	gamma       *resty.Client
	clob        *resty.Client
	bookCache   cache.Cache
	detailCache cache.Cache
	bookTTL     time.Duration
	detailTTL   time.Duration
	logger      *zap.Logger
}

// ClientConfig holds PolymarketClient configuration.
type ClientConfig struct {
	GammaURL  string
	CLOBURL   string
	Timeout   time.Duration
	BookTTL   time.Duration
	DetailTTL time.Duration
	Logger    *zap.Logger
}

// NewPolymarketClient creates a new venue client with retry and TTL caches.
func NewPolymarketClient(cfg *ClientConfig) (*PolymarketClient, error) {
	newREST := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(cfg.Timeout).
			SetRetryCount(2).
			SetRetryWaitTime(300 * time.Millisecond).
			SetRetryMaxWaitTime(3 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
			}).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "marketpulse-x/1.0")
	}

	bookCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("book cache: %w", err)
	}

	detailCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 20_000,
		MaxCost:     2_000,
		BufferItems: 64,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("detail cache: %w", err)
	}

	return &PolymarketClient{
		gamma:       newREST(cfg.GammaURL),
		clob:        newREST(cfg.CLOBURL),
		bookCache:   bookCache,
		detailCache: detailCache,
		bookTTL:     cfg.BookTTL,
		detailTTL:   cfg.DetailTTL,
		logger:      cfg.Logger,
	}, nil
}

// Name identifies the source in logs and metrics.
func (c *PolymarketClient) Name() string {
	return "polymarket"
}

// gammaMarket is the Gamma API market shape. Outcome labels, prices and
// token ids arrive as JSON arrays encoded inside JSON strings.
type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	Closed        bool   `json:"closed"`
	Liquidity     string `json:"liquidity"`
	Volume        string `json:"volume"`
}

// ListMarkets returns a page of open markets. The cursor is the numeric
// offset into the Gamma listing.
func (c *PolymarketClient) ListMarkets(ctx context.Context, limit int, cursor string) (*Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, Fatal("list-markets", fmt.Errorf("bad cursor %q: %w", cursor, err))
		}
		offset = n
	}

	RequestsTotal.WithLabelValues("list-markets").Inc()

	var raw []gammaMarket
	resp, err := c.gamma.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"closed": "false",
			"active": "true",
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
			"order":  "volume24hr",
		}).
		SetResult(&raw).
		Get("/markets")
	if err != nil {
		RequestErrorsTotal.WithLabelValues("list-markets").Inc()
		return nil, Retriable("list-markets", err)
	}
	if resp.StatusCode() != http.StatusOK {
		RequestErrorsTotal.WithLabelValues("list-markets").Inc()
		return nil, classifyStatus("list-markets", resp.StatusCode(), resp.String())
	}

	page := &Page{}
	for i := range raw {
		detail, err := raw[i].toDetail()
		if err != nil {
			c.logger.Warn("market-parse-failed",
				zap.String("market-id", raw[i].ID),
				zap.Error(err))
			continue
		}
		page.Markets = append(page.Markets, *detail)
		c.detailCache.Set(detailKey(detail.MarketID), detail, c.detailTTL)
	}

	if len(raw) == limit {
		page.NextCursor = strconv.Itoa(offset + limit)
	}

	c.logger.Debug("markets-listed",
		zap.Int("count", len(page.Markets)),
		zap.Int("offset", offset))

	return page, nil
}

// GetMarketDetail returns metadata for one market, served from the TTL
// cache when fresh.
func (c *PolymarketClient) GetMarketDetail(ctx context.Context, marketID string) (*types.MarketDetail, error) {
	if v, ok := c.detailCache.Get(detailKey(marketID)); ok {
		if detail, ok := v.(*types.MarketDetail); ok {
			return detail, nil
		}
	}

	RequestsTotal.WithLabelValues("market-detail").Inc()

	var raw gammaMarket
	resp, err := c.gamma.R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/markets/" + marketID)
	if err != nil {
		RequestErrorsTotal.WithLabelValues("market-detail").Inc()
		return nil, Retriable("market-detail", err)
	}
	if resp.StatusCode() != http.StatusOK {
		RequestErrorsTotal.WithLabelValues("market-detail").Inc()
		return nil, classifyStatus("market-detail", resp.StatusCode(), resp.String())
	}

	detail, err := raw.toDetail()
	if err != nil {
		return nil, Fatal("market-detail", err)
	}

	c.detailCache.Set(detailKey(marketID), detail, c.detailTTL)
	return detail, nil
}

// clobBook is the CLOB /book response shape.
type clobBook struct {
	Bids []clobLevel `json:"bids"`
	Asks []clobLevel `json:"asks"`
}

type clobLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// GetBook returns the book snapshot for one token, served from the short
// TTL cache when fresh.
func (c *PolymarketClient) GetBook(ctx context.Context, tokenID string) (*types.BookSnapshot, error) {
	if v, ok := c.bookCache.Get(bookKey(tokenID)); ok {
		if snap, ok := v.(*types.BookSnapshot); ok {
			return snap, nil
		}
	}

	RequestsTotal.WithLabelValues("book").Inc()

	var raw clobBook
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&raw).
		Get("/book")
	if err != nil {
		RequestErrorsTotal.WithLabelValues("book").Inc()
		return nil, Retriable("book", err)
	}
	if resp.StatusCode() != http.StatusOK {
		RequestErrorsTotal.WithLabelValues("book").Inc()
		return nil, classifyStatus("book", resp.StatusCode(), resp.String())
	}

	snap := &types.BookSnapshot{
		TokenID: tokenID,
		TS:      time.Now().UTC(),
	}
	// Best bid is the highest bid, best ask the lowest ask. Liquidity is
	// the size resting at the top of both sides.
	var bidSize, askSize float64
	for _, lvl := range raw.Bids {
		price, size := parseLevel(lvl)
		if price > snap.BestBid {
			snap.BestBid = price
			bidSize = size
		}
	}
	for _, lvl := range raw.Asks {
		price, size := parseLevel(lvl)
		if price > 0 && (snap.BestAsk == 0 || price < snap.BestAsk) {
			snap.BestAsk = price
			askSize = size
		}
	}
	snap.Liquidity = bidSize + askSize
	snap.Price = snap.Mid()

	c.bookCache.Set(bookKey(tokenID), snap, c.bookTTL)
	return snap, nil
}

// WarmBook injects a snapshot into the book cache, bypassing REST.
// Used by the websocket stream.
func (c *PolymarketClient) WarmBook(snap *types.BookSnapshot) {
	c.bookCache.Set(bookKey(snap.TokenID), snap, c.bookTTL)
}

// Close releases the underlying caches.
func (c *PolymarketClient) Close() {
	c.bookCache.Close()
	c.detailCache.Close()
}

func (g *gammaMarket) toDetail() (*types.MarketDetail, error) {
	var labels, prices, tokens []string
	if err := decodeStringArray(g.Outcomes, &labels); err != nil {
		return nil, fmt.Errorf("parse outcomes: %w", err)
	}
	if err := decodeStringArray(g.OutcomePrices, &prices); err != nil {
		return nil, fmt.Errorf("parse outcome prices: %w", err)
	}
	if err := decodeStringArray(g.ClobTokenIDs, &tokens); err != nil {
		return nil, fmt.Errorf("parse token ids: %w", err)
	}
	if len(labels) != len(tokens) {
		return nil, fmt.Errorf("outcome/token mismatch: %d vs %d", len(labels), len(tokens))
	}

	detail := &types.MarketDetail{
		MarketID:  g.ID,
		Title:     g.Question,
		Status:    types.StatusOpen,
		Liquidity: parseFloat(g.Liquidity),
		Volume:    parseFloat(g.Volume),
	}
	if g.Closed {
		detail.Status = types.StatusClosed
	}
	if ts := parseTime(g.StartDate); ts != nil {
		detail.StartsAt = ts
	}
	if ts := parseTime(g.EndDate); ts != nil {
		detail.EndsAt = ts
	}

	for i, label := range labels {
		out := types.Outcome{Label: label, TokenID: tokens[i]}
		if i < len(prices) {
			out.Price = parseFloat(prices[i])
		}
		detail.Outcomes = append(detail.Outcomes, out)
	}

	return detail, nil
}

// decodeStringArray handles Gamma's double-encoded arrays: the field is a
// JSON string containing a JSON array.
func decodeStringArray(raw string, out *[]string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func parseLevel(lvl clobLevel) (price, size float64) {
	return parseFloat(lvl.Price), parseFloat(lvl.Size)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

func classifyStatus(op string, status int, body string) error {
	err := fmt.Errorf("status %d: %s", status, body)
	if status >= 500 || status == http.StatusTooManyRequests {
		return Retriable(op, err)
	}
	return Fatal(op, err)
}

func detailKey(marketID string) string { return "detail:" + marketID }
func bookKey(tokenID string) string    { return "book:" + tokenID }
