package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/internal/venue"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// closingWindow is how close to its end a market must be before its
// status flips from open to closing.
const closingWindow = 60 * time.Minute

// Pipeline polls the venue on a fixed interval and persists deduplicated
// ticks. Cycles never overlap: when a cycle outlasts the interval, the
// next firing is skipped.
type Pipeline struct {
	source  venue.Source
	store   storage.Store
	deduper *Deduper
	backoff Backoff
	logger  *zap.Logger

	pollInterval   time.Duration
	marketLimit    int
	chunkSize      int
	maxConcurrency int
	maxRetries     int

	running atomic.Bool
	onCycle func() // called after every completed cycle; readiness hook

	wg sync.WaitGroup
}

// Config holds Pipeline configuration.
type Config struct {
	Source         venue.Source
	Store          storage.Store
	Logger         *zap.Logger
	PollInterval   time.Duration
	MarketLimit    int
	ChunkSize      int
	MaxConcurrency int
	MaxRetries     int
	MinFlush       time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	// OnCycle, if set, runs after each completed cycle.
	OnCycle func()
}

// New creates a new ingestion pipeline.
func New(cfg *Config) *Pipeline {
	return &Pipeline{
		source:         cfg.Source,
		store:          cfg.Store,
		deduper:        NewDeduper(cfg.MinFlush),
		backoff:        Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		logger:         cfg.Logger,
		pollInterval:   cfg.PollInterval,
		marketLimit:    cfg.MarketLimit,
		chunkSize:      cfg.ChunkSize,
		maxConcurrency: cfg.MaxConcurrency,
		maxRetries:     cfg.MaxRetries,
		onCycle:        cfg.OnCycle,
	}
}

// Start launches the poll loop. Non-blocking; use Wait for shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Wait blocks until the poll loop has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context) {
	p.logger.Info("ingest-pipeline-starting",
		zap.String("source", p.source.Name()),
		zap.Duration("poll-interval", p.pollInterval))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Run one cycle immediately instead of waiting a full interval.
	p.cycleGuarded(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("ingest-pipeline-stopped")
			return
		case <-ticker.C:
			p.cycleGuarded(ctx)
		}
	}
}

func (p *Pipeline) cycleGuarded(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		CyclesSkippedTotal.WithLabelValues(p.source.Name()).Inc()
		p.logger.Warn("ingest-cycle-skipped-previous-running")
		return
	}
	defer p.running.Store(false)

	start := time.Now()
	err := p.Cycle(ctx)
	elapsed := time.Since(start)

	IngestLatencyMs.WithLabelValues(p.source.Name()).Observe(float64(elapsed.Milliseconds()))
	CyclesTotal.WithLabelValues(p.source.Name()).Inc()

	if err != nil {
		p.logger.Error("ingest-cycle-failed",
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}

	p.logger.Debug("ingest-cycle-complete", zap.Duration("elapsed", elapsed))

	if p.onCycle != nil {
		p.onCycle()
	}
}

// Cycle runs one full ingestion pass: list markets, persist metadata,
// then fan out book fetches in bounded chunks and persist the resulting
// ticks. Exported for tests and the CLI one-shot mode.
func (p *Pipeline) Cycle(ctx context.Context) error {
	markets, err := p.listAll(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range markets {
		detail := &markets[i]
		err = p.persistMetadata(ctx, detail, now)
		if err != nil {
			return err
		}
	}

	for start := 0; start < len(markets); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(markets) {
			end = len(markets)
		}
		p.fetchChunk(ctx, markets[start:end])

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

func (p *Pipeline) listAll(ctx context.Context) ([]types.MarketDetail, error) {
	var all []types.MarketDetail
	cursor := ""

	for {
		remaining := p.marketLimit - len(all)
		if remaining <= 0 {
			break
		}

		pageLimit := remaining
		if pageLimit > 100 {
			pageLimit = 100
		}

		page, err := withRetry(ctx, p, "list-markets", func() (*venue.Page, error) {
			return p.source.ListMarkets(ctx, pageLimit, cursor)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Markets...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return all, nil
}

func (p *Pipeline) persistMetadata(ctx context.Context, detail *types.MarketDetail, now time.Time) error {
	status := detail.Status
	if status == types.StatusOpen && detail.EndsAt != nil && detail.EndsAt.Sub(now) < closingWindow {
		status = types.StatusClosing
	}

	market := &types.Market{
		MarketID: detail.MarketID,
		Title:    detail.Title,
		Status:   status,
		StartsAt: detail.StartsAt,
		EndsAt:   detail.EndsAt,
	}
	err := p.store.UpsertMarket(ctx, market)
	if err != nil {
		return err
	}

	opts := make([]types.Option, 0, len(detail.Outcomes))
	for _, out := range detail.Outcomes {
		opts = append(opts, types.Option{
			OptionID: out.TokenID,
			MarketID: detail.MarketID,
			Label:    out.Label,
		})
	}
	return p.store.UpsertOptions(ctx, opts)
}

// fetchChunk fans out book fetches for one chunk of markets with bounded
// concurrency and persists the surviving ticks in a single batch.
func (p *Pipeline) fetchChunk(ctx context.Context, markets []types.MarketDetail) {
	var mu sync.Mutex
	var batch []types.Tick

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)

	for i := range markets {
		detail := &markets[i]
		g.Go(func() error {
			ticks := p.fetchMarket(gctx, detail)
			if len(ticks) > 0 {
				mu.Lock()
				batch = append(batch, ticks...)
				mu.Unlock()
			}
			// Per-market failures are logged, never fatal to the chunk.
			return nil
		})
	}
	_ = g.Wait()

	if len(batch) == 0 {
		return
	}

	inserted, err := p.store.InsertTicks(ctx, batch)
	if err != nil {
		p.logger.Error("tick-batch-insert-failed", zap.Error(err))
		return
	}

	TicksInsertedTotal.WithLabelValues(p.source.Name()).Add(float64(inserted))

	// The gauge tracks the newest tick actually written, not wall clock.
	var maxTS time.Time
	for i := range batch {
		if batch[i].TS.After(maxTS) {
			maxTS = batch[i].TS
		}
	}
	LastTickTimestamp.WithLabelValues(p.source.Name()).Set(float64(maxTS.Unix()))
}

func (p *Pipeline) fetchMarket(ctx context.Context, detail *types.MarketDetail) []types.Tick {
	var ticks []types.Tick
	now := time.Now().UTC()

	for _, out := range detail.Outcomes {
		snap, err := withRetry(ctx, p, "book", func() (*types.BookSnapshot, error) {
			return p.source.GetBook(ctx, out.TokenID)
		})
		if err != nil {
			FetchErrorsTotal.WithLabelValues(p.source.Name()).Inc()
			p.logger.Warn("book-fetch-failed",
				zap.String("market-id", detail.MarketID),
				zap.String("token-id", out.TokenID),
				zap.Error(err))
			continue
		}

		tick := types.Tick{
			TS:        now,
			MarketID:  detail.MarketID,
			OptionID:  out.TokenID,
			Price:     snap.Price,
			BestBid:   snap.BestBid,
			BestAsk:   snap.BestAsk,
			Liquidity: snap.Liquidity,
			Volume:    detail.Volume,
		}
		if tick.Price == 0 {
			tick.Price = out.Price
		}

		if p.deduper.ShouldEmit(&tick) {
			ticks = append(ticks, tick)
		}
	}

	return ticks
}

// withRetry retries retriable venue errors with exponential backoff.
// Fatal errors and context cancellation return immediately.
func withRetry[T any](ctx context.Context, p *Pipeline, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := p.backoff.Sleep(ctx, attempt-1); err != nil {
				return zero, err
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !venue.IsRetriable(err) {
			p.logger.Debug("venue-error-not-retriable",
				zap.String("op", op),
				zap.Error(err))
			return zero, err
		}
	}

	return zero, lastErr
}
