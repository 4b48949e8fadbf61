package venue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// BookSink receives live book snapshots. PolymarketClient.WarmBook
// satisfies it, letting the stream keep the REST book cache warm so the
// poll loop rarely has to hit the CLOB at all.
type BookSink interface {
	WarmBook(snap *types.BookSnapshot)
}

// BookStream maintains a websocket subscription for a set of tokens and
// feeds every book update into a BookSink. Reconnects with exponential
// backoff and jitter.
type BookStream struct {
	url    string
	sink   BookSink
	logger *zap.Logger

	mu       sync.Mutex
	tokenIDs []string
	conn     *websocket.Conn

	initialDelay time.Duration
	maxDelay     time.Duration
	backoff      time.Duration

	wg sync.WaitGroup
}

// StreamConfig holds BookStream configuration.
type StreamConfig struct {
	URL          string
	Sink         BookSink
	Logger       *zap.Logger
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewBookStream creates a stream that is started with Start.
func NewBookStream(cfg *StreamConfig) *BookStream {
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	return &BookStream{
		url:          cfg.URL,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		initialDelay: initial,
		maxDelay:     maxDelay,
		backoff:      initial,
	}
}

// SetTokens replaces the subscription set. Takes effect on the next
// (re)connect.
func (s *BookStream) SetTokens(tokenIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenIDs = append([]string(nil), tokenIDs...)
}

// Start runs the read loop until ctx is cancelled.
func (s *BookStream) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Wait blocks until the read loop has exited.
func (s *BookStream) Wait() {
	s.wg.Wait()
}

func (s *BookStream) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.connect(ctx)
		if err != nil {
			s.logger.Warn("stream-connect-failed", zap.Error(err))
			if !s.sleepBackoff(ctx) {
				return
			}
			continue
		}

		s.resetBackoff()
		s.readLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		StreamReconnectsTotal.Inc()
		s.logger.Info("stream-reconnecting")
		if !s.sleepBackoff(ctx) {
			return
		}
	}
}

func (s *BookStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	tokens := append([]string(nil), s.tokenIDs...)
	s.mu.Unlock()

	sub := map[string]interface{}{
		"type":       "market",
		"assets_ids": tokens,
	}
	err = conn.WriteJSON(sub)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.logger.Info("stream-connected", zap.Int("tokens", len(tokens)))
	return nil
}

// wsBookMessage is the venue's book event shape.
type wsBookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []clobLevel `json:"bids"`
	Asks      []clobLevel `json:"asks"`
}

func (s *BookStream) readLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	defer func() { _ = conn.Close() }()

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("stream-read-ended", zap.Error(err))
			return
		}

		StreamMessagesTotal.Inc()
		s.handleMessage(raw)
	}
}

func (s *BookStream) handleMessage(raw []byte) {
	// Messages arrive both as single events and as event arrays.
	var batch []wsBookMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single wsBookMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			s.logger.Debug("stream-message-unparseable", zap.ByteString("raw", raw))
			return
		}
		batch = []wsBookMessage{single}
	}

	for i := range batch {
		msg := &batch[i]
		if msg.EventType != "book" || msg.AssetID == "" {
			continue
		}

		snap := &types.BookSnapshot{
			TokenID: msg.AssetID,
			TS:      time.Now().UTC(),
		}
		var bidSize, askSize float64
		for _, lvl := range msg.Bids {
			price, size := parseLevel(lvl)
			if price > snap.BestBid {
				snap.BestBid = price
				bidSize = size
			}
		}
		for _, lvl := range msg.Asks {
			price, size := parseLevel(lvl)
			if price > 0 && (snap.BestAsk == 0 || price < snap.BestAsk) {
				snap.BestAsk = price
				askSize = size
			}
		}
		snap.Liquidity = bidSize + askSize
		snap.Price = snap.Mid()

		s.sink.WarmBook(snap)
	}
}

func (s *BookStream) sleepBackoff(ctx context.Context) bool {
	s.mu.Lock()
	// Jitter: backoff * (1.0 + random(0, 0.2))
	delay := time.Duration(float64(s.backoff) * (1.0 + rand.Float64()*0.2))
	s.backoff *= 2
	if s.backoff > s.maxDelay {
		s.backoff = s.maxDelay
	}
	s.mu.Unlock()

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *BookStream) resetBackoff() {
	s.mu.Lock()
	s.backoff = s.initialDelay
	s.mu.Unlock()
}
