package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/alert"
	"github.com/marketpulse/marketpulse-x/internal/ingest"
	"github.com/marketpulse/marketpulse-x/internal/intent"
	"github.com/marketpulse/marketpulse-x/internal/rules"
	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/internal/venue"
	"github.com/marketpulse/marketpulse-x/pkg/config"
	"github.com/marketpulse/marketpulse-x/pkg/healthprobe"
	"github.com/marketpulse/marketpulse-x/pkg/httpserver"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// defaultIntentQty sizes suggested trade legs when the rule carries no
// qty override and the create request none either.
const defaultIntentQty = 10

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	store, err := setupStore(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	err = seedPolicy(ctx, cfg, store, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("seed execution policy: %w", err)
	}

	source, stream, err := setupSource(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup venue source: %w", err)
	}

	app := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		store:         store,
		source:        source,
		stream:        stream,
		ctx:           ctx,
		cancel:        cancel,
	}

	app.pipeline = ingest.New(&ingest.Config{
		Source:         source,
		Store:          store,
		Logger:         logger,
		PollInterval:   cfg.PollInterval,
		MarketLimit:    cfg.MarketLimit,
		ChunkSize:      cfg.ChunkSize,
		MaxConcurrency: cfg.MaxConcurrency,
		MaxRetries:     cfg.MaxRetries,
		MinFlush:       cfg.MinFlushInterval,
		BackoffBase:    cfg.BackoffBase,
		BackoffMax:     cfg.BackoffMax,
		OnCycle:        app.onIngestCycle,
	})

	app.engine = setupEngine(cfg, store, logger)

	app.intents = intent.NewService(&intent.ServiceConfig{
		Store:          store,
		Breaker:        app.engine.Breaker(),
		Logger:         logger,
		Mode:           cfg.ExecMode,
		DefaultQty:     defaultIntentQty,
		DefaultTTLSecs: int64(cfg.ExecDefaultTTLSecs),
	})

	app.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Store:         store,
		IntentService: app.intents,
		AdminToken:    cfg.AdminAPIToken,
	})

	return app, nil
}

func setupStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.StorageMode == "postgres" {
		store, err := storage.NewPostgresStore(&storage.PostgresConfig{
			DSN:    cfg.PostgresDSN(),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		return store, nil
	}

	return storage.NewMemoryStore(logger), nil
}

// seedPolicy installs the configured execution policy when no enabled
// policy exists yet; an operator-managed policy always wins.
func seedPolicy(ctx context.Context, cfg *config.Config, store storage.Store, logger *zap.Logger) error {
	_, err := store.ActivePolicy(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	policy := &types.ExecutionPolicy{
		Name:                "default",
		Mode:                cfg.ExecMode,
		MaxNotionalPerOrder: cfg.ExecMaxNotionalPerOrder,
		MaxConcurrentOrders: int64(cfg.ExecMaxConcurrentOrders),
		MaxDailyNotional:    cfg.ExecMaxDailyNotional,
		SlippageBPS:         int64(cfg.ExecSlippageBPS),
		Enabled:             true,
	}
	err = store.UpsertPolicy(ctx, policy)
	if err != nil {
		return err
	}

	logger.Info("execution-policy-seeded",
		zap.String("mode", policy.Mode),
		zap.Float64("max-notional-per-order", policy.MaxNotionalPerOrder),
		zap.Float64("max-daily-notional", policy.MaxDailyNotional))
	return nil
}

func setupSource(cfg *config.Config, logger *zap.Logger) (venue.Source, *venue.BookStream, error) {
	if cfg.DataSource == "mock" {
		source := venue.NewSyntheticSource(&venue.SyntheticConfig{
			Seed:   cfg.MockSeedOrRandom(),
			Logger: logger,
		})
		return source, nil, nil
	}

	client, err := venue.NewPolymarketClient(&venue.ClientConfig{
		GammaURL:  cfg.GammaURL,
		CLOBURL:   cfg.CLOBURL,
		Timeout:   cfg.RequestTimeout,
		BookTTL:   cfg.BookTTL,
		DetailTTL: cfg.MetadataTTL,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var stream *venue.BookStream
	if cfg.StreamEnabled {
		stream = venue.NewBookStream(&venue.StreamConfig{
			URL:    cfg.WSURL,
			Sink:   client,
			Logger: logger,
		})
	}

	return client, stream, nil
}

func setupEngine(cfg *config.Config, store storage.Store, logger *zap.Logger) *rules.Engine {
	breakerCooldown := time.Duration(cfg.BreakerCooldownSecs) * time.Second

	return rules.NewEngine(&rules.EngineConfig{
		Store: store,
		Loader: rules.NewLoader(&rules.LoaderConfig{
			Dir:    cfg.RulesDir,
			Store:  store,
			Logger: logger,
		}),
		Matcher: rules.NewSynonymMatcher(&rules.SynonymConfig{
			Path:   cfg.SynonymsPath,
			Store:  store,
			Logger: logger,
		}),
		Breaker: rules.NewBreaker(&rules.BreakerConfig{
			Window:       breakerCooldown,
			MaxEmissions: cfg.BreakerMax,
			Cooldown:     breakerCooldown,
			Logger:       logger,
		}),
		Notifier:     setupNotifier(cfg, logger),
		Logger:       logger,
		EvalInterval: cfg.EvalInterval,
		Lookback:     time.Duration(cfg.LookbackSecs) * time.Second,
		DefaultQty:   defaultIntentQty,
		SlippageBPS:  int64(cfg.ExecSlippageBPS),
	})
}

func setupNotifier(cfg *config.Config, logger *zap.Logger) alert.Notifier {
	if cfg.TelegramEnabled && cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		return alert.NewTelegramNotifier(&alert.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
			Logger:   logger,
		})
	}

	logger.Info("alerting-in-dry-run-mode")
	return alert.NewLogNotifier(logger)
}
