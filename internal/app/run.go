package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// expireSweepInterval spaces the stale-intent sweeps.
const expireSweepInterval = 15 * time.Second

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("data-source", a.cfg.DataSource),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.String("exec-mode", a.cfg.ExecMode),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	a.logger.Info("application-started",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("source", a.source.Name()))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	a.pipeline.Start(a.ctx)
	a.engine.Start(a.ctx)

	if a.stream != nil {
		a.stream.Start(a.ctx)
	}

	a.wg.Add(1)
	go a.runExpireSweep()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

// runExpireSweep periodically expires suggested intents whose TTL
// elapsed so they stop holding concurrency slots.
func (a *App) runExpireSweep() {
	defer a.wg.Done()

	ticker := time.NewTicker(expireSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			_, err := a.intents.ExpireStale(a.ctx)
			if err != nil && !isContextErr(err) {
				a.logger.Warn("intent-expire-sweep-failed", zap.Error(err))
			}
		}
	}
}

// onIngestCycle runs after every completed ingestion cycle: the first
// one flips readiness, and with a live stream the subscription set is
// refreshed to the current option universe.
func (a *App) onIngestCycle() {
	a.readyOnce.Do(func() {
		a.healthChecker.SetReady(true)
		a.logger.Info("application-ready")
	})

	if a.stream != nil {
		a.refreshStreamTokens()
	}
}

func (a *App) refreshStreamTokens() {
	markets, err := a.store.ListMarkets(a.ctx, "")
	if err != nil {
		a.logger.Warn("stream-token-refresh-failed", zap.Error(err))
		return
	}

	var tokens []string
	for i := range markets {
		opts, err := a.store.ListOptions(a.ctx, markets[i].MarketID)
		if err != nil {
			a.logger.Warn("stream-token-refresh-failed",
				zap.String("market-id", markets[i].MarketID),
				zap.Error(err))
			continue
		}
		for _, opt := range opts {
			tokens = append(tokens, opt.OptionID)
		}
	}
	a.stream.SetTokens(tokens)
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}

func isContextErr(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}
