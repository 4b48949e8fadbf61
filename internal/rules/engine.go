package rules

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/alert"
	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// defaultReloadInterval spaces rule/synonym configuration reloads.
const defaultReloadInterval = time.Minute

type cooldownKey struct {
	ruleID   int64
	marketID string
}

// Engine runs the periodic evaluation cycle: it loads the enabled rule
// definitions, builds per-market tick views, dispatches the predicates,
// and emits signals gated by per-pair cooldowns and circuit breakers.
type Engine struct {
	store    storage.Store
	loader   *Loader
	matcher  *SynonymMatcher
	breaker  *Breaker
	notifier alert.Notifier
	logger   *zap.Logger

	evalInterval   time.Duration
	reloadInterval time.Duration
	lookback       time.Duration
	defaultQty     float64
	slippageBPS    int64

	cooldowns  map[cooldownKey]time.Time
	defs       []types.RuleDefinition
	groups     []types.SynonymGroup
	lastReload time.Time

	now func() time.Time
	wg  sync.WaitGroup
}

// EngineConfig holds Engine configuration.
type EngineConfig struct {
	Store    storage.Store
	Loader   *Loader
	Matcher  *SynonymMatcher
	Breaker  *Breaker
	Notifier alert.Notifier
	Logger   *zap.Logger

	EvalInterval time.Duration
	// ReloadInterval spaces configuration reloads. Zero means the default.
	ReloadInterval time.Duration
	// Lookback is how far back tick windows reach.
	Lookback time.Duration
	// DefaultQty sizes suggested trade legs unless a rule overrides it
	// with a qty param.
	DefaultQty  float64
	SlippageBPS int64

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewEngine creates a rule evaluation engine.
func NewEngine(cfg *EngineConfig) *Engine {
	reload := cfg.ReloadInterval
	if reload == 0 {
		reload = defaultReloadInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:          cfg.Store,
		loader:         cfg.Loader,
		matcher:        cfg.Matcher,
		breaker:        cfg.Breaker,
		notifier:       cfg.Notifier,
		logger:         cfg.Logger,
		evalInterval:   cfg.EvalInterval,
		reloadInterval: reload,
		lookback:       cfg.Lookback,
		defaultQty:     cfg.DefaultQty,
		slippageBPS:    cfg.SlippageBPS,
		cooldowns:      make(map[cooldownKey]time.Time),
		now:            now,
	}
}

// Breaker exposes the engine's circuit breaker to the intent pipeline,
// which refuses to confirm intents against an open pair.
func (e *Engine) Breaker() *Breaker {
	return e.breaker
}

// Start launches the evaluation loop. The first cycle runs immediately.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.logger.Info("rule-engine-starting",
			zap.Duration("eval-interval", e.evalInterval))

		err := e.EvalCycle(ctx)
		if err != nil {
			e.logger.Error("rule-eval-cycle-failed", zap.Error(err))
		}

		ticker := time.NewTicker(e.evalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.logger.Info("rule-engine-stopping")
				return
			case <-ticker.C:
				err := e.EvalCycle(ctx)
				if err != nil {
					e.logger.Error("rule-eval-cycle-failed", zap.Error(err))
				}
			}
		}
	}()
}

// Wait blocks until the evaluation loop has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// EvalCycle runs one full evaluation pass over the active markets.
func (e *Engine) EvalCycle(ctx context.Context) error {
	started := e.now()
	defer func() {
		RuleEvalMs.Observe(float64(e.now().Sub(started).Milliseconds()))
	}()

	err := e.reload(ctx)
	if err != nil {
		return err
	}

	markets, err := e.store.ListMarkets(ctx, "")
	if err != nil {
		return err
	}

	views := make(map[string]*MarketView)
	for i := range markets {
		if markets[i].Status == types.StatusClosed {
			continue
		}
		view, err := buildView(ctx, e.store, markets[i], e.lookback, started)
		if err != nil {
			e.logger.Warn("market-view-build-failed",
				zap.String("market-id", markets[i].MarketID),
				zap.Error(err))
			continue
		}
		views[markets[i].MarketID] = view
	}

	for i := range e.defs {
		def := &e.defs[i]
		if !def.Enabled {
			continue
		}
		e.evaluateRule(ctx, def, views, started)
	}

	return nil
}

// reload refreshes rule definitions and synonym groups when the reload
// interval has elapsed since the last refresh.
func (e *Engine) reload(ctx context.Context) error {
	now := e.now()
	if e.defs != nil && now.Sub(e.lastReload) < e.reloadInterval {
		return nil
	}

	defs, err := e.loader.Load(ctx)
	if err != nil {
		return err
	}
	e.defs = defs

	if e.matcher != nil {
		groups, err := e.matcher.Materialize(ctx)
		if err != nil {
			return err
		}
		e.groups = groups
	}

	e.lastReload = now
	return nil
}

func (e *Engine) evaluateRule(ctx context.Context, def *types.RuleDefinition, views map[string]*MarketView, now time.Time) {
	qty := def.Param("qty", e.defaultQty)

	switch def.Type {
	case types.RuleSynonymMisprice:
		for i := range e.groups {
			f := evalSynonymMisprice(def, &e.groups[i], views, qty, e.slippageBPS)
			if f != nil {
				e.emit(ctx, def, f, views[f.MarketID], now)
			}
		}

	case types.RuleCrossMarketMisprice:
		for i := range e.groups {
			for _, f := range evalCrossMarketMisprice(def, &e.groups[i], views, qty, e.slippageBPS) {
				e.emit(ctx, def, f, views[f.MarketID], now)
			}
		}

	default:
		for _, view := range views {
			if !e.inScope(def, view) {
				continue
			}

			var f *firing
			switch def.Type {
			case types.RuleSumLT1:
				f = evalSumLT1(def, view)
			case types.RuleSpikeDetect:
				f = evalSpike(def, view, now)
			case types.RuleEndgameSweep:
				f = evalEndgame(def, view, now)
			case types.RuleDutchBookDetect:
				f = evalDutchBook(def, view)
			case types.RuleTrendBreakout:
				f = evalTrend(def, view, now)
			}
			if f != nil {
				e.emit(ctx, def, f, view, now)
			}
		}
	}
}

// inScope reports whether the rule applies to the market: an empty
// scope_tags list means every market, otherwise any tag overlap.
func (e *Engine) inScope(def *types.RuleDefinition, view *MarketView) bool {
	if len(def.ScopeTags) == 0 {
		return true
	}
	for _, want := range def.ScopeTags {
		for _, have := range view.Market.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// emit persists one firing as a signal after the cooldown and breaker
// gates, then updates KPIs, the audit trail, and the alert transport.
// Alert failures never fail the cycle.
func (e *Engine) emit(ctx context.Context, def *types.RuleDefinition, f *firing, view *MarketView, now time.Time) {
	key := cooldownKey{ruleID: def.RuleID, marketID: f.MarketID}
	if def.CooldownSecs > 0 {
		last, ok := e.cooldowns[key]
		if ok && now.Sub(last) < time.Duration(def.CooldownSecs)*time.Second {
			CooldownSkipsTotal.Inc()
			return
		}
	}

	if !e.breaker.Allow(def.RuleID, f.MarketID) {
		BreakerSkipsTotal.Inc()
		e.logger.Debug("signal-skipped-breaker-open",
			zap.String("rule", def.Name),
			zap.String("market-id", f.MarketID))
		return
	}

	level := f.Level
	if level == "" {
		level = def.Level
	}

	payload := f.Payload
	payload.RuleType = def.Type
	payload.RuleName = def.Name
	payload.Reason = f.Reason
	payload.EdgeScore = f.Edge
	payload.EstimatedEdgeBPS = f.Edge * 10000
	payload.Transport = e.notifier.Name()
	if view != nil {
		payload.MarketTitle = view.Market.Title
		payload.BookSnapshot = view.BookLevels()
	}

	sig := &types.Signal{
		SignalID:  uuid.NewString(),
		MarketID:  f.MarketID,
		OptionID:  f.OptionID,
		RuleID:    def.RuleID,
		Level:     level,
		Score:     Score(def, f.Metrics),
		EdgeScore: f.Edge,
		Reason:    f.Reason,
		Payload:   payload,
		CreatedAt: now,
	}

	// Basket rules carry their plan on the signal so a later intent does
	// not depend on the book still looking the same.
	if sig.Payload.SuggestedTrade == nil &&
		(def.Type == types.RuleSumLT1 || def.Type == types.RuleDutchBookDetect) {
		plan, err := BuildPlan(sig, def.Param("qty", e.defaultQty), e.slippageBPS)
		if err == nil {
			sig.Payload.SuggestedTrade = plan
		}
	}

	err := e.store.InsertSignal(ctx, sig)
	if err != nil {
		e.logger.Error("signal-persist-failed",
			zap.String("rule", def.Name),
			zap.String("market-id", f.MarketID),
			zap.Error(err))
		return
	}

	e.cooldowns[key] = now
	e.breaker.RecordEmission(def.RuleID, f.MarketID)
	SignalsTotal.WithLabelValues(def.Name).Inc()

	gap, ok := f.Metrics["gap"]
	if !ok {
		gap = f.Edge
	}
	day := now.UTC().Format("2006-01-02")
	err = e.store.RecordKPI(ctx, day, def.Type, level, gap, f.Edge*10000)
	if err != nil {
		e.logger.Warn("kpi-update-failed", zap.String("rule", def.Name), zap.Error(err))
	}

	err = e.store.InsertAudit(ctx, &types.AuditEntry{
		Actor:    "rule-engine",
		Action:   "signal_emitted",
		TargetID: sig.SignalID,
		Meta: map[string]string{
			"rule":      def.Name,
			"market_id": f.MarketID,
			"level":     level,
		},
		At: now,
	})
	if err != nil {
		e.logger.Warn("audit-write-failed", zap.String("signal-id", sig.SignalID), zap.Error(err))
	}

	err = e.notifier.Notify(ctx, sig)
	if err != nil {
		e.logger.Warn("alert-delivery-failed",
			zap.String("signal-id", sig.SignalID),
			zap.Error(err))
	}

	e.logger.Info("signal-emitted",
		zap.String("signal-id", sig.SignalID),
		zap.String("rule", def.Name),
		zap.String("market-id", f.MarketID),
		zap.String("level", level),
		zap.Float64("score", sig.Score),
		zap.Float64("edge-score", f.Edge))
}
