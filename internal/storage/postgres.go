package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	DSN    string
	Logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL store and verifies connectivity.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-store-connected")

	return &PostgresStore{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// NewPostgresStoreWithDB wraps an existing *sql.DB. Used in tests with sqlmock.
func NewPostgresStoreWithDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// UpsertMarket inserts or updates a market row.
func (p *PostgresStore) UpsertMarket(ctx context.Context, m *types.Market) error {
	query := `
		INSERT INTO market (market_id, title, status, starts_at, ends_at, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			tags = EXCLUDED.tags
	`

	_, err := p.db.ExecContext(ctx, query,
		m.MarketID, m.Title, m.Status, m.StartsAt, m.EndsAt, pq.Array(m.Tags))
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}

	return nil
}

// UpsertOptions inserts or updates option rows.
func (p *PostgresStore) UpsertOptions(ctx context.Context, opts []types.Option) error {
	if len(opts) == 0 {
		return nil
	}

	query := `
		INSERT INTO market_option (option_id, market_id, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (option_id) DO UPDATE SET label = EXCLUDED.label
	`

	for i := range opts {
		opt := &opts[i]
		_, err := p.db.ExecContext(ctx, query, opt.OptionID, opt.MarketID, opt.Label)
		if err != nil {
			return fmt.Errorf("upsert option %s: %w", opt.OptionID, err)
		}
	}

	return nil
}

// ListMarkets returns markets, optionally filtered by status.
func (p *PostgresStore) ListMarkets(ctx context.Context, status string) ([]types.Market, error) {
	query := `
		SELECT market_id, title, status, starts_at, ends_at, tags
		FROM market
		WHERE ($1 = '' OR status = $1)
		ORDER BY market_id
	`

	rows, err := p.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var markets []types.Market
	for rows.Next() {
		var m types.Market
		err = rows.Scan(&m.MarketID, &m.Title, &m.Status, &m.StartsAt, &m.EndsAt, pq.Array(&m.Tags))
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}

	return markets, rows.Err()
}

// GetMarket returns a single market or ErrNotFound.
func (p *PostgresStore) GetMarket(ctx context.Context, marketID string) (*types.Market, error) {
	query := `
		SELECT market_id, title, status, starts_at, ends_at, tags
		FROM market
		WHERE market_id = $1
	`

	var m types.Market
	err := p.db.QueryRowContext(ctx, query, marketID).
		Scan(&m.MarketID, &m.Title, &m.Status, &m.StartsAt, &m.EndsAt, pq.Array(&m.Tags))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}

	return &m, nil
}

// ListOptions returns the options of a market.
func (p *PostgresStore) ListOptions(ctx context.Context, marketID string) ([]types.Option, error) {
	query := `
		SELECT option_id, market_id, label
		FROM market_option
		WHERE market_id = $1
		ORDER BY option_id
	`

	rows, err := p.db.QueryContext(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var opts []types.Option
	for rows.Next() {
		var o types.Option
		err = rows.Scan(&o.OptionID, &o.MarketID, &o.Label)
		if err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		opts = append(opts, o)
	}

	return opts, rows.Err()
}

// InsertTicks appends ticks, skipping duplicate composite keys.
// Returns the number of rows actually inserted.
func (p *PostgresStore) InsertTicks(ctx context.Context, ticks []types.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO tick (ts, market_id, option_id, price, volume, best_bid, best_ask, liquidity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ts, market_id, option_id) DO NOTHING
	`

	inserted := 0
	for i := range ticks {
		t := &ticks[i]
		res, err := p.db.ExecContext(ctx, query,
			t.TS, t.MarketID, t.OptionID, t.Price, t.Volume, t.BestBid, t.BestAsk, t.Liquidity)
		if err != nil {
			return inserted, fmt.Errorf("insert tick: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	return inserted, nil
}

// LatestTicks returns the most recent tick per option of a market.
func (p *PostgresStore) LatestTicks(ctx context.Context, marketID string) ([]types.Tick, error) {
	query := `
		SELECT DISTINCT ON (option_id)
			ts, market_id, option_id, price, volume, best_bid, best_ask, liquidity
		FROM tick
		WHERE market_id = $1
		ORDER BY option_id, ts DESC
	`

	rows, err := p.db.QueryContext(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("latest ticks: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

// RecentTicks returns ticks for one option since the given time, oldest first.
func (p *PostgresStore) RecentTicks(ctx context.Context, marketID, optionID string, since time.Time) ([]types.Tick, error) {
	query := `
		SELECT ts, market_id, option_id, price, volume, best_bid, best_ask, liquidity
		FROM tick
		WHERE market_id = $1 AND option_id = $2 AND ts >= $3
		ORDER BY ts ASC
	`

	rows, err := p.db.QueryContext(ctx, query, marketID, optionID, since)
	if err != nil {
		return nil, fmt.Errorf("recent ticks: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

func scanTicks(rows *sql.Rows) ([]types.Tick, error) {
	var ticks []types.Tick
	for rows.Next() {
		var t types.Tick
		err := rows.Scan(&t.TS, &t.MarketID, &t.OptionID, &t.Price, &t.Volume, &t.BestBid, &t.BestAsk, &t.Liquidity)
		if err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// UpsertRuleDef inserts or updates a rule definition keyed by name.
// The version is bumped only when the raw source changed.
func (p *PostgresStore) UpsertRuleDef(ctx context.Context, def *types.RuleDefinition) (bool, error) {
	params, err := json.Marshal(def.Params)
	if err != nil {
		return false, fmt.Errorf("marshal params: %w", err)
	}
	weights, err := json.Marshal(def.ScoreWeights)
	if err != nil {
		return false, fmt.Errorf("marshal score weights: %w", err)
	}

	var prevVersion int64
	err = p.db.QueryRowContext(ctx,
		`SELECT version FROM rule_def WHERE name = $1`, def.Name).Scan(&prevVersion)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("lookup rule def: %w", err)
	}

	query := `
		INSERT INTO rule_def (name, rule_type, enabled, version, params, scope_tags,
			cooldown_secs, level, score_base, score_weights, raw_source)
		VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			rule_type = EXCLUDED.rule_type,
			enabled = EXCLUDED.enabled,
			version = CASE WHEN rule_def.raw_source IS DISTINCT FROM EXCLUDED.raw_source
				THEN rule_def.version + 1 ELSE rule_def.version END,
			params = EXCLUDED.params,
			scope_tags = EXCLUDED.scope_tags,
			cooldown_secs = EXCLUDED.cooldown_secs,
			level = EXCLUDED.level,
			score_base = EXCLUDED.score_base,
			score_weights = EXCLUDED.score_weights,
			raw_source = EXCLUDED.raw_source
		RETURNING rule_id, version
	`

	err = p.db.QueryRowContext(ctx, query,
		def.Name, def.Type, def.Enabled, params, pq.Array(def.ScopeTags),
		def.CooldownSecs, def.Level, def.ScoreBase, weights, def.RawYAML).
		Scan(&def.RuleID, &def.Version)
	if err != nil {
		return false, fmt.Errorf("upsert rule def: %w", err)
	}

	return def.Version > prevVersion && prevVersion > 0, nil
}

// ListRuleDefs returns all persisted rule definitions.
func (p *PostgresStore) ListRuleDefs(ctx context.Context) ([]types.RuleDefinition, error) {
	query := `
		SELECT rule_id, name, rule_type, enabled, version, params, scope_tags,
			cooldown_secs, level, score_base, score_weights, raw_source
		FROM rule_def
		ORDER BY rule_id
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rule defs: %w", err)
	}
	defer rows.Close()

	var defs []types.RuleDefinition
	for rows.Next() {
		var d types.RuleDefinition
		var params, weights []byte
		err = rows.Scan(&d.RuleID, &d.Name, &d.Type, &d.Enabled, &d.Version,
			&params, pq.Array(&d.ScopeTags), &d.CooldownSecs, &d.Level,
			&d.ScoreBase, &weights, &d.RawYAML)
		if err != nil {
			return nil, fmt.Errorf("scan rule def: %w", err)
		}
		if len(params) > 0 {
			if err = json.Unmarshal(params, &d.Params); err != nil {
				return nil, fmt.Errorf("unmarshal params: %w", err)
			}
		}
		if len(weights) > 0 {
			if err = json.Unmarshal(weights, &d.ScoreWeights); err != nil {
				return nil, fmt.Errorf("unmarshal score weights: %w", err)
			}
		}
		defs = append(defs, d)
	}

	return defs, rows.Err()
}

// InsertSignal stores an emitted signal.
func (p *PostgresStore) InsertSignal(ctx context.Context, sig *types.Signal) error {
	payload, err := types.EncodePayload(&sig.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	query := `
		INSERT INTO signal (signal_id, market_id, option_id, rule_id, level,
			score, edge_score, reason, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = p.db.ExecContext(ctx, query,
		sig.SignalID, sig.MarketID, sig.OptionID, sig.RuleID, sig.Level,
		sig.Score, sig.EdgeScore, sig.Reason, payload, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}

	p.logger.Debug("signal-stored",
		zap.String("signal-id", sig.SignalID),
		zap.String("market-id", sig.MarketID),
		zap.String("level", sig.Level))

	return nil
}

// GetSignal returns a signal by id or ErrNotFound.
func (p *PostgresStore) GetSignal(ctx context.Context, signalID string) (*types.Signal, error) {
	query := `
		SELECT signal_id, market_id, option_id, rule_id, level,
			score, edge_score, reason, payload, created_at
		FROM signal
		WHERE signal_id = $1
	`

	var sig types.Signal
	var payload []byte
	err := p.db.QueryRowContext(ctx, query, signalID).
		Scan(&sig.SignalID, &sig.MarketID, &sig.OptionID, &sig.RuleID, &sig.Level,
			&sig.Score, &sig.EdgeScore, &sig.Reason, &payload, &sig.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}

	sig.Payload, err = types.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	return &sig, nil
}

// ListSignals returns signals matching the filter, newest first.
func (p *PostgresStore) ListSignals(ctx context.Context, f SignalFilter) ([]types.Signal, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT s.signal_id, s.market_id, s.option_id, s.rule_id, s.level,
			s.score, s.edge_score, s.reason, s.payload, s.created_at
		FROM signal s
		JOIN rule_def r ON r.rule_id = s.rule_id
		WHERE ($1 = '' OR s.market_id = $1)
			AND ($2 = '' OR r.rule_type = $2)
			AND ($3 = '' OR s.level = $3)
			AND ($4::timestamptz IS NULL OR s.created_at >= $4)
		ORDER BY s.created_at DESC
		LIMIT $5
	`

	var since interface{}
	if !f.Since.IsZero() {
		since = f.Since
	}

	rows, err := p.db.QueryContext(ctx, query, f.MarketID, f.RuleType, f.Level, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var sigs []types.Signal
	for rows.Next() {
		var sig types.Signal
		var payload []byte
		err = rows.Scan(&sig.SignalID, &sig.MarketID, &sig.OptionID, &sig.RuleID, &sig.Level,
			&sig.Score, &sig.EdgeScore, &sig.Reason, &payload, &sig.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Payload, err = types.DecodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		sigs = append(sigs, sig)
	}

	return sigs, rows.Err()
}

// kpiAlpha is the smoothing factor of the exponentially-moving KPI
// averages: new_avg = avg + alpha * (value - avg).
const kpiAlpha = 0.2

// RecordKPI folds one signal into the per-day, per-rule-type rollup.
// avg_gap and est_edge_bps are exponentially-moving averages.
func (p *PostgresStore) RecordKPI(ctx context.Context, day, ruleType, level string, gap, edgeBPS float64) error {
	p1 := 0
	if level == types.LevelP1 {
		p1 = 1
	}

	query := `
		INSERT INTO rule_kpi_daily (day, rule_type, signals, p1_signals, avg_gap, est_edge_bps)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (day, rule_type) DO UPDATE SET
			signals = rule_kpi_daily.signals + 1,
			p1_signals = rule_kpi_daily.p1_signals + $3,
			avg_gap = rule_kpi_daily.avg_gap + $6 * ($4 - rule_kpi_daily.avg_gap),
			est_edge_bps = rule_kpi_daily.est_edge_bps + $6 * ($5 - rule_kpi_daily.est_edge_bps)
	`

	_, err := p.db.ExecContext(ctx, query, day, ruleType, p1, gap, edgeBPS, kpiAlpha)
	if err != nil {
		return fmt.Errorf("record kpi: %w", err)
	}

	return nil
}

// ListKPI returns daily rollups from fromDay (inclusive), newest first.
func (p *PostgresStore) ListKPI(ctx context.Context, fromDay string) ([]types.RuleKpiDaily, error) {
	query := `
		SELECT day, rule_type, signals, p1_signals, avg_gap, est_edge_bps
		FROM rule_kpi_daily
		WHERE day >= $1
		ORDER BY day DESC, rule_type
	`

	rows, err := p.db.QueryContext(ctx, query, fromDay)
	if err != nil {
		return nil, fmt.Errorf("list kpi: %w", err)
	}
	defer rows.Close()

	var out []types.RuleKpiDaily
	for rows.Next() {
		var k types.RuleKpiDaily
		err = rows.Scan(&k.Day, &k.RuleType, &k.Signals, &k.P1Signals, &k.AvgGap, &k.EstEdgeBPS)
		if err != nil {
			return nil, fmt.Errorf("scan kpi: %w", err)
		}
		out = append(out, k)
	}

	return out, rows.Err()
}

// ReplaceSynonymGroups swaps the full set of synonym groups in one transaction.
func (p *PostgresStore) ReplaceSynonymGroups(ctx context.Context, groups []types.SynonymGroup) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM synonym_group`)
	if err != nil {
		return fmt.Errorf("clear synonym groups: %w", err)
	}

	for i := range groups {
		g := &groups[i]
		err = tx.QueryRowContext(ctx,
			`INSERT INTO synonym_group (method, title, members) VALUES ($1, $2, $3) RETURNING group_id`,
			g.Method, g.Title, pq.Array(g.Members)).Scan(&g.GroupID)
		if err != nil {
			return fmt.Errorf("insert synonym group: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit synonym groups: %w", err)
	}

	return nil
}

// ListSynonymGroups returns all synonym groups.
func (p *PostgresStore) ListSynonymGroups(ctx context.Context) ([]types.SynonymGroup, error) {
	query := `SELECT group_id, method, title, members FROM synonym_group ORDER BY group_id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list synonym groups: %w", err)
	}
	defer rows.Close()

	var groups []types.SynonymGroup
	for rows.Next() {
		var g types.SynonymGroup
		err = rows.Scan(&g.GroupID, &g.Method, &g.Title, pq.Array(&g.Members))
		if err != nil {
			return nil, fmt.Errorf("scan synonym group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// ActivePolicy returns the enabled execution policy or ErrNotFound.
func (p *PostgresStore) ActivePolicy(ctx context.Context) (*types.ExecutionPolicy, error) {
	query := `
		SELECT policy_id, name, mode, max_notional_per_order, max_concurrent_orders,
			max_daily_notional, slippage_bps, enabled
		FROM execution_policy
		WHERE enabled = TRUE
		ORDER BY policy_id DESC
		LIMIT 1
	`

	var pol types.ExecutionPolicy
	err := p.db.QueryRowContext(ctx, query).
		Scan(&pol.PolicyID, &pol.Name, &pol.Mode, &pol.MaxNotionalPerOrder,
			&pol.MaxConcurrentOrders, &pol.MaxDailyNotional, &pol.SlippageBPS, &pol.Enabled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active policy: %w", err)
	}

	return &pol, nil
}

// UpsertPolicy inserts or updates an execution policy keyed by name.
func (p *PostgresStore) UpsertPolicy(ctx context.Context, pol *types.ExecutionPolicy) error {
	query := `
		INSERT INTO execution_policy (name, mode, max_notional_per_order,
			max_concurrent_orders, max_daily_notional, slippage_bps, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			mode = EXCLUDED.mode,
			max_notional_per_order = EXCLUDED.max_notional_per_order,
			max_concurrent_orders = EXCLUDED.max_concurrent_orders,
			max_daily_notional = EXCLUDED.max_daily_notional,
			slippage_bps = EXCLUDED.slippage_bps,
			enabled = EXCLUDED.enabled
		RETURNING policy_id
	`

	err := p.db.QueryRowContext(ctx, query,
		pol.Name, pol.Mode, pol.MaxNotionalPerOrder, pol.MaxConcurrentOrders,
		pol.MaxDailyNotional, pol.SlippageBPS, pol.Enabled).Scan(&pol.PolicyID)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}

	return nil
}

// CreateIntent persists a new order intent.
func (p *PostgresStore) CreateIntent(ctx context.Context, in *types.OrderIntent) error {
	detail, err := types.EncodeDetail(&in.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}

	query := `
		INSERT INTO order_intent (intent_id, signal_id, market_id, option_id, side,
			qty, limit_price, ttl_secs, status, policy_id, detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = p.db.ExecContext(ctx, query,
		in.IntentID, in.SignalID, in.MarketID, in.OptionID, in.Side,
		in.Qty, in.LimitPrice, in.TTLSecs, in.Status, in.PolicyID,
		detail, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}

	return nil
}

// GetIntent returns an intent by id or ErrNotFound.
func (p *PostgresStore) GetIntent(ctx context.Context, intentID string) (*types.OrderIntent, error) {
	query := `
		SELECT intent_id, signal_id, market_id, option_id, side, qty, limit_price,
			ttl_secs, status, policy_id, detail, created_at, updated_at
		FROM order_intent
		WHERE intent_id = $1
	`

	var in types.OrderIntent
	var detail []byte
	err := p.db.QueryRowContext(ctx, query, intentID).
		Scan(&in.IntentID, &in.SignalID, &in.MarketID, &in.OptionID, &in.Side,
			&in.Qty, &in.LimitPrice, &in.TTLSecs, &in.Status, &in.PolicyID,
			&detail, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent: %w", err)
	}

	in.Detail, err = types.DecodeDetail(detail)
	if err != nil {
		return nil, fmt.Errorf("decode detail: %w", err)
	}

	return &in, nil
}

// TransitionIntent moves an intent from one status to another as a
// compare-and-set. ErrStaleTransition means the intent was not in the
// expected source status; ErrNotFound means no such intent.
func (p *PostgresStore) TransitionIntent(ctx context.Context, intentID, from, to string, detail *types.IntentDetail) error {
	var detailJSON interface{}
	if detail != nil {
		raw, err := types.EncodeDetail(detail)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		detailJSON = raw
	}

	query := `
		UPDATE order_intent
		SET status = $3,
			detail = COALESCE($4, detail),
			updated_at = NOW()
		WHERE intent_id = $1 AND status = $2
	`

	res, err := p.db.ExecContext(ctx, query, intentID, from, to, detailJSON)
	if err != nil {
		return fmt.Errorf("transition intent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		_, getErr := p.GetIntent(ctx, intentID)
		if getErr != nil {
			return getErr
		}
		return ErrStaleTransition
	}

	p.logger.Debug("intent-transitioned",
		zap.String("intent-id", intentID),
		zap.String("from", from),
		zap.String("to", to))

	return nil
}

// ListIntents returns intents matching the filter, newest first.
func (p *PostgresStore) ListIntents(ctx context.Context, f IntentFilter) ([]types.OrderIntent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT intent_id, signal_id, market_id, option_id, side, qty, limit_price,
			ttl_secs, status, policy_id, detail, created_at, updated_at
		FROM order_intent
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, f.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []types.OrderIntent
	for rows.Next() {
		var in types.OrderIntent
		var detail []byte
		err = rows.Scan(&in.IntentID, &in.SignalID, &in.MarketID, &in.OptionID, &in.Side,
			&in.Qty, &in.LimitPrice, &in.TTLSecs, &in.Status, &in.PolicyID,
			&detail, &in.CreatedAt, &in.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		in.Detail, err = types.DecodeDetail(detail)
		if err != nil {
			return nil, fmt.Errorf("decode detail: %w", err)
		}
		intents = append(intents, in)
	}

	return intents, rows.Err()
}

// OpenIntentsCount counts intents in {suggested, sent} for one market.
func (p *PostgresStore) OpenIntentsCount(ctx context.Context, marketID string) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_intent WHERE market_id = $1 AND status IN ($2, $3)`,
		marketID, types.IntentSuggested, types.IntentSent).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("open intents count: %w", err)
	}
	return n, nil
}

// DailyFilledNotional sums qty*fill_price of intents filled on the given
// UTC day. The limit price stands in when no fill price was recorded.
func (p *PostgresStore) DailyFilledNotional(ctx context.Context, day string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(qty * COALESCE((detail->>'fill_price')::double precision, limit_price)), 0)
		FROM order_intent
		WHERE status = $1 AND DATE(updated_at AT TIME ZONE 'UTC') = $2::date
	`

	var total float64
	err := p.db.QueryRowContext(ctx, query, types.IntentFilled, day).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("daily filled notional: %w", err)
	}
	return total, nil
}

// InsertAudit appends an audit log entry.
func (p *PostgresStore) InsertAudit(ctx context.Context, e *types.AuditEntry) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO audit_log (actor, action, target_id, meta, at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = p.db.ExecContext(ctx, query, e.Actor, e.Action, e.TargetID, meta, e.At)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-store")
	return p.db.Close()
}
