package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// MemoryStore is an in-memory Store for local runs and tests.
// It mirrors PostgresStore semantics including the intent CAS.
type MemoryStore struct {
	mu sync.RWMutex

	logger *zap.Logger

	markets  map[string]types.Market
	options  map[string]types.Option
	ticks    map[string][]types.Tick // keyed by market id, append order
	tickKeys map[tickKey]struct{}

	ruleDefs   map[string]types.RuleDefinition // keyed by name
	nextRuleID int64

	signals []types.Signal
	kpi     map[string]*kpiAccum // keyed by day|rule_type

	synGroups   []types.SynonymGroup
	nextGroupID int64

	policies     map[string]types.ExecutionPolicy // keyed by name
	nextPolicyID int64

	intents map[string]types.OrderIntent
	audits  []types.AuditEntry
}

type tickKey struct {
	ts       int64
	marketID string
	optionID string
}

type kpiAccum struct {
	day       string
	ruleType  string
	signals   int64
	p1Signals int64
	avgGap    float64
	edgeBPS   float64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:   logger,
		markets:  make(map[string]types.Market),
		options:  make(map[string]types.Option),
		ticks:    make(map[string][]types.Tick),
		tickKeys: make(map[tickKey]struct{}),
		ruleDefs: make(map[string]types.RuleDefinition),
		kpi:      make(map[string]*kpiAccum),
		policies: make(map[string]types.ExecutionPolicy),
		intents:  make(map[string]types.OrderIntent),
	}
}

// UpsertMarket inserts or updates a market.
func (s *MemoryStore) UpsertMarket(_ context.Context, m *types.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.MarketID] = *m
	return nil
}

// UpsertOptions inserts or updates options.
func (s *MemoryStore) UpsertOptions(_ context.Context, opts []types.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opts {
		s.options[o.OptionID] = o
	}
	return nil
}

// ListMarkets returns markets, optionally filtered by status, ordered by id.
func (s *MemoryStore) ListMarkets(_ context.Context, status string) ([]types.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Market
	for _, m := range s.markets {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// GetMarket returns a market or ErrNotFound.
func (s *MemoryStore) GetMarket(_ context.Context, marketID string) (*types.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// ListOptions returns the options of a market ordered by id.
func (s *MemoryStore) ListOptions(_ context.Context, marketID string) ([]types.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Option
	for _, o := range s.options {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionID < out[j].OptionID })
	return out, nil
}

// InsertTicks appends ticks, skipping duplicate composite keys.
func (s *MemoryStore) InsertTicks(_ context.Context, ticks []types.Tick) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, t := range ticks {
		key := tickKey{ts: t.TS.UnixNano(), marketID: t.MarketID, optionID: t.OptionID}
		if _, dup := s.tickKeys[key]; dup {
			continue
		}
		s.tickKeys[key] = struct{}{}
		s.ticks[t.MarketID] = append(s.ticks[t.MarketID], t)
		inserted++
	}
	return inserted, nil
}

// LatestTicks returns the most recent tick per option of a market.
func (s *MemoryStore) LatestTicks(_ context.Context, marketID string) ([]types.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]types.Tick)
	for _, t := range s.ticks[marketID] {
		prev, ok := latest[t.OptionID]
		if !ok || t.TS.After(prev.TS) {
			latest[t.OptionID] = t
		}
	}

	var out []types.Tick
	for _, t := range latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionID < out[j].OptionID })
	return out, nil
}

// RecentTicks returns ticks for one option since the given time, oldest first.
func (s *MemoryStore) RecentTicks(_ context.Context, marketID, optionID string, since time.Time) ([]types.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Tick
	for _, t := range s.ticks[marketID] {
		if t.OptionID == optionID && !t.TS.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

// UpsertRuleDef inserts or updates a rule definition keyed by name,
// bumping the version when the raw source changed.
func (s *MemoryStore) UpsertRuleDef(_ context.Context, def *types.RuleDefinition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ruleDefs[def.Name]
	if !ok {
		s.nextRuleID++
		def.RuleID = s.nextRuleID
		def.Version = 1
		s.ruleDefs[def.Name] = *def
		return false, nil
	}

	def.RuleID = existing.RuleID
	bumped := existing.RawYAML != def.RawYAML
	if bumped {
		def.Version = existing.Version + 1
	} else {
		def.Version = existing.Version
	}
	s.ruleDefs[def.Name] = *def
	return bumped, nil
}

// ListRuleDefs returns all rule definitions ordered by id.
func (s *MemoryStore) ListRuleDefs(_ context.Context) ([]types.RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.RuleDefinition
	for _, d := range s.ruleDefs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

// InsertSignal stores an emitted signal.
func (s *MemoryStore) InsertSignal(_ context.Context, sig *types.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, *sig)
	return nil
}

// GetSignal returns a signal by id or ErrNotFound.
func (s *MemoryStore) GetSignal(_ context.Context, signalID string) (*types.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.signals {
		if s.signals[i].SignalID == signalID {
			sig := s.signals[i]
			return &sig, nil
		}
	}
	return nil, ErrNotFound
}

// ListSignals returns signals matching the filter, newest first.
func (s *MemoryStore) ListSignals(_ context.Context, f SignalFilter) ([]types.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []types.Signal
	for i := len(s.signals) - 1; i >= 0 && len(out) < limit; i-- {
		sig := s.signals[i]
		if f.MarketID != "" && sig.MarketID != f.MarketID {
			continue
		}
		if f.RuleType != "" && sig.Payload.RuleType != f.RuleType {
			continue
		}
		if f.Level != "" && sig.Level != f.Level {
			continue
		}
		if !f.Since.IsZero() && sig.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// RecordKPI folds one signal into the per-day, per-rule-type rollup.
// avg_gap and est_edge_bps are exponentially-moving averages.
func (s *MemoryStore) RecordKPI(_ context.Context, day, ruleType, level string, gap, edgeBPS float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := day + "|" + ruleType
	acc, ok := s.kpi[key]
	if !ok {
		acc = &kpiAccum{day: day, ruleType: ruleType, avgGap: gap, edgeBPS: edgeBPS}
		s.kpi[key] = acc
	} else {
		acc.avgGap += kpiAlpha * (gap - acc.avgGap)
		acc.edgeBPS += kpiAlpha * (edgeBPS - acc.edgeBPS)
	}
	acc.signals++
	if level == types.LevelP1 {
		acc.p1Signals++
	}
	return nil
}

// ListKPI returns daily rollups from fromDay (inclusive), newest first.
func (s *MemoryStore) ListKPI(_ context.Context, fromDay string) ([]types.RuleKpiDaily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.RuleKpiDaily
	for _, acc := range s.kpi {
		if acc.day < fromDay {
			continue
		}
		out = append(out, types.RuleKpiDaily{
			Day:        acc.day,
			RuleType:   acc.ruleType,
			Signals:    acc.signals,
			P1Signals:  acc.p1Signals,
			AvgGap:     acc.avgGap,
			EstEdgeBPS: acc.edgeBPS,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day > out[j].Day
		}
		return out[i].RuleType < out[j].RuleType
	})
	return out, nil
}

// ReplaceSynonymGroups swaps the full set of synonym groups.
func (s *MemoryStore) ReplaceSynonymGroups(_ context.Context, groups []types.SynonymGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.synGroups = s.synGroups[:0]
	for i := range groups {
		s.nextGroupID++
		groups[i].GroupID = s.nextGroupID
		s.synGroups = append(s.synGroups, groups[i])
	}
	return nil
}

// ListSynonymGroups returns all synonym groups.
func (s *MemoryStore) ListSynonymGroups(_ context.Context) ([]types.SynonymGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SynonymGroup, len(s.synGroups))
	copy(out, s.synGroups)
	return out, nil
}

// ActivePolicy returns the enabled policy with the highest id or ErrNotFound.
func (s *MemoryStore) ActivePolicy(_ context.Context) (*types.ExecutionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.ExecutionPolicy
	for name := range s.policies {
		p := s.policies[name]
		if !p.Enabled {
			continue
		}
		if best == nil || p.PolicyID > best.PolicyID {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// UpsertPolicy inserts or updates a policy keyed by name.
func (s *MemoryStore) UpsertPolicy(_ context.Context, p *types.ExecutionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[p.Name]
	if ok {
		p.PolicyID = existing.PolicyID
	} else {
		s.nextPolicyID++
		p.PolicyID = s.nextPolicyID
	}
	s.policies[p.Name] = *p
	return nil
}

// CreateIntent persists a new order intent.
func (s *MemoryStore) CreateIntent(_ context.Context, in *types.OrderIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[in.IntentID] = *in
	return nil
}

// GetIntent returns an intent by id or ErrNotFound.
func (s *MemoryStore) GetIntent(_ context.Context, intentID string) (*types.OrderIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.intents[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &in, nil
}

// TransitionIntent moves an intent between statuses as a compare-and-set.
func (s *MemoryStore) TransitionIntent(_ context.Context, intentID, from, to string, detail *types.IntentDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[intentID]
	if !ok {
		return ErrNotFound
	}
	if in.Status != from {
		return ErrStaleTransition
	}

	in.Status = to
	if detail != nil {
		in.Detail = *detail
	}
	in.UpdatedAt = time.Now().UTC()
	s.intents[intentID] = in
	return nil
}

// ListIntents returns intents matching the filter, newest first.
func (s *MemoryStore) ListIntents(_ context.Context, f IntentFilter) ([]types.OrderIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []types.OrderIntent
	for _, in := range s.intents {
		if f.Status != "" && in.Status != f.Status {
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OpenIntentsCount counts intents in {suggested, sent} for one market.
func (s *MemoryStore) OpenIntentsCount(_ context.Context, marketID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, in := range s.intents {
		if in.MarketID != marketID {
			continue
		}
		if in.Status == types.IntentSuggested || in.Status == types.IntentSent {
			n++
		}
	}
	return n, nil
}

// DailyFilledNotional sums qty*fill_price of intents filled on the given
// UTC day. The limit price stands in when no fill price was recorded.
func (s *MemoryStore) DailyFilledNotional(_ context.Context, day string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, in := range s.intents {
		if in.Status != types.IntentFilled {
			continue
		}
		if in.UpdatedAt.UTC().Format("2006-01-02") != day {
			continue
		}
		price := in.Detail.FillPrice
		if price == 0 {
			price = in.LimitPrice
		}
		total += in.Qty * price
	}
	return total, nil
}

// InsertAudit appends an audit log entry.
func (s *MemoryStore) InsertAudit(_ context.Context, e *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = int64(len(s.audits) + 1)
	s.audits = append(s.audits, *e)
	return nil
}

// AuditEntries returns a copy of the audit log. Test helper.
func (s *MemoryStore) AuditEntries() []types.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AuditEntry, len(s.audits))
	copy(out, s.audits)
	return out
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	if s.logger != nil {
		s.logger.Info("closing-memory-store")
	}
	return nil
}
