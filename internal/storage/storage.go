package storage

import (
	"context"
	"errors"
	"time"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Sentinel errors shared by all Store implementations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleTransition is returned by TransitionIntent when the intent
	// is not in the expected source status.
	ErrStaleTransition = errors.New("stale intent transition")
)

// SignalFilter narrows ListSignals results. Zero values mean "no filter".
type SignalFilter struct {
	MarketID string
	RuleType string
	Level    string
	Since    time.Time
	Limit    int
}

// IntentFilter narrows ListIntents results. Zero values mean "no filter".
type IntentFilter struct {
	Status string
	Limit  int
}

// Store is the persistence interface for the whole application.
type Store interface {
	// Markets and options.
	UpsertMarket(ctx context.Context, m *types.Market) error
	UpsertOptions(ctx context.Context, opts []types.Option) error
	ListMarkets(ctx context.Context, status string) ([]types.Market, error)
	GetMarket(ctx context.Context, marketID string) (*types.Market, error)
	ListOptions(ctx context.Context, marketID string) ([]types.Option, error)

	// Ticks. InsertTicks is append-only; duplicate (ts, market, option)
	// keys are ignored.
	InsertTicks(ctx context.Context, ticks []types.Tick) (int, error)
	LatestTicks(ctx context.Context, marketID string) ([]types.Tick, error)
	RecentTicks(ctx context.Context, marketID, optionID string, since time.Time) ([]types.Tick, error)

	// Rule definitions. UpsertRuleDef bumps the version when the raw
	// source changed and reports whether a bump happened.
	UpsertRuleDef(ctx context.Context, def *types.RuleDefinition) (bumped bool, err error)
	ListRuleDefs(ctx context.Context) ([]types.RuleDefinition, error)

	// Signals.
	InsertSignal(ctx context.Context, sig *types.Signal) error
	GetSignal(ctx context.Context, signalID string) (*types.Signal, error)
	ListSignals(ctx context.Context, f SignalFilter) ([]types.Signal, error)

	// Daily KPI rollups.
	RecordKPI(ctx context.Context, day, ruleType string, level string, gap, edgeBPS float64) error
	ListKPI(ctx context.Context, fromDay string) ([]types.RuleKpiDaily, error)

	// Synonym groups.
	ReplaceSynonymGroups(ctx context.Context, groups []types.SynonymGroup) error
	ListSynonymGroups(ctx context.Context) ([]types.SynonymGroup, error)

	// Execution policies.
	ActivePolicy(ctx context.Context) (*types.ExecutionPolicy, error)
	UpsertPolicy(ctx context.Context, p *types.ExecutionPolicy) error

	// Order intents. TransitionIntent is a compare-and-set on status.
	CreateIntent(ctx context.Context, in *types.OrderIntent) error
	GetIntent(ctx context.Context, intentID string) (*types.OrderIntent, error)
	TransitionIntent(ctx context.Context, intentID, from, to string, detail *types.IntentDetail) error
	ListIntents(ctx context.Context, f IntentFilter) ([]types.OrderIntent, error)
	// OpenIntentsCount counts intents in {suggested, sent} for one market.
	OpenIntentsCount(ctx context.Context, marketID string) (int64, error)
	DailyFilledNotional(ctx context.Context, day string) (float64, error)

	// Audit log.
	InsertAudit(ctx context.Context, e *types.AuditEntry) error

	// Close closes the storage connection.
	Close() error
}
