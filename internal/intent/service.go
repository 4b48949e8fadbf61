package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/rules"
	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// Service errors surfaced to the API layer.
var (
	// ErrLevelNotActionable rejects intent creation from P3 signals.
	ErrLevelNotActionable = errors.New("signal level not actionable")

	// ErrNotConfirmable rejects confirmation of non-suggested intents.
	ErrNotConfirmable = errors.New("intent not in suggested status")
)

// Service runs the order intent pipeline: create from a signal, confirm
// through the risk gauntlet, then execute. In mock mode execution is an
// immediate fill at the reference price.
type Service struct {
	store   storage.Store
	breaker *rules.Breaker
	logger  *zap.Logger

	mode       string
	defaultQty float64
	defaultTTL int64

	now func() time.Time
}

// ServiceConfig holds Service configuration.
type ServiceConfig struct {
	Store storage.Store
	// Breaker gates confirmation on the originating rule-market pair.
	// Nil skips the breaker check.
	Breaker *rules.Breaker
	Logger  *zap.Logger

	// Mode is the execution policy mode; anything but auto keeps the
	// operator in the loop and mock-fills on confirm.
	Mode       string
	DefaultQty float64
	// DefaultTTLSecs applies when a create request carries no TTL.
	DefaultTTLSecs int64

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewService creates an intent service.
func NewService(cfg *ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      cfg.Store,
		breaker:    cfg.Breaker,
		logger:     cfg.Logger,
		mode:       cfg.Mode,
		defaultQty: cfg.DefaultQty,
		defaultTTL: cfg.DefaultTTLSecs,
		now:        now,
	}
}

// CreateRequest is the operator's intent creation request. Zero Qty and
// TTLSecs fall back to the service defaults.
type CreateRequest struct {
	SignalID string  `json:"signal_id"`
	Qty      float64 `json:"qty,omitempty"`
	TTLSecs  int64   `json:"ttl_secs,omitempty"`
}

// Create builds a suggested intent from an actionable signal. Only P1
// and P2 signals qualify.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*types.OrderIntent, error) {
	sig, err := s.store.GetSignal(ctx, req.SignalID)
	if err != nil {
		return nil, err
	}

	if sig.Level != types.LevelP1 && sig.Level != types.LevelP2 {
		return nil, fmt.Errorf("%w: signal %s is %s", ErrLevelNotActionable, sig.SignalID, sig.Level)
	}

	policy, err := s.store.ActivePolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active policy: %w", err)
	}

	qty := req.Qty
	if qty <= 0 {
		qty = s.defaultQty
	}
	ttl := req.TTLSecs
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	plan, err := rules.BuildPlan(sig, qty, policy.SlippageBPS)
	if err != nil {
		return nil, fmt.Errorf("build trade plan: %w", err)
	}

	now := s.now()
	first := plan.Legs[0]
	in := &types.OrderIntent{
		IntentID:   uuid.NewString(),
		SignalID:   sig.SignalID,
		MarketID:   sig.MarketID,
		OptionID:   first.OptionID,
		Side:       first.Side,
		Qty:        qty,
		LimitPrice: first.LimitPrice,
		TTLSecs:    ttl,
		Status:     types.IntentSuggested,
		PolicyID:   policy.PolicyID,
		Detail: types.IntentDetail{
			Plan:            plan,
			PayloadSnapshot: &sig.Payload,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.CreateIntent(ctx, in)
	if err != nil {
		return nil, err
	}

	OrderIntentsTotal.WithLabelValues(types.IntentSuggested).Inc()
	s.audit(ctx, "operator", "intent_created", in.IntentID, map[string]string{
		"signal_id": sig.SignalID,
		"market_id": sig.MarketID,
	})

	s.logger.Info("intent-created",
		zap.String("intent-id", in.IntentID),
		zap.String("signal-id", sig.SignalID),
		zap.String("market-id", sig.MarketID),
		zap.Int("legs", len(plan.Legs)))
	return in, nil
}

// Confirm moves a suggested intent through TTL and risk checks, then
// executes it. The returned intent reflects the final status.
func (s *Service) Confirm(ctx context.Context, intentID, actor string) (*types.OrderIntent, error) {
	in, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	// Confirming an already-settled intent is a no-op.
	if types.TerminalIntentStatus(in.Status) {
		return in, nil
	}
	if in.Status != types.IntentSuggested {
		return nil, fmt.Errorf("%w: intent %s is %s", ErrNotConfirmable, intentID, in.Status)
	}

	now := s.now()
	if in.Expired(now) {
		err = s.store.TransitionIntent(ctx, intentID, types.IntentSuggested, types.IntentExpired, nil)
		if err != nil {
			return nil, err
		}
		OrderIntentsTotal.WithLabelValues(types.IntentExpired).Inc()
		s.audit(ctx, actor, "intent_expired", intentID, nil)
		s.logger.Info("intent-expired", zap.String("intent-id", intentID))
		return s.store.GetIntent(ctx, intentID)
	}

	policy, err := s.store.ActivePolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active policy: %w", err)
	}

	checks, err := s.runChecks(ctx, in, policy, now)
	if err != nil {
		return nil, fmt.Errorf("risk checks: %w", err)
	}

	detail := in.Detail
	detail.Checks = checks

	if !checks.Approved {
		err = s.store.TransitionIntent(ctx, intentID, types.IntentSuggested, types.IntentRejected, &detail)
		if err != nil {
			return nil, err
		}
		OrderIntentsTotal.WithLabelValues(types.IntentRejected).Inc()
		s.audit(ctx, actor, "intent_rejected", intentID, map[string]string{
			"reasons": fmt.Sprintf("%v", checks.Reasons),
		})
		s.logger.Info("intent-rejected",
			zap.String("intent-id", intentID),
			zap.Strings("reasons", checks.Reasons))
		return s.store.GetIntent(ctx, intentID)
	}

	err = s.store.TransitionIntent(ctx, intentID, types.IntentSuggested, types.IntentSent, &detail)
	if err != nil {
		return nil, err
	}
	OrderIntentsTotal.WithLabelValues(types.IntentSent).Inc()
	s.audit(ctx, actor, "intent_sent", intentID, nil)

	if s.mode != types.ModeAuto {
		return s.mockFill(ctx, in, detail, actor)
	}
	return s.store.GetIntent(ctx, intentID)
}

// mockFill completes a sent intent immediately at the reference price.
func (s *Service) mockFill(ctx context.Context, in *types.OrderIntent, detail types.IntentDetail, actor string) (*types.OrderIntent, error) {
	fillPrice := in.LimitPrice
	if detail.Plan != nil && len(detail.Plan.Legs) > 0 {
		fillPrice = detail.Plan.Legs[0].ReferencePrice
	}
	detail.FillPrice = fillPrice

	err := s.store.TransitionIntent(ctx, in.IntentID, types.IntentSent, types.IntentFilled, &detail)
	if err != nil {
		return nil, err
	}

	OrderIntentsTotal.WithLabelValues(types.IntentFilled).Inc()
	s.audit(ctx, actor, "intent_filled", in.IntentID, map[string]string{
		"fill_price": fmt.Sprintf("%.4f", fillPrice),
	})
	s.logger.Info("intent-filled",
		zap.String("intent-id", in.IntentID),
		zap.Float64("fill-price", fillPrice))
	return s.store.GetIntent(ctx, in.IntentID)
}

// ExpireStale sweeps suggested intents whose TTL elapsed. Called
// periodically so stale suggestions do not hold concurrency slots.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	suggested, err := s.store.ListIntents(ctx, storage.IntentFilter{Status: types.IntentSuggested})
	if err != nil {
		return 0, err
	}

	now := s.now()
	expired := 0
	for i := range suggested {
		if !suggested[i].Expired(now) {
			continue
		}
		err = s.store.TransitionIntent(ctx, suggested[i].IntentID, types.IntentSuggested, types.IntentExpired, nil)
		if err != nil {
			if errors.Is(err, storage.ErrStaleTransition) {
				continue
			}
			return expired, err
		}
		OrderIntentsTotal.WithLabelValues(types.IntentExpired).Inc()
		expired++
	}

	if expired > 0 {
		s.logger.Info("stale-intents-expired", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) audit(ctx context.Context, actor, action, targetID string, meta map[string]string) {
	err := s.store.InsertAudit(ctx, &types.AuditEntry{
		Actor:    actor,
		Action:   action,
		TargetID: targetID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit-write-failed", zap.String("target-id", targetID), zap.Error(err))
	}
}
