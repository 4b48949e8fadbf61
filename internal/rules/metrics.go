package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RuleEvalMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mpx_rule_eval_ms",
		Help:    "Rule evaluation cycle duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_signals_total",
		Help: "Total number of signals emitted",
	}, []string{"rule"})

	CooldownSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_rule_cooldown_skips_total",
		Help: "Total number of rule-market evaluations skipped by cooldown",
	})

	BreakerSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_rule_breaker_skips_total",
		Help: "Total number of rule-market evaluations skipped by an open breaker",
	})

	BreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_rule_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	})

	RuleReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_rule_reloads_total",
		Help: "Total number of rule definition reloads",
	})
)
