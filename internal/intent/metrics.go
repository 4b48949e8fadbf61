package intent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	OrderIntentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_order_intents_total",
		Help: "Total number of order intents by resulting status",
	}, []string{"status"})

	RiskRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_risk_rejections_total",
		Help: "Total number of risk check rejections by reason",
	}, []string{"reason"})
)
