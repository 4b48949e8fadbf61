package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_alerts_sent_total",
		Help: "Total number of alerts delivered",
	}, []string{"transport"})

	AlertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_alert_failures_total",
		Help: "Total number of alert delivery failures",
	})

	AlertsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_alerts_deduped_total",
		Help: "Total number of alerts suppressed as duplicates",
	})
)
