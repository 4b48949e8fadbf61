package healthprobe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	HealthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mpx_health",
		Help: "Application readiness (1 ready, 0 not ready)",
	})
)
