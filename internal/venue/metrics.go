package venue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_venue_requests_total",
		Help: "Total number of venue API requests",
	}, []string{"endpoint"})

	RequestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_venue_request_errors_total",
		Help: "Total number of failed venue API requests",
	}, []string{"endpoint"})

	StreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_venue_stream_reconnects_total",
		Help: "Total number of websocket stream reconnections",
	})

	StreamMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpx_venue_stream_messages_total",
		Help: "Total number of websocket book messages received",
	})
)
