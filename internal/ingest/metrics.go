package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	IngestLatencyMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpx_ingest_latency_ms",
		Help:    "Ingestion cycle duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"source"})

	LastTickTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mpx_ingest_last_tick_timestamp",
		Help: "Unix timestamp of the most recently persisted tick",
	}, []string{"source"})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_ingest_cycles_total",
		Help: "Total number of completed ingestion cycles",
	}, []string{"source"})

	CyclesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_ingest_cycles_skipped_total",
		Help: "Total number of cycles skipped because the previous one was still running",
	}, []string{"source"})

	TicksInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_ingest_ticks_inserted_total",
		Help: "Total number of ticks persisted",
	}, []string{"source"})

	DedupDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_ingest_dedup_dropped_total",
		Help: "Total number of ticks suppressed by deduplication",
	}, []string{"reason"})

	FetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpx_ingest_fetch_errors_total",
		Help: "Total number of failed market fetches after retries",
	}, []string{"source"})
)
