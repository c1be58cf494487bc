package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossiersync_pages_fetched_total",
		Help: "Pages fetched from the provider",
	})

	recordsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossiersync_records_processed_total",
		Help: "Records attempted across all sessions",
	})

	recordWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossiersync_record_write_errors_total",
		Help: "Individual record writes that failed after retries",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dossiersync_sessions_total",
		Help: "Sessions by terminal state",
	}, []string{"state"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dossiersync_session_duration_seconds",
		Help:    "Wall-clock duration of sessions",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)
