package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dossiersync_api_requests_total",
		Help: "Provider API requests by outcome",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dossiersync_page_fetch_duration_seconds",
		Help:    "Duration of page fetch requests",
		Buckets: prometheus.DefBuckets,
	})

	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossiersync_fetch_retries_total",
		Help: "Page fetch retry attempts",
	})
)
