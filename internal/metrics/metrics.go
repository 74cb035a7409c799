package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector outcome labels.
const (
	OutcomeStored     = "stored"
	OutcomeMalformed  = "malformed"
	OutcomeStoreError = "store_error"
	OutcomeReadError  = "read_error"
)

var (
	// Front-end metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_frontend_requests_total",
			Help: "Total number of HTTP requests handled by the front-end",
		},
		[]string{"method", "status"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formrelay_ratelimit_hits_total",
			Help: "Total number of submissions rejected by the rate limiter",
		},
	)

	// Relay metrics
	RelayDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_relay_datagrams_total",
			Help: "Total number of datagrams the front-end tried to relay",
		},
		[]string{"status"},
	)

	RelayBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formrelay_relay_bytes_total",
			Help: "Total bytes of form data relayed to the collector",
		},
	)

	// Collector metrics
	CollectorDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_collector_datagrams_total",
			Help: "Total number of datagrams received by the collector, by outcome",
		},
		[]string{"outcome"},
	)

	StoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formrelay_collector_store_duration_seconds",
			Help:    "Duration of store read-modify-write cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formrelay_store_entries",
			Help: "Number of entries in the store after the last successful write",
		},
	)
)
