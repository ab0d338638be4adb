package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WritesTotal tracks Write calls by outcome (written, failed, skipped)
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exlog_writes_total",
			Help: "Total number of exception writes by result",
		},
		[]string{"result"},
	)

	// WriteLatency tracks end-to-end Write latency
	WriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exlog_write_latency_seconds",
			Help:    "Exception write latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// ChainDepth tracks how many nodes each written error chain had
	ChainDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exlog_chain_depth",
			Help:    "Number of errors in each written chain",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
	)

	// StoreRoundTrips tracks store round trips per operation
	StoreRoundTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exlog_store_round_trips_total",
			Help: "Total number of store round trips",
		},
		[]string{"driver", "op"},
	)

	// StoreErrors tracks failed store round trips per operation and class
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exlog_store_errors_total",
			Help: "Total number of failed store round trips",
		},
		[]string{"driver", "op", "class"},
	)

	// StoreLatency tracks store round trip latency
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exlog_store_latency_seconds",
			Help:    "Store round trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "op"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool limit
	DBConnectionPoolUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exlog_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of max open connections",
		},
		[]string{"driver"},
	)

	// BreakerUnavailable is 1 while the store is considered unreachable
	BreakerUnavailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exlog_breaker_unavailable",
			Help: "1 while store writes are being skipped",
		},
	)

	// BreakerTrips counts transitions to unavailable
	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exlog_breaker_trips_total",
			Help: "Total number of times the store was marked unavailable",
		},
	)

	// HeaderCollectionsSkipped counts header collections already stored in full
	HeaderCollectionsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exlog_header_collections_skipped_total",
			Help: "Header collections whose entries were already stored",
		},
	)

	// FailoverReports tracks failover emissions per sink
	FailoverReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exlog_failover_reports_total",
			Help: "Total number of failover reports by sink and result",
		},
		[]string{"sink", "result"},
	)
)
