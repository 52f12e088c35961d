package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MatchingRuns counts orchestrator runs by trigger source (periodic, application,
// offer, sweep, api).
var MatchingRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lendmatch_matching_runs_total",
		Help: "Total number of matching runs executed by the engine",
	},
	[]string{"trigger"},
)

// MatchedPairs counts successfully originated application/offer pairs.
var MatchedPairs = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lendmatch_matched_pairs_total",
		Help: "Total number of loan application/offer pairs originated",
	},
)

// RunErrors counts per-application errors recorded during runs, by error kind.
var RunErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lendmatch_run_errors_total",
		Help: "Total number of per-application errors recorded during matching runs",
	},
	[]string{"kind"},
)

// RunDuration records latency distribution for whole matching runs.
var RunDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "lendmatch_run_duration_seconds",
		Help:    "Duration in seconds of matching runs",
		Buckets: prometheus.DefBuckets,
	},
)

// QueueDepth tracks the number of pending trigger tasks in the match queue.
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "lendmatch_queue_depth",
		Help: "Number of pending trigger tasks in the match queue",
	},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendmatch_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendmatch_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendmatch_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(MatchingRuns, MatchedPairs, RunErrors, RunDuration, QueueDepth)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
