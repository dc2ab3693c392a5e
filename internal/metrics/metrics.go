package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pair metrics
	PairCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zap_pair_count",
		Help: "Total number of pairs known to the pool contract",
	})

	ReadyPairCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zap_ready_pair_count",
		Help: "Number of pairs with both legs seeded",
	})

	PairLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_pair_lookups_total",
			Help: "Total number of pair lookups",
		},
		[]string{"status"},
	)

	// Split metrics
	SplitIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zap_split_iterations",
		Help:    "Number of binary search iterations per split",
		Buckets: []float64{1, 2, 3, 5, 7, 10, 15, 20},
	})

	SplitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zap_split_duration_seconds",
		Help:    "Split optimization duration in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// Orchestration metrics
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_runs_total",
			Help: "Total number of orchestration runs",
		},
		[]string{"instruction", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zap_run_duration_seconds",
			Help:    "Orchestration run duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"instruction"},
	)

	RunFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_run_failures_total",
			Help: "Total number of aborted runs by error kind",
		},
		[]string{"instruction", "kind"},
	)

	StepsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_steps_executed_total",
		Help: "Total number of queued steps executed",
	})

	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_rollbacks_total",
		Help: "Total number of units of work rolled back",
	})

	InvariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_invariant_violations_total",
			Help: "Total number of balance guard failures",
		},
		[]string{"phase"},
	)

	IgnoredTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_ignored_transfers_total",
			Help: "Inbound transfers ignored by the routing account",
		},
		[]string{"reason"},
	)

	Flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_flushes_total",
			Help: "Total number of balance sweeps",
		},
		[]string{"tag"},
	)

	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zap_journal_errors_total",
		Help: "Total number of receipts that failed to persist",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zap_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zap_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Persistence
	SnapshotDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zap_snapshot_duration_seconds",
		Help: "Duration of the last state snapshot",
	})
)
