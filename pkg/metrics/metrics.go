package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brainy_nodes_total",
			Help: "Total number of nodes by role and status",
		},
		[]string{"role", "status"},
	)

	ShardsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_shards_total",
			Help: "Total number of shards in the cluster",
		},
	)

	NounsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brainy_nouns_total",
			Help: "Total number of nouns by noun type",
		},
		[]string{"noun_type"},
	)

	VerbsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brainy_verbs_total",
			Help: "Total number of verbs by verb type",
		},
		[]string{"verb_type"},
	)

	TombstonesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_tombstones_total",
			Help: "Total number of soft-deleted entities pending cleanup",
		},
	)

	// Raft / consensus metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brainy_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brainy_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brainy_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// HNSW / search metrics
	SearchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brainy_search_latency_seconds",
			Help:    "Time taken to serve a search query in seconds, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SearchRecallEstimate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_search_recall_estimate",
			Help: "Rolling estimate of HNSW recall@k on sampled queries",
		},
	)

	InsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brainy_inserts_total",
			Help: "Total number of HNSW insert operations by outcome",
		},
		[]string{"outcome"},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brainy_cache_hits_total",
			Help: "Total cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brainy_cache_misses_total",
			Help: "Total cache misses across all tiers",
		},
	)

	CacheHotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brainy_cache_hot_size",
			Help: "Current number of entries in the hot cache tier",
		},
	)

	// Shard migration metrics
	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brainy_migrations_total",
			Help: "Total number of shard migrations by outcome",
		},
		[]string{"outcome"},
	)

	MigrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brainy_migration_duration_seconds",
			Help:    "Time taken to complete a shard migration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Cleanup / reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brainy_cleanup_duration_seconds",
			Help:    "Time taken for a cleanup cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brainy_cleanup_cycles_total",
			Help: "Total number of cleanup cycles completed",
		},
	)

	EntitiesPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brainy_entities_purged_total",
			Help: "Total number of tombstoned entities physically removed",
		},
	)

	// Replication metrics
	ReplicationLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brainy_replication_lag_seconds",
			Help: "Replication lag observed by a replica, by shard",
		},
		[]string{"shard"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		ShardsTotal,
		NounsTotal,
		VerbsTotal,
		TombstonesTotal,
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftApplyDuration,
		APIRequestsTotal,
		APIRequestDuration,
		SearchLatency,
		SearchRecallEstimate,
		InsertsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheHotSize,
		MigrationsTotal,
		MigrationDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		EntitiesPurgedTotal,
		ReplicationLagSeconds,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
