// Package metrics holds the prometheus collectors of the service. Every
// method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports
type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheSwept     *prometheus.CounterVec

	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram

	eventsPublished *prometheus.CounterVec
	eventsReceived  *prometheus.CounterVec

	distributedFailures *prometheus.CounterVec
	mutations           *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_cache_hits_total",
			Help: "Local cache reads served from memory",
		}, []string{"kind"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_cache_misses_total",
			Help: "Local cache reads that were absent or expired",
		}, []string{"kind"}),
		cacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_cache_evictions_total",
			Help: "Entries removed by capacity eviction",
		}, []string{"kind"}),
		cacheSwept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_cache_swept_total",
			Help: "Expired entries removed by the background sweep",
		}, []string{"kind"}),

		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_leaderboard_refreshes_total",
			Help: "Leaderboard refresh attempts by result",
		}, []string{"result"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_leaderboard_refresh_duration_seconds",
			Help:    "Time to rebuild the leaderboard snapshot",
			Buckets: prometheus.DefBuckets,
		}),

		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_events_published_total",
			Help: "Events handed to the transport by result",
		}, []string{"type", "result"}),
		eventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_events_received_total",
			Help: "Events received by outcome",
		}, []string{"type", "outcome"}),

		distributedFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_distributed_failures_total",
			Help: "Shared store operations that failed and fell back to local behaviour",
		}, []string{"op"}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_mutations_total",
			Help: "Balance mutations by operation and outcome",
		}, []string{"op", "outcome"}),
	}
}

func (m *Metrics) CacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheMiss(kind string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheEvicted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) CacheSwept(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheSwept.WithLabelValues(kind).Add(float64(n))
}

// Refresh records one leaderboard refresh; result is ok, failed or skipped
func (m *Metrics) Refresh(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
	if result == "ok" {
		m.refreshDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) EventPublished(eventType, result string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) EventReceived(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) DistributedFailure(op string) {
	if m == nil {
		return
	}
	m.distributedFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) Mutation(op, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome).Inc()
}
