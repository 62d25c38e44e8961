// Package observability exposes Prometheus metrics and a local debug
// server for the tutor client.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/habla/internal/cache"
	"github.com/dgnsrekt/habla/internal/coordinator"
	"github.com/dgnsrekt/habla/internal/playback"
)

// Metrics groups all Prometheus instruments used by the client.
type Metrics struct {
	registry *prometheus.Registry

	State          *prometheus.GaugeVec
	Transitions    *prometheus.CounterVec
	StaleDiscards  *prometheus.CounterVec
	Turns          *prometheus.CounterVec
	StageMillis    *prometheus.HistogramVec
	Plays          *prometheus.CounterVec
	OutputRotation prometheus.Counter
}

// NewMetrics registers the instruments on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_state",
			Help:      "1 for the current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle transitions by source and target state.",
		}, []string{"from", "to"}),
		StaleDiscards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_discards_total",
			Help:      "Results discarded because a newer operation superseded them.",
		}, []string{"stage"}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		StageMillis: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Relay request latency by stage in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}, []string{"stage"}),
		Plays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plays_total",
			Help:      "Clips played by result.",
		}, []string{"result"}),
		OutputRotation: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_rotations_total",
			Help:      "Output handle replacements after the rotation threshold.",
		}),
	}
}

// StateChanged implements coordinator.Metrics.
func (m *Metrics) StateChanged(from, to coordinator.State) {
	m.State.WithLabelValues(from.String()).Set(0)
	m.State.WithLabelValues(to.String()).Set(1)
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// StaleDiscarded implements coordinator.Metrics.
func (m *Metrics) StaleDiscarded(stage string) {
	m.StaleDiscards.WithLabelValues(stage).Inc()
}

// TurnCompleted implements coordinator.Metrics.
func (m *Metrics) TurnCompleted(outcome string) {
	m.Turns.WithLabelValues(outcome).Inc()
}

// StageLatency implements coordinator.Metrics.
func (m *Metrics) StageLatency(stage string, d time.Duration) {
	m.StageMillis.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// PlaybackHooks returns driver hooks feeding the play counters.
func (m *Metrics) PlaybackHooks() playback.Hooks {
	return playback.Hooks{
		OnPlayEnd: func(_ string, err error) {
			if err != nil {
				m.Plays.WithLabelValues("error").Inc()
				return
			}
			m.Plays.WithLabelValues("ok").Inc()
		},
		OnRotate: m.OutputRotation.Inc,
	}
}

// WatchCache exports cache statistics as gauges read at scrape time.
func (m *Metrics) WatchCache(namespace string, stats func() cache.CacheStats) {
	gauge := func(name, help string, fn func(cache.CacheStats) float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(stats()) }))
	}
	gauge("entries", "Cached speech clips.", func(s cache.CacheStats) float64 { return float64(s.ItemCount) })
	gauge("bytes", "Bytes of cached speech.", func(s cache.CacheStats) float64 { return float64(s.Size) })
	gauge("playing", "Entries protected from eviction.", func(s cache.CacheStats) float64 { return float64(s.Playing) })
	gauge("hits", "Cache hits.", func(s cache.CacheStats) float64 { return float64(s.Hits) })
	gauge("misses", "Cache misses.", func(s cache.CacheStats) float64 { return float64(s.Misses) })
	gauge("evictions", "Evicted entries.", func(s cache.CacheStats) float64 { return float64(s.Evictions) })
	gauge("throwaways", "Uncached handles served while every entry was playing.", func(s cache.CacheStats) float64 { return float64(s.Throwaways) })
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ coordinator.Metrics = (*Metrics)(nil)
